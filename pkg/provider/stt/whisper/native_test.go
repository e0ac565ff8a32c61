package whisper_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/stt/whisper"
)

func TestNewNative_BadModelPath(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/ggml-small.bin"} {
		if p, err := whisper.NewNative(path); err == nil {
			p.Close()
			t.Errorf("NewNative(%q): expected error", path)
		}
	}
}

// TestNative_Silence needs a real model; set WHISPER_MODEL_PATH to run it.
func TestNative_Silence(t *testing.T) {
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	p, err := whisper.NewNative(path,
		whisper.WithNativeLanguage("yue"),
		whisper.WithNativeThreads(2),
		whisper.WithNativeSilenceThreshold(200*time.Millisecond),
		whisper.WithNativeMaxUtterance(5*time.Second),
	)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "zh-HK"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	// One second of silence is never an utterance.
	for range 10 {
		_ = h.SendAudio(silence(1600))
	}
	h.Close()

	for tr := range h.Finals() {
		t.Errorf("transcript from silence: %+v", tr)
	}
	if err := h.SendAudio(silence(160)); err == nil {
		t.Error("SendAudio after Close: expected error")
	}
}
