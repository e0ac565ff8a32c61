package vosk

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/cantomaster/pkg/provider/stt"
)

func TestParseFinal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		wantOK   bool
		wantText string
		wantConf float64
		wantAlts int
	}{
		{
			name:     "plain result with word confidences",
			raw:      `{"result":[{"conf":1.0,"word":"你好"},{"conf":0.5,"word":"嗎"}],"text":"你好 嗎"}`,
			wantOK:   true,
			wantText: "你好嗎",
			wantConf: 0.75,
			wantAlts: 1,
		},
		{
			name:     "alternatives",
			raw:      `{"alternatives":[{"confidence":310.5,"text":"早 晨"},{"confidence":290.1,"text":"早 神"},{"confidence":1,"text":""}]}`,
			wantOK:   true,
			wantText: "早晨",
			wantConf: 310.5,
			wantAlts: 2,
		},
		{name: "empty text", raw: `{"text":""}`},
		{name: "empty alternatives", raw: `{"alternatives":[{"confidence":1,"text":""}]}`},
		{name: "invalid json", raw: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseFinal(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Text != tt.wantText || !got.IsFinal || got.Confidence != tt.wantConf {
				t.Errorf("transcript = %+v", got)
			}
			if len(got.Alternatives) != tt.wantAlts {
				t.Errorf("alternatives = %d, want %d", len(got.Alternatives), tt.wantAlts)
			}
		})
	}
}

func TestParsePartial(t *testing.T) {
	t.Parallel()
	if text, ok := parsePartial(`{"partial":"你 好"}`); !ok || text != "你好" {
		t.Errorf("parsePartial = %q, %v", text, ok)
	}
	if _, ok := parsePartial(`{"partial":""}`); ok {
		t.Error("empty partial should be ignored")
	}
}

func TestJoinHan(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"", ""},
		{"你 好", "你好"},
		{"hello world", "hello world"},
		{"我 係 Peter 你 呢", "我係 Peter 你呢"},
		{"  多  謝  ", "多謝"},
	}
	for _, tt := range tests {
		if got := joinHan(tt.in); got != tt.want {
			t.Errorf("joinHan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_EmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestStream_SilenceProducesNoFinal(t *testing.T) {
	path := os.Getenv("VOSK_MODEL_PATH")
	if path == "" {
		t.Skip("VOSK_MODEL_PATH not set; skipping vosk model test")
	}
	p, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	for range 10 {
		_ = h.SendAudio(make([]byte, 3200))
	}
	h.Close()
	for tr := range h.Finals() {
		t.Errorf("unexpected final from silence: %+v", tr)
	}
}
