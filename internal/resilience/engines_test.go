package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	sttmock "github.com/MrWong99/cantomaster/pkg/provider/stt/mock"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
	ttsmock "github.com/MrWong99/cantomaster/pkg/provider/tts/mock"
)

func TestSTT_FailsOverOnStart(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errEngine}
	secondary := &sttmock.Provider{}

	p := NewSTT("whisper", primary, BreakerConfig{})
	p.Add("vosk", secondary)

	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "zh-HK"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()
	if secondary.Last() == nil || h != stt.SessionHandle(secondary.Last()) {
		t.Error("session did not come from the fallback engine")
	}
	if len(primary.StartStreamCalls) != 1 {
		t.Errorf("primary tried %d times, want 1", len(primary.StartStreamCalls))
	}
}

func TestSTT_AllFail(t *testing.T) {
	p := NewSTT("whisper", &sttmock.Provider{StartStreamErr: errEngine}, BreakerConfig{})
	p.Add("vosk", &sttmock.Provider{StartStreamErr: errEngine})

	if _, err := p.StartStream(context.Background(), stt.StreamConfig{}); !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
}

func TestTTS_FallbackUsesDefaultVoice(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errEngine}
	secondary := &ttsmock.Provider{Chunks: [][]byte{make([]byte, 480)}}

	p := NewTTS("elevenlabs", primary, BreakerConfig{})
	p.Add("coqui", secondary)

	st, err := p.Synthesize(context.Background(), tts.Request{Text: "你好", Voice: "rachel", Locale: "zh-HK"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	audio.Drain(st.Chunks())

	if got := primary.Calls(); len(got) != 1 || got[0].Voice != "rachel" {
		t.Errorf("primary requests = %+v, want the chosen voice", got)
	}
	got := secondary.Calls()
	if len(got) != 1 {
		t.Fatalf("fallback requests = %d, want 1", len(got))
	}
	if got[0].Voice != "" || got[0].Text != "你好" || got[0].Locale != "zh-HK" {
		t.Errorf("fallback request = %+v, want default voice and same text", got[0])
	}
}

func TestTTS_Voices(t *testing.T) {
	primary := &ttsmock.Provider{VoicesErr: errEngine}
	secondary := &ttsmock.Provider{VoiceList: []tts.Voice{{ID: "yue", Locale: "zh-HK"}}}

	p := NewTTS("openai", primary, BreakerConfig{})
	p.Add("coqui", secondary)

	voices, err := p.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "yue" {
		t.Errorf("voices = %+v", voices)
	}
}

type closer struct {
	ttsmock.Provider
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestTTS_CloseClosesEngines(t *testing.T) {
	a := &closer{}
	b := &closer{err: errEngine}

	p := NewTTS("a", a, BreakerConfig{})
	p.Add("plain", &ttsmock.Provider{})
	p.Add("b", b)

	if err := p.Close(); !errors.Is(err, errEngine) {
		t.Errorf("Close = %v, want the engine's close error", err)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("closed = %d, %d, want 1, 1", a.closed, b.closed)
	}
}
