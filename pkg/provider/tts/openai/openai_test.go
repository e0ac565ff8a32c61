package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test", "")
	voices, err := p.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	defaults := 0
	for _, v := range voices {
		if v.Default {
			defaults++
			if v.ID != DefaultVoice {
				t.Errorf("default voice = %q, want %q", v.ID, DefaultVoice)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("default voices = %d, want 1", defaults)
	}
}

func TestSynthesize_StreamsPCM(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/octet-stream")
		// Odd split across writes to exercise carry handling.
		_, _ = w.Write([]byte{1, 2, 3})
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte{4, 5, 6, 7})
	}))
	defer srv.Close()

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"))
	s, err := p.Synthesize(context.Background(), tts.Request{Text: "你好", Locale: "zh-HK", Rate: 0.9})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if s.Format() != pcmFormat {
		t.Errorf("format = %v", s.Format())
	}
	var pcm []byte
	for c := range s.Chunks() {
		if len(c)%2 != 0 {
			t.Errorf("chunk of %d bytes is not whole samples", len(c))
		}
		pcm = append(pcm, c...)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if string(pcm) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("pcm = %v", pcm)
	}

	if body["input"] != "你好" || body["voice"] != DefaultVoice || body["response_format"] != "pcm" {
		t.Errorf("request body = %v", body)
	}
	if body["speed"] != 0.9 {
		t.Errorf("speed = %v, want 0.9", body["speed"])
	}
	if instr, _ := body["instructions"].(string); !strings.Contains(instr, "Cantonese") {
		t.Errorf("instructions = %q", instr)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad voice","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "你好", Voice: "nope"}); err == nil {
		t.Error("expected error")
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: " "}); err == nil {
		t.Error("expected error for empty text")
	}
}
