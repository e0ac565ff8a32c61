package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/coder/websocket"
)

// ---- URL / query-param tests ----

func TestBuildURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opts []Option
		cfg  stt.StreamConfig
		want map[string]string
	}{
		{
			name: "defaults",
			cfg:  stt.StreamConfig{},
			want: map[string]string{
				"model":           "nova-2",
				"language":        "zh-HK",
				"encoding":        "linear16",
				"sample_rate":     "16000",
				"channels":        "1",
				"interim_results": "true",
				"alternatives":    "3",
			},
		},
		{
			name: "provider options",
			opts: []Option{WithModel("base"), WithLanguage("yue"), WithSampleRate(48000), WithAlternatives(1)},
			cfg:  stt.StreamConfig{Channels: 2},
			want: map[string]string{
				"model":        "base",
				"language":     "yue",
				"sample_rate":  "48000",
				"channels":     "2",
				"alternatives": "",
			},
		},
		{
			name: "stream config wins",
			opts: []Option{WithLanguage("en")},
			cfg:  stt.StreamConfig{Language: "zh-HK", SampleRate: 8000},
			want: map[string]string{"language": "zh-HK", "sample_rate": "8000"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raw, err := p.buildURL(tt.cfg)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, _ := url.Parse(raw)
			q := u.Query()
			for k, v := range tt.want {
				if got := q.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestBuildURL_CustomEndpoint(t *testing.T) {
	t.Parallel()
	p, _ := New("key", WithEndpoint("ws://localhost:9999/v1/listen"))
	raw, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.HasPrefix(raw, "ws://localhost:9999/v1/listen?") {
		t.Errorf("url = %q", raw)
	}
}

// ---- response parsing ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	t.Parallel()
	msg := `{
		"type": "Results",
		"is_final": true,
		"start": 1.5,
		"duration": 0.75,
		"channel": {"alternatives": [
			{"transcript": "你好嗎", "confidence": 0.92},
			{"transcript": "你好", "confidence": 0.61},
			{"transcript": "", "confidence": 0.1}
		]}
	}`
	tr, ok := parseDeepgramResponse([]byte(msg))
	if !ok {
		t.Fatal("expected ok")
	}
	if tr.Text != "你好嗎" || !tr.IsFinal || tr.Confidence != 0.92 {
		t.Errorf("transcript = %+v", tr)
	}
	if len(tr.Alternatives) != 2 || tr.Alternatives[1].Text != "你好" {
		t.Errorf("alternatives = %+v, want two non-empty", tr.Alternatives)
	}
	if tr.Timestamp != 1500*time.Millisecond || tr.Duration != 750*time.Millisecond {
		t.Errorf("timing = %v+%v", tr.Timestamp, tr.Duration)
	}
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  string
	}{
		{name: "metadata event", msg: `{"type":"Metadata"}`},
		{name: "no alternatives", msg: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "blank transcript", msg: `{"type":"Results","channel":{"alternatives":[{"transcript":"  "}]}}`},
		{name: "invalid json", msg: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tr, ok := parseDeepgramResponse([]byte(tt.msg)); ok {
				t.Errorf("expected message to be ignored, got %+v", tr)
			}
		})
	}
}

// ---- construction ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- streaming against a fake server ----

func TestStreamSession_RoundTrip(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	gotAudio := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		typ, data, err := conn.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			return
		}
		gotAudio <- data

		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"你"}]}}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"你好","confidence":0.9}]}}`))

		// Wait for CloseStream, then hang up.
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "CloseStream") {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "zh-HK"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	if auth := <-gotAuth; auth != "Token secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if audio := <-gotAudio; len(audio) != 4 {
		t.Errorf("server got %d audio bytes, want 4", len(audio))
	}

	select {
	case p := <-h.Partials():
		if p.Text != "你" || p.IsFinal {
			t.Errorf("partial = %+v", p)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}
	select {
	case f := <-h.Finals():
		if f.Text != "你好" || !f.IsFinal {
			t.Errorf("final = %+v", f)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for final")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.SendAudio([]byte{0, 0}); err == nil {
		t.Error("SendAudio after Close should fail")
	}
}
