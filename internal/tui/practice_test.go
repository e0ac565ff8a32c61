package tui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/sentence"
	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/internal/speech/mock"
	"github.com/MrWong99/cantomaster/internal/usage"
)

const waitTimeout = 2 * time.Second

type harness struct {
	m     *Practice
	synth *mock.Synthesizer
	rec   *mock.Recognizer
	mic   *mock.Microphone
	store *usage.History
}

func newHarness(t *testing.T, cfg PracticeConfig, withRecognizer bool) *harness {
	t.Helper()
	b, err := sentence.New([]sentence.Sentence{
		{ID: "a", Text: "你好", Romanization: "nei5 hou2", Meaning: "Hello"},
		{ID: "b", Text: "多謝", Romanization: "do1 ze6", Meaning: "Thank you"},
	})
	if err != nil {
		t.Fatalf("sentence.New: %v", err)
	}
	store, err := usage.OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		synth: &mock.Synthesizer{Block: true},
		rec:   &mock.Recognizer{},
		mic:   &mock.Microphone{},
		store: store,
	}
	opts := []speech.Option{speech.WithSynthesizer(h.synth), speech.WithMicrophone(h.mic)}
	if withRecognizer {
		opts = append(opts, speech.WithRecognizer(h.rec))
	}
	ctrl := speech.New(opts...)
	t.Cleanup(ctrl.Close)

	cfg.Controller = ctrl
	cfg.Catalog = sentence.NewCatalog(b)
	cfg.Store = store
	h.m = NewPractice(cfg)
	t.Cleanup(h.m.shutdown)
	h.m.Update(startMsg{})
	return h
}

func keyMsg(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// pumpUntil feeds controller events into Update until cond holds.
func (h *harness) pumpUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for !cond() {
		select {
		case msg := <-h.m.events:
			h.m.Update(msg)
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPractice_StartAutoPlays(t *testing.T) {
	h := newHarness(t, PracticeConfig{AutoPlay: true}, true)

	if h.m.current.ID == "" {
		t.Fatal("no sentence loaded on start")
	}
	if !h.m.speaking {
		t.Fatal("auto-play did not start speaking")
	}
	select {
	case u := <-h.synth.Started():
		if u.Text != h.m.current.Text {
			t.Errorf("spoke %q, want %q", u.Text, h.m.current.Text)
		}
	case <-time.After(waitTimeout):
		t.Fatal("synthesizer never started")
	}
	h.synth.Release()
	h.pumpUntil(t, "speech end", func() bool { return !h.m.speaking })

	if out := h.m.View(); !strings.Contains(out, h.m.current.Text) || !strings.Contains(out, h.m.current.Romanization) {
		t.Errorf("view does not show the sentence:\n%s", out)
	}
}

func TestPractice_PlayWithoutAutoPlay(t *testing.T) {
	h := newHarness(t, PracticeConfig{}, true)
	if h.m.speaking {
		t.Fatal("speaking without auto-play")
	}
	cmd := h.m.handleKey(keyMsg(" "))
	if !h.m.speaking {
		t.Fatal("space did not start speaking")
	}
	if cmd == nil {
		t.Fatal("play returned no count update")
	}
	h.m.Update(cmd())
	if h.m.count.Listened != 1 {
		t.Errorf("listened = %d, want 1", h.m.count.Listened)
	}
}

func TestPractice_ListenScoresAndRecords(t *testing.T) {
	h := newHarness(t, PracticeConfig{}, true)
	target := h.m.current

	h.m.handleKey(keyMsg("r"))
	if !h.m.listening {
		t.Fatalf("not listening; err=%q", h.m.errMsg)
	}
	waitFor(t, "microphone", func() bool { return h.mic.Last() != nil })
	waitFor(t, "recognition", func() bool { return h.rec.Last() != nil })
	h.mic.Last().Push(make([]byte, 3200))
	waitFor(t, "audio forwarded", func() bool { return h.rec.Last().AudioBytes() > 0 })
	h.rec.Last().Emit(target.Text)

	h.pumpUntil(t, "capture end", func() bool { return !h.m.listening })

	if h.m.result == nil || h.m.result.Score != 100 || h.m.result.Grade != scoring.GradePerfect {
		t.Fatalf("result = %+v, want 100 Perfect", h.m.result)
	}
	if h.m.recording == nil || h.m.recording.PCMBytes != 3200 {
		t.Errorf("recording = %+v, want 3200 PCM bytes", h.m.recording)
	}
	if out := h.m.View(); !strings.Contains(out, string(scoring.GradePerfect)) {
		t.Errorf("view does not show the grade:\n%s", out)
	}
}

func TestPractice_ListenWhileActive(t *testing.T) {
	h := newHarness(t, PracticeConfig{}, true)

	h.m.handleKey(keyMsg("r"))
	h.m.handleKey(keyMsg("r"))
	if h.m.errMsg != "session already active" {
		t.Errorf("errMsg = %q", h.m.errMsg)
	}
	if h.m.handleKey(keyMsg(" ")); h.m.errMsg != "recording in progress" {
		t.Errorf("errMsg = %q", h.m.errMsg)
	}
}

func TestPractice_NextDiscardsCapture(t *testing.T) {
	h := newHarness(t, PracticeConfig{}, true)
	first := h.m.current

	h.m.handleKey(keyMsg("r"))
	waitFor(t, "recognition", func() bool { return h.rec.Last() != nil })
	h.m.handleKey(keyMsg("n"))
	if h.m.current.ID == first.ID {
		t.Fatalf("next kept sentence %q", first.ID)
	}
	if !h.m.discard {
		t.Fatal("in-flight capture not marked for discard")
	}
	h.rec.Last().Emit(first.Text)
	h.pumpUntil(t, "capture end", func() bool { return !h.m.listening })
	if h.m.result != nil {
		t.Errorf("discarded capture produced result %+v", h.m.result)
	}
}

func TestPractice_NoRecognizer(t *testing.T) {
	h := newHarness(t, PracticeConfig{}, false)

	h.m.handleKey(keyMsg("r"))
	if h.m.listening {
		t.Fatal("listening without a recognizer")
	}
	if h.m.errMsg != "speech recognition is not available" {
		t.Errorf("errMsg = %q", h.m.errMsg)
	}
}

func TestPractice_AutoPlayNext(t *testing.T) {
	h := newHarness(t, PracticeConfig{AutoPlay: true, AutoPlayNext: true, AutoNextDelay: time.Millisecond}, true)
	first := h.m.current

	waitFor(t, "synthesis", func() bool { return len(h.synth.Calls()) == 1 })
	h.synth.Release()
	var tick tea.Cmd
	deadline := time.After(waitTimeout)
	for tick == nil {
		select {
		case msg := <-h.m.events:
			tick = h.m.handleEvent(msg)
		case <-deadline:
			t.Fatal("auto-played speech did not schedule the next sentence")
		}
	}
	h.m.Update(tick())
	if h.m.current.ID == first.ID {
		t.Errorf("auto-next kept sentence %q", first.ID)
	}
}

func TestPractice_AutoNextSkippedWhenStale(t *testing.T) {
	h := newHarness(t, PracticeConfig{AutoPlay: true, AutoPlayNext: true}, true)
	first := h.m.current
	stale := h.m.speakSeq

	h.m.handleKey(keyMsg(" "))
	h.m.Update(autoNextMsg{seq: stale})
	if h.m.current.ID != first.ID {
		t.Error("stale auto-next changed the sentence")
	}
}

func TestPractice_Quit(t *testing.T) {
	h := newHarness(t, PracticeConfig{AutoPlay: true}, true)
	if cmd := h.m.handleKey(keyMsg("q")); cmd == nil {
		t.Fatal("quit returned no command")
	}
	select {
	case <-h.m.quit:
	default:
		t.Fatal("quit channel not closed")
	}
	// Controller callbacks after quit must not block.
	h.m.send(listenEndMsg{seq: 1})
}
