package speech_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/internal/speech/mock"
)

func waitStarted(t *testing.T, s *mock.Synthesizer) speech.Utterance {
	t.Helper()
	select {
	case u := <-s.Started():
		return u
	case <-time.After(waitTimeout):
		t.Fatal("synthesis did not start")
		return speech.Utterance{}
	}
}

func TestSpeak_NoSynthesizerCompletes(t *testing.T) {
	t.Parallel()

	ctrl := speech.New()
	t.Cleanup(ctrl.Close)

	done := make(chan struct{})
	ctrl.Speak("你好", func() { close(done) })
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("onComplete did not fire without a synthesizer")
	}
}

func TestSpeak_UtteranceParameters(t *testing.T) {
	t.Parallel()

	synth := &mock.Synthesizer{
		VoiceList: []speech.Voice{
			{ID: "en", Name: "Samantha", Locale: "en-US", Default: true},
			{ID: "hk", Name: "Sin-ji", Locale: "zh_HK"},
		},
	}
	ctrl := speech.New(speech.WithSynthesizer(synth))
	t.Cleanup(ctrl.Close)

	done := make(chan struct{})
	ctrl.Speak("多謝", func() { close(done) })
	<-done

	calls := synth.Calls()
	if len(calls) != 1 {
		t.Fatalf("Speak calls = %d, want 1", len(calls))
	}
	u := calls[0]
	if u.Text != "多謝" || u.Locale != "zh-HK" || u.Rate != 0.9 {
		t.Errorf("utterance = %+v, want text 多謝, locale zh-HK, rate 0.9", u)
	}
	if u.Voice == nil || u.Voice.ID != "hk" {
		t.Errorf("voice = %+v, want hk", u.Voice)
	}
}

func TestSpeak_FailureStillCompletesOnce(t *testing.T) {
	t.Parallel()

	synth := &mock.Synthesizer{SpeakErr: errors.New("audio device lost")}
	ctrl := speech.New(speech.WithSynthesizer(synth))
	t.Cleanup(ctrl.Close)

	var n atomic.Int32
	done := make(chan struct{})
	ctrl.Speak("你好", func() {
		if n.Add(1) == 1 {
			close(done)
		}
	})
	<-done
	time.Sleep(10 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Errorf("onComplete fired %d times, want 1", got)
	}
	if ctrl.Speaking() {
		t.Error("Speaking() = true after failed synthesis")
	}
}

func TestSpeak_SupersedesPreviousUtterance(t *testing.T) {
	t.Parallel()

	synth := &mock.Synthesizer{Block: true}
	ctrl := speech.New(speech.WithSynthesizer(synth))
	t.Cleanup(ctrl.Close)

	var first, second atomic.Int32
	ctrl.Speak("第一句", func() { first.Add(1) })
	waitStarted(t, synth)
	if !ctrl.Speaking() {
		t.Fatal("Speaking() = false during synthesis")
	}

	secondDone := make(chan struct{})
	ctrl.Speak("第二句", func() {
		second.Add(1)
		close(secondDone)
	})
	// The superseded utterance completes before Speak returns.
	if got := first.Load(); got != 1 {
		t.Fatalf("first onComplete fired %d times at supersession, want 1", got)
	}

	u := waitStarted(t, synth)
	if u.Text != "第二句" {
		t.Errorf("second utterance = %q, want 第二句", u.Text)
	}
	if !synth.Release() {
		t.Fatal("no live utterance to release")
	}
	<-secondDone

	time.Sleep(10 * time.Millisecond)
	if got := first.Load(); got != 1 {
		t.Errorf("first onComplete fired %d times, want 1", got)
	}
	if got := second.Load(); got != 1 {
		t.Errorf("second onComplete fired %d times, want 1", got)
	}
}

func TestStopSpeaking(t *testing.T) {
	t.Parallel()

	synth := &mock.Synthesizer{Block: true}
	ctrl := speech.New(speech.WithSynthesizer(synth))
	t.Cleanup(ctrl.Close)

	var n atomic.Int32
	ctrl.Speak("停", func() { n.Add(1) })
	waitStarted(t, synth)

	ctrl.StopSpeaking()
	if got := n.Load(); got != 1 {
		t.Errorf("onComplete fired %d times after StopSpeaking, want 1", got)
	}
	if ctrl.Speaking() {
		t.Error("Speaking() = true after StopSpeaking")
	}
	ctrl.StopSpeaking()
	time.Sleep(10 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Errorf("onComplete fired %d times, want 1", got)
	}
}

func TestSpeak_VoiceLookupCached(t *testing.T) {
	t.Parallel()

	synth := &mock.Synthesizer{VoiceList: []speech.Voice{{ID: "x", Name: "Cantonese Female", Locale: "zh"}}}
	ctrl := speech.New(speech.WithSynthesizer(synth))
	t.Cleanup(ctrl.Close)

	for range 3 {
		done := make(chan struct{})
		ctrl.Speak("一", func() { close(done) })
		<-done
	}
	synth.Voices(t.Context()) // one direct call for comparison
	if synth.VoicesCallCount != 2 {
		t.Errorf("Voices called %d times, want 2 (one lookup plus the direct call)", synth.VoicesCallCount)
	}
	for _, u := range synth.Calls() {
		if u.Voice == nil || u.Voice.ID != "x" {
			t.Errorf("voice = %+v, want x", u.Voice)
		}
	}
}

func TestSpeak_VoiceLookupFailureUsesDefault(t *testing.T) {
	t.Parallel()

	synth := &mock.Synthesizer{VoicesErr: errors.New("unavailable")}
	ctrl := speech.New(speech.WithSynthesizer(synth), speech.WithRate(1.0), speech.WithLocale("yue-HK"))
	t.Cleanup(ctrl.Close)

	done := make(chan struct{})
	ctrl.Speak("好", func() { close(done) })
	<-done

	u := synth.Calls()[0]
	if u.Voice != nil {
		t.Errorf("voice = %+v, want nil (platform default)", u.Voice)
	}
	if u.Rate != 1.0 || u.Locale != "yue-HK" {
		t.Errorf("utterance = %+v, want overridden rate and locale", u)
	}
}
