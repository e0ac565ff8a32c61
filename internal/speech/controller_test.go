package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/internal/speech/mock"
	"github.com/MrWong99/cantomaster/pkg/audio"
)

const waitTimeout = 2 * time.Second

// sessionLog records capture callbacks.
type sessionLog struct {
	mu          sync.Mutex
	transcripts []string
	recordings  []speech.Recording
	ends        int
	order       []string
}

func (l *sessionLog) onTranscript(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transcripts = append(l.transcripts, s)
	l.order = append(l.order, "transcript")
}

func (l *sessionLog) onAudio(r speech.Recording) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordings = append(l.recordings, r)
	l.order = append(l.order, "audio")
}

func (l *sessionLog) onEnd() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ends++
	l.order = append(l.order, "end")
}

func (l *sessionLog) snapshot() (transcripts []string, recordings []speech.Recording, ends int, order []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.transcripts...),
		append([]speech.Recording(nil), l.recordings...),
		l.ends,
		append([]string(nil), l.order...)
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

func waitDone(t *testing.T, c *speech.Capture) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("capture did not end; state=%s", c.State())
	}
}

func pcm(n int) []byte { return make([]byte, n) }

func TestListen_NoRecognizerReturnsNil(t *testing.T) {
	t.Parallel()

	ctrl := speech.New(speech.WithMicrophone(&mock.Microphone{}))
	t.Cleanup(ctrl.Close)

	if c := ctrl.Listen(nil, nil, nil); c != nil {
		t.Fatalf("Listen without recognizer = %v, want nil", c)
	}
}

func TestListen_StartFailureReturnsNil(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{StartErr: errors.New("busy")}
	mic := &mock.Microphone{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	if c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio); c != nil {
		t.Fatal("Listen with failing recognizer returned a handle")
	}
	if mic.OpenCallCount != 0 {
		t.Errorf("microphone opened %d times, want 0", mic.OpenCallCount)
	}
	if _, _, ends, _ := log.snapshot(); ends != 0 {
		t.Errorf("onSessionEnd fired %d times for a session that never started", ends)
	}
}

func TestListen_RecognitionConfig(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	ctrl := speech.New(speech.WithRecognizer(rec))
	t.Cleanup(ctrl.Close)

	c := ctrl.Listen(nil, nil, nil)
	if c == nil {
		t.Fatal("Listen returned nil")
	}
	c.Cancel()
	waitDone(t, c)

	cfg := rec.StartCalls[0]
	if cfg.Locale != "zh-HK" {
		t.Errorf("Locale = %q, want zh-HK", cfg.Locale)
	}
	if cfg.Continuous || cfg.InterimResults {
		t.Errorf("Continuous=%v InterimResults=%v, want both false", cfg.Continuous, cfg.InterimResults)
	}
	if cfg.Format != audio.Recognition {
		t.Errorf("Format = %v, want %v", cfg.Format, audio.Recognition)
	}
}

func TestListen_TranscriptAndRecording(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	if c == nil {
		t.Fatal("Listen returned nil")
	}
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })
	waitFor(t, "microphone", func() bool { return mic.Last() != nil })

	stream := mic.Last()
	stream.Push(pcm(320))
	stream.Push(pcm(320))
	recog := rec.Last()
	waitFor(t, "audio at recognizer", func() bool { return recog.AudioBytes() == 640 })

	recog.Emit("你好嗎", "你好媽")
	waitDone(t, c)

	transcripts, recordings, ends, order := log.snapshot()
	if len(transcripts) != 1 || transcripts[0] != "你好嗎" {
		t.Errorf("transcripts = %q, want [你好嗎]", transcripts)
	}
	if len(recordings) != 1 {
		t.Fatalf("recordings = %d, want 1", len(recordings))
	}
	if recordings[0].PCMBytes != 640 {
		t.Errorf("PCMBytes = %d, want 640", recordings[0].PCMBytes)
	}
	if recordings[0].MimeType != audio.WAVMime {
		t.Errorf("MimeType = %q, want %q", recordings[0].MimeType, audio.WAVMime)
	}
	body, f, err := audio.DecodeWAV(recordings[0].WAV)
	if err != nil {
		t.Fatalf("recording is not a WAV: %v", err)
	}
	if len(body) != 640 || f != audio.Recognition {
		t.Errorf("WAV payload = %d bytes %v, want 640 bytes %v", len(body), f, audio.Recognition)
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
	want := []string{"transcript", "audio", "end"}
	if len(order) != len(want) {
		t.Fatalf("callback order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("callback order = %v, want %v", order, want)
			break
		}
	}
	if !stream.Released() {
		t.Error("microphone not released after session end")
	}
	if c.State() != speech.StateEnded {
		t.Errorf("State = %s, want ended", c.State())
	}
}

func TestListen_PermissionDenied(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{OpenErr: speech.ErrPermissionDenied}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	if c == nil {
		t.Fatal("Listen returned nil")
	}
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })

	rec.Last().Emit("早晨")
	waitDone(t, c)

	transcripts, recordings, ends, _ := log.snapshot()
	if len(transcripts) != 1 || transcripts[0] != "早晨" {
		t.Errorf("transcripts = %q, want [早晨]", transcripts)
	}
	if len(recordings) != 0 {
		t.Errorf("onAudioReady fired %d times with permission denied, want 0", len(recordings))
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
}

func TestCapture_CancelDeliversAudioAndReleasesMicrophone(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })

	stream := mic.Last()
	stream.Push(pcm(160))
	recog := rec.Last()
	waitFor(t, "audio at recognizer", func() bool { return recog.AudioBytes() == 160 })

	ctrl.Cancel(c)
	c.Cancel()
	waitDone(t, c)

	transcripts, recordings, ends, _ := log.snapshot()
	if len(transcripts) != 0 {
		t.Errorf("transcripts = %q, want none", transcripts)
	}
	if len(recordings) != 1 {
		t.Fatalf("onAudioReady fired %d times, want 1", len(recordings))
	}
	if recordings[0].PCMBytes != 160 {
		t.Errorf("PCMBytes = %d, want 160", recordings[0].PCMBytes)
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
	if !stream.Released() {
		t.Fatal("microphone not released after cancel")
	}
	if stream.Push(pcm(160)) {
		t.Error("stream accepted a chunk after release")
	}
	if recog.StopCallCount == 0 {
		t.Error("recognition was not stopped")
	}

	// A second cancel after the end is a no-op.
	c.Cancel()
	if _, _, ends, _ := log.snapshot(); ends != 1 {
		t.Errorf("onSessionEnd fired %d times after repeated cancel, want 1", ends)
	}
}

func TestCapture_CancelWithEmptyRecording(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })
	c.Cancel()
	waitDone(t, c)

	_, recordings, ends, _ := log.snapshot()
	if len(recordings) != 1 || recordings[0].PCMBytes != 0 {
		t.Errorf("recordings = %+v, want one empty recording", recordings)
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
}

func TestCapture_CancelWhilePermissionPending(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{Hold: true}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	if c.State() != speech.StateStarting {
		t.Errorf("State = %s, want starting", c.State())
	}
	c.Cancel()
	waitDone(t, c)

	_, recordings, ends, _ := log.snapshot()
	if len(recordings) != 0 {
		t.Errorf("onAudioReady fired %d times before permission was granted, want 0", len(recordings))
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
	if mic.Last() != nil {
		t.Error("a stream was opened for a cancelled permission prompt")
	}
}

func TestCapture_RecognitionErrorEndsNormally(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })

	rec.Last().Fail(errors.New("network"))
	waitDone(t, c)

	transcripts, recordings, ends, _ := log.snapshot()
	if len(transcripts) != 0 {
		t.Errorf("transcripts = %q, want none", transcripts)
	}
	if len(recordings) != 1 {
		t.Errorf("onAudioReady fired %d times, want 1", len(recordings))
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
	if !mic.Last().Released() {
		t.Error("microphone not released after recognition error")
	}
}

func TestCapture_OnlyFirstResultDelivered(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	ctrl := speech.New(speech.WithRecognizer(rec))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })

	recog := rec.Last()
	recog.IgnoreStop = true
	recog.Emit() // no hypotheses
	recog.Emit("第一")
	recog.Emit("第二")
	recog.End()
	waitDone(t, c)

	transcripts, recordings, ends, _ := log.snapshot()
	if len(transcripts) != 1 || transcripts[0] != "第一" {
		t.Errorf("transcripts = %q, want [第一]", transcripts)
	}
	if len(recordings) != 0 {
		t.Errorf("recordings = %d without a microphone, want 0", len(recordings))
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
}

func TestCapture_CancelWaitsForPendingTranscript(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })

	recog := rec.Last()
	recog.IgnoreStop = true
	mic.Last().Push(pcm(1600))
	c.Cancel()
	waitFor(t, "stop sent", func() bool { return recog.Stops() > 0 })
	if c.State() != speech.StateEnding {
		t.Errorf("state after cancel = %v, want ending", c.State())
	}

	recog.Emit("早晨")
	recog.End()
	waitDone(t, c)

	transcripts, recordings, ends, _ := log.snapshot()
	if len(transcripts) != 1 || transcripts[0] != "早晨" {
		t.Errorf("transcripts = %q, want [早晨]", transcripts)
	}
	if len(recordings) != 1 || recordings[0].PCMBytes != 3200 {
		t.Errorf("recordings = %+v, want one of 3200 bytes", recordings)
	}
	if got := recog.AudioBytes(); got != 3200 {
		t.Errorf("recognizer received %d bytes, want 3200", got)
	}
	if ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
}

func TestCapture_ConvertsMicrophoneFormat(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{StreamFormat: audio.Format{SampleRate: 48000, Channels: 2}}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
	t.Cleanup(ctrl.Close)

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })

	mic.Last().Push(pcm(480 * 4)) // 10ms of 48 kHz stereo
	recog := rec.Last()
	waitFor(t, "audio at recognizer", func() bool { return recog.AudioBytes() > 0 })
	if got := recog.AudioBytes(); got != 160*2 {
		t.Errorf("recognizer received %d bytes, want %d", got, 160*2)
	}

	c.Cancel()
	waitDone(t, c)

	_, recordings, _, _ := log.snapshot()
	if len(recordings) != 1 {
		t.Fatalf("recordings = %d, want 1", len(recordings))
	}
	if recordings[0].Format != mic.StreamFormat || recordings[0].PCMBytes != 480*4 {
		t.Errorf("recording = %v %d bytes, want source format and 1920 bytes", recordings[0].Format, recordings[0].PCMBytes)
	}
}

func TestController_CloseEndsCapture(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{}
	mic := &mock.Microphone{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))

	var log sessionLog
	c := ctrl.Listen(log.onTranscript, log.onEnd, log.onAudio)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })

	ctrl.Close()
	waitDone(t, c)
	if _, _, ends, _ := log.snapshot(); ends != 1 {
		t.Errorf("onSessionEnd fired %d times, want 1", ends)
	}
}

func TestListen_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	rec := &mock.Recognizer{}
	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMetrics(m))
	t.Cleanup(ctrl.Close)

	c := ctrl.Listen(nil, nil, nil)
	waitFor(t, "active state", func() bool { return c.State() == speech.StateActive })
	rec.Last().Emit("你好")
	waitDone(t, c)

	var rm metricdata.ResourceMetrics
	waitFor(t, "capture metric", func() bool {
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		for _, sm := range rm.ScopeMetrics {
			for _, met := range sm.Metrics {
				if met.Name == "cantomaster.capture.sessions" {
					return true
				}
			}
		}
		return false
	})
}
