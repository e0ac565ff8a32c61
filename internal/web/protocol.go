package web

import (
	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/sentence"
	"github.com/MrWong99/cantomaster/internal/usage"
)

// Inbound message types.
const (
	msgHello             = "hello"
	msgNext              = "next"
	msgSpeak             = "speak"
	msgListen            = "listen"
	msgStop              = "stop"
	msgMic               = "mic"
	msgSettings          = "settings"
	msgSpeakDone         = "speak_done"
	msgRecognitionResult = "recognition_result"
	msgRecognitionEnd    = "recognition_end"
)

// Outbound message types.
const (
	msgSentence      = "sentence"
	msgSpeaking      = "speaking"
	msgSpeakEnd      = "speak_end"
	msgSpeakCancel   = "speak_cancel"
	msgMicRequest    = "mic_request"
	msgMicRelease    = "mic_release"
	msgRecognize     = "recognize"
	msgRecognizeStop = "recognize_stop"
	msgListening     = "listening"
	msgTranscript    = "transcript"
	msgRecording     = "recording"
	msgListenEnd     = "listen_end"
	msgUsage         = "usage"
	msgError         = "error"
)

// clientVoice is a voice reported by the browser's speech synthesis.
type clientVoice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Locale  string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// inbound is any JSON frame the browser sends. Only the fields relevant to
// Type are set.
type inbound struct {
	Type string `json:"type"`

	// hello
	Usage  usage.Counts  `json:"usage,omitempty"`
	Voices []clientVoice `json:"voices,omitempty"`

	// speak
	Text string `json:"text,omitempty"`

	// mic
	Granted    bool `json:"granted,omitempty"`
	SampleRate int  `json:"sample_rate,omitempty"`

	// settings
	AutoPlay     *bool `json:"auto_play,omitempty"`
	AutoPlayNext *bool `json:"auto_play_next,omitempty"`

	// speak_done, recognition_result, recognition_end
	ID           string   `json:"id,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// outbound is any JSON frame the server sends.
type outbound struct {
	Type string `json:"type"`

	// sentence
	Sentence *sentence.Sentence `json:"sentence,omitempty"`
	Count    *usage.Count       `json:"count,omitempty"`

	// speaking
	SampleRate int `json:"sample_rate,omitempty"`
	Channels   int `json:"channels,omitempty"`

	// speak, speak_cancel, recognize, recognize_stop
	ID     string  `json:"id,omitempty"`
	Text   string  `json:"text,omitempty"`
	Locale string  `json:"locale,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Voice  string  `json:"voice,omitempty"`

	// transcript
	Score *int          `json:"score,omitempty"`
	Grade scoring.Grade `json:"grade,omitempty"`

	// recording
	WAV        []byte `json:"wav,omitempty"`
	Mime       string `json:"mime,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	// usage
	Counts usage.Counts `json:"counts,omitempty"`

	// settings
	AutoPlay     *bool `json:"auto_play,omitempty"`
	AutoPlayNext *bool `json:"auto_play_next,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// scoreRequest is the body of POST /api/score.
type scoreRequest struct {
	Target     string `json:"target"`
	Transcript string `json:"transcript"`
}
