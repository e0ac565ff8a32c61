// Package audio holds the PCM plumbing shared by microphone capture, speech
// recognition and playback.
//
// All sample data in this package is signed 16-bit little-endian PCM. A
// [Format] carries the sample rate and channel count that give a byte slice
// its meaning; nothing in the bytes themselves records it.
package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// BytesPerSample is the width of one s16le sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of an s16le stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Recognition is the format most recognizers expect: 16 kHz mono.
var Recognition = Format{SampleRate: 16000, Channels: 1}

// Valid reports whether f describes a usable stream.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// FrameSize is the number of bytes in one multi-channel sample frame.
func (f Format) FrameSize() int {
	return f.Channels * BytesPerSample
}

// Duration returns how long n bytes of PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	if !f.Valid() {
		return 0
	}
	frames := n / f.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// String renders f as e.g. "48000Hz stereo".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Converter rewrites PCM chunks from a fixed source format into Target.
// A Converter is bound to one stream and is not safe for concurrent use.
type Converter struct {
	Source Format
	Target Format

	warnOdd sync.Once
}

// Convert returns chunk in the target format. Chunks already in the target
// format are returned as-is. Chunks with a torn sample are dropped.
func (c *Converter) Convert(chunk []byte) []byte {
	if len(chunk)%BytesPerSample != 0 {
		c.warnOdd.Do(func() {
			slog.Warn("audio: dropping chunk with odd byte count",
				"bytes", len(chunk),
				"format", c.Source.String(),
			)
		})
		return nil
	}
	if c.Source == c.Target {
		return chunk
	}

	pcm := chunk
	channels := c.Source.Channels
	// Downmix before resampling so the resampler touches fewer samples.
	if channels == 2 && c.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
		channels = 1
	}
	if c.Source.SampleRate != c.Target.SampleRate {
		pcm = Resample(pcm, channels, c.Source.SampleRate, c.Target.SampleRate)
	}
	if channels == 1 && c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return pcm
}

// MonoToStereo duplicates every mono sample into an L/R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / BytesPerSample
	out := make([]byte, n*4)
	for i := range n {
		lo, hi := pcm[i*2], pcm[i*2+1]
		out[i*4], out[i*4+1] = lo, hi
		out[i*4+2], out[i*4+3] = lo, hi
	}
	return out
}

// StereoToMono averages each L/R pair into one sample.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		putSample(out, i, clamp16((l+r)/2))
	}
	return out
}

// Resample converts interleaved PCM with the given channel count from srcRate
// to dstRate using linear interpolation. Invalid rates return pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	frameBytes := channels * BytesPerSample
	srcFrames := len(pcm) / frameBytes
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameBytes)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

// RMS returns the root-mean-square amplitude of pcm normalised to [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(sampleAt(pcm, i)) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
}

func clamp16(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
