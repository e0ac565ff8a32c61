package whisper

import "encoding/binary"

// pcmToFloat32Mono converts s16le PCM with the given channel count into the
// mono float32 samples in [-1, 1] that whisper.cpp consumes. Channels are
// averaged per frame; a trailing partial frame is dropped.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			off := (i*channels + c) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[off:]))) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}
