package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestPcmToFloat32Mono(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		pcm      []byte
		channels int
		want     []float32
	}{
		{name: "empty", pcm: nil, channels: 1, want: []float32{}},
		{name: "full scale mono", pcm: pcm16(32767, -32768, 0), channels: 1, want: []float32{32767.0 / 32768.0, -1, 0}},
		{name: "zero channels treated as mono", pcm: pcm16(16384), channels: 0, want: []float32{0.5}},
		{name: "stereo averaged", pcm: pcm16(16384, -16384, 16384, 16384), channels: 2, want: []float32{0, 0.5}},
		{name: "odd trailing byte dropped", pcm: append(pcm16(16384), 0x01), channels: 1, want: []float32{0.5}},
		{name: "partial stereo frame dropped", pcm: pcm16(100, 100, 100), channels: 2, want: []float32{100.0 / 32768.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pcmToFloat32Mono(tt.pcm, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("sample %d = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}
