package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVMime is the MIME type of the containers produced by [EncodeWAV].
const WAVMime = "audio/wav"

const wavHeaderSize = 44

// ErrNotWAV is returned by [DecodeWAV] for input that is not a RIFF/WAVE
// container.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

// EncodeWAV wraps s16le pcm in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	buf := make([]byte, wavHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1) // PCM
	le.PutUint16(buf[22:24], uint16(f.Channels))
	le.PutUint32(buf[24:28], uint32(f.SampleRate))
	le.PutUint32(buf[28:32], uint32(f.SampleRate*f.FrameSize()))
	le.PutUint16(buf[32:34], uint16(f.FrameSize()))
	le.PutUint16(buf[34:36], 8*BytesPerSample)

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns the PCM payload of the
// data chunk together with the format from the fmt chunk. Only 16-bit PCM is
// accepted. The returned slice aliases wav.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var (
		f      Format
		hasFmt bool
	)
	off := 12
	for off+8 <= len(wav) {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, Format{}, fmt.Errorf("audio: truncated fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(wav[body:]); tag != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported WAV encoding %d", tag)
			}
			if bits := binary.LittleEndian.Uint16(wav[body+14:]); bits != 16 {
				return nil, Format{}, fmt.Errorf("audio: unsupported bit depth %d", bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4:]))
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, Format{}, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			end := min(body+size, len(wav))
			return wav[body:end], f, nil
		}

		off = body + size
		if size%2 != 0 {
			off++
		}
	}
	return nil, Format{}, fmt.Errorf("audio: missing data chunk")
}
