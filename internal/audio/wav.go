package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	formatTagPCM        = 0x0001
	formatTagExtensible = 0xFFFE
)

// ErrInvalidContainer is returned for payloads that are not RIFF/WAVE PCM.
var ErrInvalidContainer = errors.New("invalid wav container")

// Decode parses a RIFF/WAVE payload and returns its format and raw PCM.
// Chunks other than "fmt " and "data" are skipped; the returned PCM is a
// copy trimmed to whole sample frames.
func Decode(data []byte) (Segment, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Segment{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidContainer)
	}

	var (
		format   Format
		pcm      []byte
		haveFmt  bool
		haveData bool
	)
	offset := 12
	for offset+8 <= len(data) && !(haveFmt && haveData) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) {
			if id != "data" {
				return Segment{}, fmt.Errorf("%w: truncated %q chunk", ErrInvalidContainer, id)
			}
			// Streaming writers leave the data size unset.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Segment{}, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrInvalidContainer, size)
			}
			tag := binary.LittleEndian.Uint16(data[body:])
			if tag == formatTagExtensible && size >= 40 {
				tag = binary.LittleEndian.Uint16(data[body+24:])
			}
			if tag != formatTagPCM {
				return Segment{}, fmt.Errorf("%w: unsupported encoding tag 0x%04x", ErrInvalidContainer, tag)
			}
			format = Format{
				Channels:      int(binary.LittleEndian.Uint16(data[body+2:])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				ByteRate:      int(binary.LittleEndian.Uint32(data[body+8:])),
				BlockAlign:    int(binary.LittleEndian.Uint16(data[body+12:])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}
			haveFmt = true
		case "data":
			pcm = data[body:end]
			haveData = true
		}
		offset = end + size&1
	}

	if !haveFmt {
		return Segment{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidContainer)
	}
	if !haveData {
		return Segment{}, fmt.Errorf("%w: missing data chunk", ErrInvalidContainer)
	}
	if err := format.validate(); err != nil {
		return Segment{}, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}

	whole := len(pcm) - len(pcm)%format.BlockAlign
	return Segment{Format: format, PCM: append([]byte(nil), pcm[:whole]...)}, nil
}

// WriteWAV writes pcm wrapped in a canonical WAV header.
func WriteWAV(w io.WriteSeeker, f Format, pcm []byte) error {
	if err := f.validate(); err != nil {
		return err
	}
	if len(pcm)%f.BlockAlign != 0 {
		return fmt.Errorf("pcm payload not aligned to %d-byte frames", f.BlockAlign)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           unpackSamples(pcm, f.BitsPerSample),
		SourceBitDepth: f.BitsPerSample,
	}
	enc := wav.NewEncoder(w, f.SampleRate, f.BitsPerSample, f.Channels, formatTagPCM)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// EncodeWAV returns pcm wrapped in a WAV container as a byte slice.
func EncodeWAV(f Format, pcm []byte) ([]byte, error) {
	var file memFile
	if err := WriteWAV(&file, f, pcm); err != nil {
		return nil, err
	}
	return file.Bytes(), nil
}

func unpackSamples(pcm []byte, bits int) []int {
	width := bits / 8
	samples := make([]int, len(pcm)/width)
	for i := range samples {
		b := pcm[i*width:]
		switch bits {
		case 8:
			samples[i] = int(b[0])
		case 16:
			samples[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case 24:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			samples[i] = int(v)
		case 32:
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)))
		}
	}
	return samples
}

// memFile is an in-memory io.WriteSeeker for the wav encoder.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = m.pos + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = next
	return next, nil
}

func (m *memFile) Bytes() []byte { return m.buf }
