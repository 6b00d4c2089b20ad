package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func rawWAV(f Format, pcm []byte, extra ...[]byte) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, chunk := range extra {
		body.Write(chunk)
	}
	body.WriteString("fmt ")
	binary.Write(&body, binary.LittleEndian, uint32(16))
	binary.Write(&body, binary.LittleEndian, uint16(1))
	binary.Write(&body, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&body, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&body, binary.LittleEndian, uint32(f.ByteRate))
	binary.Write(&body, binary.LittleEndian, uint16(f.BlockAlign))
	binary.Write(&body, binary.LittleEndian, uint16(f.BitsPerSample))
	body.WriteString("data")
	binary.Write(&body, binary.LittleEndian, uint32(len(pcm)))
	body.Write(pcm)

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	f := NewFormat(24000, 1, 16)
	pcm := []byte{1, 0, 2, 0, 3, 0}
	list := append([]byte("LIST"), 3, 0, 0, 0, 'a', 'b', 'c', 0) // odd size plus pad byte
	seg, err := Decode(rawWAV(f, pcm, list))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seg.Format != f {
		t.Fatalf("unexpected format %+v", seg.Format)
	}
	if !bytes.Equal(seg.PCM, pcm) {
		t.Fatalf("unexpected pcm %v", seg.PCM)
	}
	if seg.Frames() != 3 {
		t.Fatalf("expected 3 frames, got %d", seg.Frames())
	}
}

func TestDecodeUnsetDataSize(t *testing.T) {
	f := NewFormat(16000, 1, 16)
	data := rawWAV(f, []byte{9, 0, 8, 0})
	binary.LittleEndian.PutUint32(data[len(data)-8:], 0xFFFFFFFF)
	seg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(seg.PCM) != 4 {
		t.Fatalf("expected 4 pcm bytes, got %d", len(seg.PCM))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`{"error":"quota exceeded"}`))
	if !errors.Is(err, ErrInvalidContainer) {
		t.Fatalf("expected ErrInvalidContainer, got %v", err)
	}
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	f := NewFormat(22050, 2, 16)
	pcm := []byte{0x10, 0x00, 0xF0, 0xFF, 0x00, 0x80, 0xFF, 0x7F}
	data, err := EncodeWAV(f, pcm)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing header: %q", data[:12])
	}
	seg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !seg.Format.Compatible(f) {
		t.Fatalf("format changed: %s vs %s", seg.Format, f)
	}
	if !bytes.Equal(seg.PCM, pcm) {
		t.Fatalf("pcm changed: %v vs %v", seg.PCM, pcm)
	}
}

func TestEncodeWAVRejectsMisalignedPCM(t *testing.T) {
	if _, err := EncodeWAV(NewFormat(24000, 1, 16), []byte{1, 2, 3}); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestSilence(t *testing.T) {
	f := NewFormat(24000, 1, 16)
	gap := f.Silence(450)
	if f.Frames(len(gap)) != 10800 {
		t.Fatalf("expected 10800 frames, got %d", f.Frames(len(gap)))
	}
	for _, b := range gap {
		if b != 0 {
			t.Fatal("expected zeroed silence")
		}
	}
	if f.Millis(f.Frames(len(gap))) != 450 {
		t.Fatalf("expected 450ms")
	}

	unsigned := NewFormat(8000, 1, 8).Silence(10)
	if len(unsigned) != 80 || unsigned[0] != 0x80 {
		t.Fatalf("expected 80 bytes of 0x80, got %d bytes starting %x", len(unsigned), unsigned[0])
	}
	if f.Silence(0) != nil {
		t.Fatal("expected no silence for zero gap")
	}
}

func TestCompatible(t *testing.T) {
	a := NewFormat(24000, 1, 16)
	if !a.Compatible(NewFormat(24000, 1, 16)) {
		t.Fatal("identical formats must be compatible")
	}
	if a.Compatible(NewFormat(22050, 1, 16)) {
		t.Fatal("sample rate change must be incompatible")
	}
	if a.Compatible(NewFormat(24000, 2, 16)) {
		t.Fatal("channel change must be incompatible")
	}
}
