package audio

import (
	"bytes"
	"testing"
)

func oggBytes() []byte  { return append([]byte("OggS"), make([]byte, 32)...) }
func flacBytes() []byte { return append([]byte("fLaC"), make([]byte, 32)...) }

func wavBytes() []byte {
	b := make([]byte, 44)
	copy(b, "RIFF")
	copy(b[8:], "WAVE")
	return b
}

func mp3Bytes() []byte {
	return []byte{0xFF, 0xFB, 0x90, 0x00, 0x01, 0x02, 0x03}
}

func mp3WithID3() []byte {
	// 10-byte ID3v2 header, syncsafe size 6, then 6 tag bytes, then frames.
	tag := []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 6, 1, 2, 3, 4, 5, 6}
	return append(tag, mp3Bytes()...)
}

func TestNormalizeOpusToOgg(t *testing.T) {
	t.Parallel()

	n := NewNormalizer()
	res, err := n.Normalize(oggBytes(), "audio/opus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MimeType != "audio/ogg" {
		t.Fatalf("expected audio/ogg, got %s", res.MimeType)
	}
}

func TestNormalizeDropsCodecParameters(t *testing.T) {
	t.Parallel()

	n := NewNormalizer()
	res, err := n.Normalize(oggBytes(), "audio/ogg; codecs=opus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MimeType != "audio/ogg" {
		t.Fatalf("expected audio/ogg, got %s", res.MimeType)
	}
}

func TestNormalizeStripsID3(t *testing.T) {
	t.Parallel()

	n := NewNormalizer()
	res, err := n.Normalize(mp3WithID3(), "audio/mpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(res.Data, mp3Bytes()) {
		t.Fatalf("ID3 prefix not stripped: % x", res.Data[:4])
	}
}

func TestNormalizeCorrectsLyingMime(t *testing.T) {
	t.Parallel()

	n := NewNormalizer()
	// Declared mp3, actually wav.
	res, err := n.Normalize(wavBytes(), "audio/mpeg")
	if err != nil {
		t.Fatalf("expected sniff recovery, got error: %v", err)
	}
	if res.MimeType != "audio/wav" {
		t.Fatalf("expected sniffed audio/wav, got %s", res.MimeType)
	}
	if res.Passthrough {
		t.Fatal("sniff recovery should not be flagged passthrough")
	}
}

func TestNormalizeUnknownMimeSniffs(t *testing.T) {
	t.Parallel()

	n := NewNormalizer()
	res, err := n.Normalize(flacBytes(), "application/octet-stream")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MimeType != "audio/flac" {
		t.Fatalf("expected audio/flac, got %s", res.MimeType)
	}
}

func TestNormalizeGarbagePassesThrough(t *testing.T) {
	t.Parallel()

	n := NewNormalizer()
	garbage := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	res, err := n.Normalize(garbage, "audio/ogg")
	if err == nil {
		t.Fatal("expected an error for unrecognizable bytes")
	}
	if !res.Passthrough {
		t.Fatal("failed normalization must flag passthrough")
	}
	if !bytes.Equal(res.Data, garbage) {
		t.Fatal("passthrough must return the original bytes")
	}
}
