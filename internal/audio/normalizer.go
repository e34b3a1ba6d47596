package audio

import (
	"bytes"
	"fmt"
	"strings"
)

// Result is the outcome of a normalization pass. When Passthrough is true
// the original bytes are returned unconverted and the accompanying error
// explains why; the transcription stage still attempts them directly.
type Result struct {
	Data        []byte
	MimeType    string
	Passthrough bool
}

type strategy func(data []byte) ([]byte, string, error)

// Normalizer canonicalizes uploaded audio containers into the forms the
// transcription backends accept. It works at the container level: fixing a
// lying declared mime type, stripping metadata prefixes, and verifying
// magic bytes. It never re-encodes samples.
type Normalizer struct {
	strategies map[string]strategy
}

func NewNormalizer() *Normalizer {
	n := &Normalizer{strategies: map[string]strategy{}}
	n.strategies["audio/ogg"] = expectMagic("OggS", "audio/ogg")
	n.strategies["audio/opus"] = expectMagic("OggS", "audio/ogg")
	n.strategies["audio/wav"] = decodeWAV
	n.strategies["audio/x-wav"] = decodeWAV
	n.strategies["audio/wave"] = decodeWAV
	n.strategies["audio/flac"] = expectMagic("fLaC", "audio/flac")
	n.strategies["audio/x-flac"] = expectMagic("fLaC", "audio/flac")
	n.strategies["audio/mpeg"] = decodeMP3
	n.strategies["audio/mp3"] = decodeMP3
	n.strategies["audio/mp4"] = decodeMP4
	n.strategies["audio/x-m4a"] = decodeMP4
	n.strategies["audio/aac"] = decodeAAC
	return n
}

// Normalize maps the declared mime type to a decode strategy; unrecognized
// types fall through to content sniffing. On decode failure the original
// bytes come back unconverted with a non-nil error so the caller can log
// the failure and let the transcription cascade attempt them anyway.
func (n *Normalizer) Normalize(data []byte, declaredMime string) (Result, error) {
	mime := canonicalMime(declaredMime)

	st, ok := n.strategies[mime]
	if !ok {
		st = sniffStrategy
	}

	out, outMime, err := st(data)
	if err != nil {
		// Best-effort second pass: the declared type lied, trust the bytes.
		if sniffed := sniffMime(data); sniffed != "" && sniffed != mime {
			return result(data, sniffed, false), nil
		}
		return result(data, mime, true), fmt.Errorf("normalize %q: %w", declaredMime, err)
	}
	return result(out, outMime, false), nil
}

func result(data []byte, mime string, passthrough bool) Result {
	return Result{Data: data, MimeType: mime, Passthrough: passthrough}
}

func canonicalMime(declared string) string {
	m := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i]) // drop codec parameters: audio/ogg; codecs=opus
	}
	if m == "" {
		m = "application/octet-stream"
	}
	return m
}

func expectMagic(magic, mime string) strategy {
	return func(data []byte) ([]byte, string, error) {
		if !bytes.HasPrefix(data, []byte(magic)) {
			return nil, "", fmt.Errorf("missing %s magic", magic)
		}
		return data, mime, nil
	}
}

func decodeWAV(data []byte) ([]byte, string, error) {
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, "", fmt.Errorf("not a RIFF/WAVE container")
	}
	return data, "audio/wav", nil
}

// decodeMP3 strips an ID3v2 prefix so the payload starts at the first MPEG
// frame, then verifies the frame sync.
func decodeMP3(data []byte) ([]byte, string, error) {
	if bytes.HasPrefix(data, []byte("ID3")) {
		data = stripID3v2(data)
	}
	if !hasMPEGSync(data) {
		return nil, "", fmt.Errorf("no MPEG frame sync")
	}
	return data, "audio/mpeg", nil
}

func decodeMP4(data []byte) ([]byte, string, error) {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return nil, "", fmt.Errorf("no ftyp box")
	}
	return data, "audio/mp4", nil
}

func decodeAAC(data []byte) ([]byte, string, error) {
	// Raw ADTS stream: 12-bit sync 0xFFF.
	if len(data) < 2 || data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return nil, "", fmt.Errorf("no ADTS sync")
	}
	return data, "audio/aac", nil
}

func sniffStrategy(data []byte) ([]byte, string, error) {
	if m := sniffMime(data); m != "" {
		if m == "audio/mpeg" {
			return decodeMP3(data)
		}
		return data, m, nil
	}
	return nil, "", fmt.Errorf("unrecognized audio container")
}

func sniffMime(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "audio/wav"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "audio/flac"
	case bytes.HasPrefix(data, []byte("ID3")), hasMPEGSync(data):
		return "audio/mpeg"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "audio/mp4"
	default:
		return ""
	}
}

func stripID3v2(data []byte) []byte {
	if len(data) < 10 {
		return data
	}
	// Syncsafe 28-bit size at bytes 6..9, excluding the 10-byte header.
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	end := 10 + size
	if end >= len(data) {
		return data
	}
	return data[end:]
}

func hasMPEGSync(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
