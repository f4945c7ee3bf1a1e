// Package audio normalises inbound candidate audio before it reaches a
// speech-to-text backend.
//
// Browsers deliver audio in one of three shapes: raw PCM frames from an
// AudioWorklet, individual Opus packets from WebCodecs, or opaque container
// segments (WebM/Ogg) from MediaRecorder. [ChunkDecoder] turns Opus packets
// into PCM and labels every PCM chunk with its source format. Conversion to
// 16 kHz mono happens once per turn in [Normalise], on the joined buffer, so
// chunk boundaries never split a sample or break interpolation.
package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// Normalised MIME types produced by ChunkDecoder.
const (
	MimePCM  = "audio/pcm"
	MimeOpus = "audio/opus"
)

// ChunkDecoder converts inbound chunks for a single stream. Not safe for
// concurrent use; callers serialise chunks per session anyway.
type ChunkDecoder struct {
	opus *OpusDecoder
}

// NewChunkDecoder returns a decoder. The Opus decoder is created lazily on
// the first Opus chunk.
func NewChunkDecoder() *ChunkDecoder {
	return &ChunkDecoder{}
}

// Decode returns the chunk ready for buffering and the MIME type describing
// it. Chunks with the same returned MIME type can be concatenated.
//
//   - audio/opus: decoded to 48 kHz PCM, labelled "audio/pcm;rate=48000;channels=1".
//   - audio/pcm;rate=N;channels=C: returned unchanged. The label is plain
//     "audio/pcm" for 16 kHz mono and carries rate and channels otherwise.
//   - anything else: returned as is under its base type.
func (d *ChunkDecoder) Decode(chunk []byte, mime string) ([]byte, string, error) {
	base, params := parseMime(mime)
	switch base {
	case MimeOpus:
		if d.opus == nil {
			dec, err := NewOpusDecoder(1)
			if err != nil {
				return nil, "", err
			}
			d.opus = dec
		}
		pcm, err := d.opus.Decode(chunk)
		if err != nil {
			return nil, "", err
		}
		return pcm, PCMMime(d.opus.Format()), nil
	case MimePCM, "audio/l16", "audio/raw", "":
		src := STTFormat
		if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
			src.SampleRate = v
		}
		if v, err := strconv.Atoi(params["channels"]); err == nil && v > 0 {
			src.Channels = v
		}
		if src.Channels > 2 {
			return nil, "", fmt.Errorf("audio: unsupported channel count %d", src.Channels)
		}
		return chunk, PCMMime(src), nil
	}
	return chunk, base, nil
}

// PCMMime labels 16-bit PCM in format f. The STT format is plain "audio/pcm".
func PCMMime(f Format) string {
	if f == STTFormat {
		return MimePCM
	}
	return fmt.Sprintf("%s;rate=%d;channels=%d", MimePCM, f.SampleRate, f.Channels)
}

// Normalise converts a joined turn buffer labelled by [ChunkDecoder.Decode]
// to 16 kHz mono PCM. STT-format PCM and container audio are returned
// unchanged.
func Normalise(data []byte, mime string) ([]byte, string, error) {
	base, params := parseMime(mime)
	if base != MimePCM {
		return data, mime, nil
	}
	src := STTFormat
	if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
		src.SampleRate = v
	}
	if v, err := strconv.Atoi(params["channels"]); err == nil && v > 0 {
		src.Channels = v
	}
	if src == STTFormat {
		return data, MimePCM, nil
	}
	out, err := ToMono16(data, src, STTFormat.SampleRate)
	if err != nil {
		return nil, "", err
	}
	return out, MimePCM, nil
}

// parseMime splits "audio/pcm; rate=48000" into its lower-cased base type and
// parameters.
func parseMime(mime string) (string, map[string]string) {
	parts := strings.Split(mime, ";")
	base := strings.ToLower(strings.TrimSpace(parts[0]))
	params := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return base, params
}
