package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser encoders emit 48 kHz Opus; frames are at most 120 ms.
const (
	opusSampleRate = 48000
	opusMaxFrame   = opusSampleRate * 120 / 1000
)

// OpusDecoder wraps a gopus decoder for one inbound stream. Opus is stateful,
// so each candidate connection needs its own decoder.
type OpusDecoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewOpusDecoder creates a decoder for 48 kHz Opus with the given channel count.
func NewOpusDecoder(channels int) (*OpusDecoder, error) {
	if channels <= 0 {
		channels = 1
	}
	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, channels: channels}, nil
}

// Decode decodes one Opus packet into 16-bit little-endian PCM at 48 kHz with
// the decoder's channel layout.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, opusMaxFrame, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// Format reports the PCM format produced by Decode.
func (d *OpusDecoder) Format() Format {
	return Format{SampleRate: opusSampleRate, Channels: d.channels}
}

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
