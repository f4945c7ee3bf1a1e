package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/voxhire/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	got := bytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	t.Parallel()
	stereo := samplesToBytes([]int16{32767, 32767, -32768, -32768})
	got := bytesToSamples(audio.StereoToMono(stereo))
	if got[0] != 32767 || got[1] != -32768 {
		t.Errorf("got %v, want [32767 -32768]", got)
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src, dst int
		in       int
		want     int
	}{
		{"same rate", 16000, 16000, 160, 160},
		{"downsample 48k to 16k", 48000, 16000, 480, 160},
		{"upsample 8k to 16k", 8000, 16000, 80, 160},
		{"zero src rate", 0, 16000, 80, 80},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pcm := samplesToBytes(make([]int16, tc.in))
			out := audio.ResampleMono16(pcm, tc.src, tc.dst)
			if got := len(out) / 2; got != tc.want {
				t.Errorf("samples = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestToMono16_StereoDownsample(t *testing.T) {
	t.Parallel()
	// 480 stereo frames at 48 kHz = 10 ms.
	pcm := samplesToBytes(make([]int16, 960))
	out, err := audio.ToMono16(pcm, audio.Format{SampleRate: 48000, Channels: 2}, 16000)
	if err != nil {
		t.Fatalf("ToMono16: %v", err)
	}
	if got := len(out) / 2; got != 160 {
		t.Errorf("samples = %d, want 160", got)
	}
}

func TestToMono16_UnsupportedChannels(t *testing.T) {
	t.Parallel()
	if _, err := audio.ToMono16([]byte{0, 0}, audio.Format{SampleRate: 16000, Channels: 6}, 16000); err == nil {
		t.Fatal("expected error for 6 channels")
	}
}

func TestFormatString(t *testing.T) {
	t.Parallel()
	if got := (audio.Format{SampleRate: 48000, Channels: 2}).String(); got != "48000Hz stereo" {
		t.Errorf("String() = %q", got)
	}
	if got := audio.STTFormat.String(); got != "16000Hz mono" {
		t.Errorf("String() = %q", got)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{1, -1, 2, -2, 3})
	wav := audio.EncodeWAV(pcm, 16000, 1)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}

	got, f, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 {
		t.Errorf("format = %v", f)
	}
	if string(got) != string(pcm) {
		t.Error("payload mismatch")
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{nil, []byte("RIFF"), []byte("OggS0000WAVEfmt ")} {
		if _, _, err := audio.DecodeWAV(in); !errors.Is(err, audio.ErrNotWAV) {
			t.Errorf("DecodeWAV(%q) err = %v, want ErrNotWAV", in, err)
		}
	}
}

func TestChunkDecoder_PCMWithRate(t *testing.T) {
	t.Parallel()
	d := audio.NewChunkDecoder()
	pcm := samplesToBytes(make([]int16, 480))
	out, mime, err := d.Decode(pcm, "audio/pcm; rate=48000")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mime != "audio/pcm;rate=48000;channels=1" {
		t.Errorf("mime = %q", mime)
	}
	if len(out) != len(pcm) {
		t.Errorf("Decode changed the chunk: %d bytes, want %d", len(out), len(pcm))
	}

	joined, mime, err := audio.Normalise(append(out, out...), mime)
	if err != nil {
		t.Fatalf("Normalise: %v", err)
	}
	if mime != audio.MimePCM {
		t.Errorf("normalised mime = %q", mime)
	}
	if got := len(joined) / 2; got != 320 {
		t.Errorf("samples = %d, want 320", got)
	}
}

func TestChunkDecoder_STTFormatUntouched(t *testing.T) {
	t.Parallel()
	d := audio.NewChunkDecoder()
	odd := []byte{1, 2, 3}
	out, mime, err := d.Decode(odd, "audio/pcm;rate=16000;channels=1")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mime != audio.MimePCM || string(out) != string(odd) {
		t.Errorf("Decode = %v %q, want the chunk unchanged as audio/pcm", out, mime)
	}
	joined, _, err := audio.Normalise(append(append([]byte{}, odd...), odd...), mime)
	if err != nil {
		t.Fatalf("Normalise: %v", err)
	}
	if len(joined) != 6 {
		t.Errorf("Normalise returned %d bytes, want 6", len(joined))
	}
}

func TestChunkDecoder_TooManyChannels(t *testing.T) {
	t.Parallel()
	if _, _, err := audio.NewChunkDecoder().Decode(make([]byte, 12), "audio/pcm;channels=6"); err == nil {
		t.Error("Decode accepted 6 channels")
	}
}

func TestChunkDecoder_ContainerPassThrough(t *testing.T) {
	t.Parallel()
	d := audio.NewChunkDecoder()
	in := []byte{0x1a, 0x45, 0xdf, 0xa3}
	out, mime, err := d.Decode(in, "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mime != "audio/webm" {
		t.Errorf("mime = %q, want audio/webm", mime)
	}
	if string(out) != string(in) {
		t.Error("container bytes were modified")
	}
}
