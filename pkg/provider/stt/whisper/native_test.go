package whisper_test

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/voxhire/pkg/provider/stt"
	"github.com/MrWong99/voxhire/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNativeTranscribe_Silence(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t), whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	// One second of silence should not produce meaningful speech.
	text, err := p.Transcribe(context.Background(), make([]byte, 32000), stt.Options{MimeType: stt.MimePCM})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	t.Logf("silence transcript: %q", text)
}

func TestNativeTranscribe_RejectsContainer(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	if _, err := p.Transcribe(context.Background(), []byte{1, 2, 3, 4}, stt.Options{MimeType: stt.MimeWebM}); err == nil {
		t.Fatal("expected error for webm input")
	}
}
