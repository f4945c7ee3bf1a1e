package interview

import (
	"context"
	"time"
	"unicode"

	"github.com/MrWong99/voxhire/internal/config"
	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/pkg/audio"
	"github.com/MrWong99/voxhire/pkg/provider/tts"
	"github.com/MrWong99/voxhire/pkg/types"
)

type deliverOpts struct {
	greeting bool
	fallback bool
}

// deliver persists and emits an interviewer line, plays it and hands the
// floor back to the candidate. The caller must have moved the session to
// thinking.
func (s *Session) deliver(ctx context.Context, text string, opts deliverOpts) {
	msg := types.ConversationMessage{Role: types.RoleAssistant, Content: text, Timestamp: s.now()}
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.appendHistoryLocked(msg)
	s.mu.Unlock()

	stored := s.persist(ctx, msg)

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(StateSpeaking)
	s.greeted = true
	s.broadcastLocked(EventAIText, AITextPayload{
		MessageID: stored.ID,
		Text:      text,
		Greeting:  opts.greeting,
		Fallback:  opts.fallback,
	})
	server := s.ttsMode == config.TTSServer && s.deps.TTS != nil
	voice := s.voiceLocked()
	s.mu.Unlock()

	chunks := 0
	if server {
		chunks = s.streamSpeech(ctx, text, voice)
	}
	if chunks == 0 {
		t := time.NewTimer(SpeechDelay(text, s.cfg.SpeakingRate, s.cfg.MinSpeechDelay, s.cfg.MaxSpeechDelay))
		select {
		case <-t.C:
		case <-s.done:
			t.Stop()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return
	}
	s.broadcastLocked(EventAssistantAudioDone, AudioDonePayload{Streamed: chunks > 0, Chunks: chunks})
	s.transitionLocked(StateListening)
}

// streamSpeech synthesises text and forwards the audio to the candidate. It
// returns the number of chunks sent; zero means the caller should fall back
// to an estimated delay. A stream that stalls for longer than the generation
// timeout is abandoned.
func (s *Session) streamSpeech(ctx context.Context, text string, voice types.VoiceProfile) int {
	ctx, span := observe.StartSpan(ctx, "interview.tts")
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := observe.Logger(ctx)
	start := s.now()

	audioCh, err := s.deps.TTS.SynthesizeStream(ctx, tts.Text(text), voice)
	if err != nil {
		log.Warn("speech synthesis failed, using estimated delay", "err", err)
		s.recordCall(ctx, span, s.deps.Names.TTS, "tts", start, err)
		return 0
	}

	idle := time.NewTimer(s.cfg.GenerationTimeout)
	defer idle.Stop()
	seq := 0
	for {
		select {
		case chunk, ok := <-audioCh:
			if !ok {
				s.recordCall(ctx, span, s.deps.Names.TTS, "tts", start, nil)
				return seq
			}
			if len(chunk) == 0 {
				continue
			}
			s.mu.Lock()
			if s.state == StateDisposed {
				s.mu.Unlock()
				go audio.Drain(audioCh)
				return seq
			}
			s.sendCandidateLocked(EventAudioPlayback, AudioPlaybackPayload{
				Seq:        seq,
				Data:       chunk,
				MimeType:   s.format.MimeType,
				SampleRate: s.format.SampleRate,
			})
			s.mu.Unlock()
			seq++
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.GenerationTimeout)
		case <-idle.C:
			log.Warn("speech synthesis stalled", "chunks", seq)
			s.recordCall(ctx, span, s.deps.Names.TTS, "tts", start, errAwaitTimeout)
			go audio.Drain(audioCh)
			return seq
		case <-s.done:
			go audio.Drain(audioCh)
			return seq
		}
	}
}

// SpeechDelay estimates how long text takes to say at rate non-space
// characters per second, clamped to [lo, hi].
func SpeechDelay(text string, rate float64, lo, hi time.Duration) time.Duration {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	var d time.Duration
	if rate > 0 {
		d = time.Duration(float64(n) / rate * float64(time.Second))
	}
	return min(max(d, lo), hi)
}
