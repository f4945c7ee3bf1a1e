package interview

import (
	"time"

	"github.com/MrWong99/voxhire/internal/observe"
)

type emptyReason string

const (
	reasonTooShort        emptyReason = "too_short"
	reasonEmptyTranscript emptyReason = "empty_transcript"
)

var hintMessages = map[string]string{
	string(reasonTooShort):        "That was very short. Keep talking until you have finished your answer.",
	string(reasonEmptyTranscript): "I didn't hear any words. Please check your microphone and speak a little louder.",
	"stt_error":                   "I couldn't catch that. Please try again.",
	"stt_timeout":                 "That took too long to process. Please try again.",
}

func (s *Session) hintLocked(reason string) {
	msg := hintMessages[reason]
	s.hintLimiter.Do(func() {
		s.sendCandidateLocked(EventSpeechCaptureHint, HintPayload{Reason: reason, Message: msg})
	})
}

// registerFailureLocked counts a recognition error or timeout.
func (s *Session) registerFailureLocked(reason string) {
	s.sttFailures++
	s.hintLocked(reason)
	if s.sttFailures >= s.cfg.STTFailureThreshold {
		s.escalateLocked("stt_failures")
	}
}

// registerEmptyTurnLocked counts a turn that produced no usable speech.
func (s *Session) registerEmptyTurnLocked(reason emptyReason) {
	s.sttEmpty++
	s.hintLocked(string(reason))
	if s.sttEmpty >= s.cfg.STTEmptyThreshold {
		s.escalateLocked("stt_empty_turns")
	}
}

func (s *Session) resetHealthLocked() {
	s.sttFailures = 0
	s.sttEmpty = 0
}

// escalateLocked moves recognition to the browser for the fallback hold.
func (s *Session) escalateLocked(reason string) {
	if !s.fallbackUntil.IsZero() {
		return
	}
	s.fallbackUntil = s.now().Add(s.cfg.FallbackHold)
	s.resetHealthLocked()
	s.clearBufferLocked()
	s.vadStop.cancel()
	s.idle.cancel()
	s.metrics.RecordEscalation(s.ctx, reason)
	observe.Logger(s.ctx).Warn("switching candidate to browser speech recognition",
		"reason", reason, "until", s.fallbackUntil)
	s.broadcastLocked(EventVoiceMode, s.voiceModeLocked(reason))
	s.recovery.arm(s.cfg.FallbackHold, s.onRecovery)
}

// onRecovery returns to server recognition if the backend is healthy again,
// otherwise extends the hold.
func (s *Session) onRecovery(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recovery.claim(gen) || s.state == StateDisposed {
		return
	}
	log := observe.Logger(s.ctx)
	if !s.serverSTTAvailable() {
		s.fallbackUntil = s.now().Add(s.cfg.FallbackHold)
		s.recovery.arm(s.cfg.FallbackHold, s.onRecovery)
		log.Info("server speech recognition still unavailable, extending browser fallback", "until", s.fallbackUntil)
		return
	}
	s.fallbackUntil = time.Time{}
	s.resetHealthLocked()
	vm := s.voiceModeLocked("hold_expired")
	vm.Recovered = true
	s.broadcastLocked(EventVoiceMode, vm)
	log.Info("server speech recognition restored")
}

func (s *Session) serverSTTAvailable() bool {
	if s.deps.STT == nil {
		return false
	}
	return s.deps.Probe == nil || s.deps.Probe.ServerSTTAvailable()
}
