package interview

import (
	"bytes"
	"context"
	"fmt"

	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/pkg/audio"
)

// VoiceActivity is a client-side voice activity signal.
type VoiceActivity string

const (
	VoiceStart VoiceActivity = "speaking_start"
	VoiceStop  VoiceActivity = "speaking_stop"
)

// PushAudio appends a candidate audio chunk to the current turn buffer.
// Chunks that arrive while the interviewer has the floor, or while the
// candidate is on browser recognition, are dropped.
func (s *Session) PushAudio(ctx context.Context, chunk []byte, mime string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canAcceptInputLocked() || s.deps.STT == nil || !s.fallbackUntil.IsZero() {
		return nil
	}
	data, m, err := s.decoder.Decode(chunk, mime)
	if err != nil {
		observe.Logger(ctx).Warn("dropping undecodable audio chunk", "mime", mime, "err", err)
		return nil
	}
	if len(s.chunks) == 0 {
		s.bufMime = m
	} else if m != s.bufMime {
		observe.Logger(ctx).Warn("dropping audio chunk with a different format than the turn", "mime", m, "turn_mime", s.bufMime)
		return nil
	}
	s.chunks = append(s.chunks, data)
	// The length gate measures what the client sent, not the decoded size.
	s.bufBytes += len(chunk)
	s.lastChunkAt = s.now()
	s.idle.arm(s.cfg.IdleFlushDelay, s.onIdle)
	return nil
}

// VoiceActivity handles the client's speaking_start and speaking_stop
// signals. A start discards anything buffered so far; a stop schedules the
// end-of-turn flush.
func (s *Session) VoiceActivity(ctx context.Context, ev VoiceActivity) error {
	if ev != VoiceStart && ev != VoiceStop {
		return fmt.Errorf("interview: unknown voice activity %q", ev)
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canAcceptInputLocked() {
		s.inputGateLocked(string(ev))
		return nil
	}
	switch ev {
	case VoiceStart:
		s.vadStop.cancel()
		s.idle.cancel()
		s.clearBufferLocked()
	case VoiceStop:
		s.vadStop.arm(s.cfg.VADStopDelay, s.onVADStop)
	}
	return nil
}

func (s *Session) onVADStop(gen uint64) {
	s.mu.Lock()
	if !s.vadStop.claim(gen) {
		s.mu.Unlock()
		return
	}
	in := s.flushLocked()
	s.mu.Unlock()
	if in != nil {
		s.processTurn(in)
	}
}

// onIdle flushes once no chunk has arrived for the idle delay. A chunk that
// raced the timer pushes the deadline out instead.
func (s *Session) onIdle(gen uint64) {
	s.mu.Lock()
	if !s.idle.claim(gen) {
		s.mu.Unlock()
		return
	}
	if quiet := s.now().Sub(s.lastChunkAt); quiet < s.cfg.IdleFlushDelay {
		s.idle.arm(s.cfg.IdleFlushDelay-quiet, s.onIdle)
		s.mu.Unlock()
		return
	}
	in := s.flushLocked()
	s.mu.Unlock()
	if in != nil {
		s.processTurn(in)
	}
}

// flushLocked empties the buffer and returns the turn it held, or nil when
// there is nothing worth transcribing.
func (s *Session) flushLocked() *turnInput {
	s.vadStop.cancel()
	s.idle.cancel()
	if len(s.chunks) == 0 {
		return nil
	}
	if s.state != StateListening {
		s.clearBufferLocked()
		return nil
	}
	n, size := len(s.chunks), s.bufBytes
	if size < s.cfg.MinTurnBytes && n < s.cfg.MinTurnChunks {
		s.clearBufferLocked()
		observe.Logger(s.ctx).Debug("turn too short", "bytes", size, "chunks", n)
		s.metrics.RecordTurnRejection(s.ctx, string(reasonTooShort))
		s.registerEmptyTurnLocked(reasonTooShort)
		return nil
	}
	bufMime := s.bufMime
	data, mime, err := audio.Normalise(bytes.Join(s.chunks, nil), bufMime)
	s.clearBufferLocked()
	if err != nil {
		observe.Logger(s.ctx).Warn("dropping turn with unconvertible audio", "mime", bufMime, "err", err)
		return nil
	}
	return &turnInput{audio: data, mime: mime, source: sourceAudio}
}

func (s *Session) clearBufferLocked() {
	s.chunks = nil
	s.bufBytes = 0
	s.bufMime = ""
}
