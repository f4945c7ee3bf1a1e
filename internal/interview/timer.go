package interview

import "time"

// timerSlot holds at most one pending timer of a kind. Arming cancels the
// previous timer first. A generation counter lets a callback that lost the
// race with cancel recognise itself as stale.
//
// timerSlot has no lock of its own; every method must be called with the
// owning session's mutex held, including claim from inside the callback.
type timerSlot struct {
	t   *time.Timer
	gen uint64
}

// arm schedules fire after d. fire runs on its own goroutine and receives
// the generation it was armed with; it must take the session lock and call
// claim before acting.
func (s *timerSlot) arm(d time.Duration, fire func(gen uint64)) {
	s.cancel()
	gen := s.gen
	s.t = time.AfterFunc(d, func() { fire(gen) })
}

// cancel stops the pending timer, if any, and invalidates its generation.
func (s *timerSlot) cancel() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
	s.gen++
}

// claim reports whether gen is the live arming and retires it.
func (s *timerSlot) claim(gen uint64) bool {
	if s.t == nil || gen != s.gen {
		return false
	}
	s.t = nil
	s.gen++
	return true
}

func (s *timerSlot) armed() bool { return s.t != nil }
