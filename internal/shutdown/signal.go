package shutdown

import "sync/atomic"

// Signal is a write-once broadcast flag. Any number of goroutines may wait on
// Done; only the first Trigger has an effect.
type Signal struct {
	fired  atomic.Bool
	done   chan struct{}
	reason atomic.Value
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Trigger flips the flag. It returns true only for the call that did so.
func (s *Signal) Trigger(reason string) bool {
	if !s.fired.CompareAndSwap(false, true) {
		return false
	}
	s.reason.Store(reason)
	close(s.done)
	return true
}

// Done is closed once the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

func (s *Signal) Triggered() bool {
	return s.fired.Load()
}

// Reason is set before Done is closed.
func (s *Signal) Reason() string {
	v, _ := s.reason.Load().(string)
	return v
}
