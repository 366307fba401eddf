//go:build linux

package v4l2

// State represents the device handle's lifecycle stage. The stages mirror the
// ordering the kernel expects: capabilities are only known once opened, buffers
// can only exist once a format is set, and streaming can only run on an
// allocated queue.
type State string

const (
	// StateClosed means the handle has no descriptor. Nothing about the
	// hardware is known in this state.
	StateClosed State = "closed"
	// StateOpened means the descriptor is open and capabilities are known,
	// but no format has been negotiated yet.
	StateOpened State = "opened"
	// StateFormatSet means a format has been negotiated and buffers may be
	// allocated against it.
	StateFormatSet State = "format-set"
	// StateAllocated means a buffer queue exists. Slots may be queued and
	// streaming may start.
	StateAllocated State = "allocated"
	// StateStreaming means the device is actively processing queued slots.
	StateStreaming State = "streaming"
)

// Update moves the current state, s, to next if the transition is legal and f
// succeeds. If either check or f fails, s stays unchanged.
func (s *State) Update(next State, f func() error) error {
	m := map[State]func() error{
		StateClosed:    s.toClosed,
		StateOpened:    s.toOpened,
		StateFormatSet: s.toFormatSet,
		StateAllocated: s.toAllocated,
		StateStreaming: s.toStreaming,
	}

	if err := m[next](); err != nil {
		return err
	}

	err := f()
	if err == nil {
		*s = next
	}
	return err
}

func (s *State) toClosed() error {
	return nil
}

func (s *State) toOpened() error {
	if *s != StateClosed {
		return &SequencingError{From: *s, To: StateOpened}
	}
	return nil
}

func (s *State) toFormatSet() error {
	// Renegotiation is allowed, and freeing buffers falls back here. The
	// format-while-allocated case is rejected by the handle, which knows
	// whether a queue still exists.
	switch *s {
	case StateOpened, StateFormatSet, StateAllocated:
		return nil
	}
	return &SequencingError{From: *s, To: StateFormatSet}
}

func (s *State) toAllocated() error {
	switch *s {
	case StateFormatSet, StateStreaming:
		return nil
	}
	return &SequencingError{From: *s, To: StateAllocated}
}

func (s *State) toStreaming() error {
	if *s != StateAllocated {
		return &SequencingError{From: *s, To: StateStreaming}
	}
	return nil
}
