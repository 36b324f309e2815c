package transcriber

import "sync/atomic"

type HandleState int32

const (
	HandlePending HandleState = iota
	HandleOpen
	HandleClosed
)

func (s HandleState) String() string {
	switch s {
	case HandlePending:
		return "pending"
	case HandleOpen:
		return "open"
	case HandleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle tracks the Pending -> Open -> Closed lifecycle of a stream handle.
// Transitions only move forward.
type Handle struct {
	state atomic.Int32
}

func (h *Handle) State() HandleState {
	return HandleState(h.state.Load())
}

func (h *Handle) IsOpen() bool {
	return h.State() == HandleOpen
}

// MarkOpen moves Pending to Open and reports whether it did.
func (h *Handle) MarkOpen() bool {
	return h.state.CompareAndSwap(int32(HandlePending), int32(HandleOpen))
}

// MarkClosed reports true only for the first caller.
func (h *Handle) MarkClosed() bool {
	for {
		cur := h.state.Load()
		if HandleState(cur) == HandleClosed {
			return false
		}
		if h.state.CompareAndSwap(cur, int32(HandleClosed)) {
			return true
		}
	}
}
