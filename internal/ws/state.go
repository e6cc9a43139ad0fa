package ws

import "sync/atomic"

// ConnState is the lifecycle stage of a single-use websocket connection.
type ConnState int32

// Stages run Unopened → Connecting → Open → Closing → Closed. Connecting may
// fall back to Unopened after a failed dial. Closed is terminal.
const (
	StateUnopened ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

var stateNames = [...]string{"unopened", "connecting", "open", "closing", "closed"}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// State holds a ConnState that can be read and moved concurrently. Once it
// reaches StateClosed no operation moves it anywhere else.
type State struct {
	v atomic.Int32
}

func (s *State) Load() ConnState {
	return ConnState(s.v.Load())
}

// CompareAndSwap moves from old to next when the state is old. It refuses to
// leave StateClosed.
func (s *State) CompareAndSwap(old, next ConnState) bool {
	if old == StateClosed && next != StateClosed {
		return false
	}
	return s.v.CompareAndSwap(int32(old), int32(next))
}

// Close moves to StateClosed from any state and reports whether this call
// performed the move.
func (s *State) Close() bool {
	return s.v.Swap(int32(StateClosed)) != int32(StateClosed)
}
