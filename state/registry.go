package state

// ForTag resolves a Tag to its singleton State variant. conn.Connection
// uses this so SetState can be driven purely by Tag (e.g. when restoring
// PrevStateTag) without every caller needing its own switch.
func ForTag(t Tag) State {
	switch t {
	case Closed:
		return ClosedState
	case Listen:
		return ListenState
	case SynSent:
		return SynSentState
	case SynReceived:
		return SynReceivedState
	case Established:
		return EstablishedState
	case FinWait1:
		return FinWait1State
	case FinWait2:
		return FinWait2State
	case CloseWait:
		return CloseWaitState
	case Closing:
		return ClosingState
	case LastAck:
		return LastAckState
	case TimeWait:
		return TimeWaitState
	default:
		return ClosedState
	}
}
