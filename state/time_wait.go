package state

import "github.com/tcpcore/pseudotcp/segment"

type timeWaitState struct{ base }

var TimeWaitState State = timeWaitState{}

func (timeWaitState) Tag() Tag { return TimeWait }

func (timeWaitState) Close(c Conn) error { return nil }

// Handle runs the shared processing; the only event TIME-WAIT reacts to
// beyond the ordinary ACK bookkeeping is a retransmitted FIN from a peer
// that never saw our last ACK, which restarts the 2MSL timer.
func (timeWaitState) Handle(c Conn, seg *segment.Segment) Result {
	accepted, result := processSegment(c, seg)
	if result != OK {
		return result
	}
	if accepted && seg.Isset(segment.FlagFIN) {
		processFin(c)
		c.StartTimeWait()
	}
	return OK
}
