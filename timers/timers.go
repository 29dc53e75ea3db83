// Package timers implements the per-connection timers the state machine
// relies on but does not itself schedule: the retransmission timer (with
// exponential backoff, the way the teacher's reconnect logic backs off
// reconnection attempts), a round-trip time estimator, and the 2MSL
// TIME-WAIT timer. All are built on stdlib time.Timer/time.AfterFunc,
// matching the teacher's own pconn.go emptyMapTimer and
// reconnecting_connection.go backoff loop - there is no timer library
// in the example pack to reach for instead.
package timers

import (
	"sync"
	"time"
)

const (
	minRTO     = 200 * time.Millisecond
	maxRTO     = 60 * time.Second
	defaultRTO = time.Second
)

// RTTM is a simplified Jacobson/Karels round-trip time estimator: SRTT
// and RTTVAR smoothed with the standard 1/8, 1/4 gains, producing an RTO
// per RFC 6298.
type RTTM struct {
	mu       sync.Mutex
	srtt     time.Duration
	rttvar   time.Duration
	rto      time.Duration
	measured bool
}

func NewRTTM() *RTTM {
	return &RTTM{rto: defaultRTO}
}

// Sample feeds one round-trip measurement in.
func (r *RTTM) Sample(rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.measured {
		r.srtt = rtt
		r.rttvar = rtt / 2
		r.measured = true
	} else {
		diff := r.srtt - rtt
		if diff < 0 {
			diff = -diff
		}
		r.rttvar = r.rttvar - r.rttvar/4 + diff/4
		r.srtt = r.srtt - r.srtt/8 + rtt/8
	}
	rto := r.srtt + 4*r.rttvar
	r.rto = clampRTO(rto)
}

// RTO returns the current retransmission timeout estimate.
func (r *RTTM) RTO() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rto
}

func clampRTO(d time.Duration) time.Duration {
	if d < minRTO {
		return minRTO
	}
	if d > maxRTO {
		return maxRTO
	}
	return d
}

// RetransmitTimer fires fn after the RTTM's current RTO, doubling the
// RTO (classic exponential backoff) every time it fires without being
// stopped first, the way a dropped ACK keeps pushing retransmissions
// further apart.
type RetransmitTimer struct {
	mu      sync.Mutex
	rttm    *RTTM
	timer   *time.Timer
	backoff time.Duration
	active  bool
}

func NewRetransmitTimer(rttm *RTTM) *RetransmitTimer {
	return &RetransmitTimer{rttm: rttm}
}

// Start (re)arms the timer at the current backoff (or the RTTM's base
// RTO if this is the first arm since the last successful ack).
func (t *RetransmitTimer) Start(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.backoff == 0 {
		t.backoff = t.rttm.RTO()
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.active = true
	t.timer = time.AfterFunc(t.backoff, fn)
}

// Backoff doubles the retransmission interval and re-arms, called from
// fn itself when a retransmission timeout fires and data is still
// outstanding.
func (t *RetransmitTimer) Backoff(fn func()) {
	t.mu.Lock()
	t.backoff = clampRTO(t.backoff * 2)
	t.mu.Unlock()
	t.Start(fn)
}

// Stop disarms the timer and resets the backoff, called once an ack
// covers all outstanding data.
func (t *RetransmitTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.active = false
	t.backoff = 0
}

func (t *RetransmitTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// TimeWaitTimer is the 2MSL timer TIME-WAIT starts on entry and restarts
// on a retransmitted FIN.
type TimeWaitTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	msl   time.Duration
}

func NewTimeWaitTimer(msl time.Duration) *TimeWaitTimer {
	return &TimeWaitTimer{msl: msl}
}

func (t *TimeWaitTimer) Start(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(2*t.msl, fn)
}

func (t *TimeWaitTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
}
