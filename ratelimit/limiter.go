// Package ratelimit implements the Rate Limiter (spec §4.5): sliding-window
// counters for requests-per-minute, tokens-per-minute, and requests-per-day
// per (provider, model), with reserve/commit semantics. The in-process ring
// is authoritative; an optional Redis-backed ring (ring_redis.go) shares
// state across co-located processes on one host without violating the
// no-distributed-coordination non-goal. Grounded on the teacher's
// per-key sync.RWMutex discipline in llm/budget/token_budget.go, adapted
// to a genuinely sliding (not fixed-reset) window.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/harrowgate/llmgate/types"
)

// Outcome is the result of Reserve.
type Outcome string

const (
	Ready     Outcome = "ready"
	WaitHint  Outcome = "wait_hint"
	Exhausted Outcome = "exhausted"
)

// Reservation is the result of a Reserve call.
type Reservation struct {
	Outcome    Outcome
	WaitFor    time.Duration
	Reason     string
	windowKind string
	estTokens  int
}

// Ring is the pluggable sliding-window backend. InProcessRing (ring.go) is
// the default; RedisRing (ring_redis.go) is the optional shared backend.
type Ring interface {
	// RecordRequest adds a request timestamp to the rpm/rpd windows.
	RecordRequest(key string, at time.Time)
	// RecordTokens adds committed or reserved tokens to the tpm window.
	RecordTokens(key string, at time.Time, tokens int)
	// CountRequestsSince counts request timestamps >= since.
	CountRequestsSince(key string, since time.Time) int
	// SumTokensSince sums token entries >= since.
	SumTokensSince(key string, since time.Time) int
	// OldestRequestSince returns the oldest request timestamp >= since, or
	// the zero time if none.
	OldestRequestSince(key string, since time.Time) time.Time
	// ReleaseReservation removes a previously recorded speculative token
	// reservation (Commit always releases it before recording actual tokens).
	ReleaseReservation(key string, id string)
	// ReserveTokens speculatively records estTokens under reservation id
	// so concurrent reservations see it immediately.
	ReserveTokens(key string, id string, at time.Time, estTokens int)
}

// Limiter enforces spec §4.5's three sliding windows per (provider, model).
type Limiter struct {
	ring Ring
}

func New(ring Ring) *Limiter {
	if ring == nil {
		ring = NewInProcessRing()
	}
	return &Limiter{ring: ring}
}

func key(provider, model string) string { return provider + "/" + model }

// Reserve implements spec §4.5: Ready, WaitHint(seconds), or
// Exhausted(reason). rpm=0 is the boundary case from spec §8: Exhausted
// immediately, regardless of history.
func (l *Limiter) Reserve(reservationID string, limits types.Limits, provider, model string, estimatedTokens int) Reservation {
	k := key(provider, model)
	now := time.Now()

	if limits.RPM == 0 {
		return Reservation{Outcome: Exhausted, Reason: "rpm limit is zero"}
	}

	minuteAgo := now.Add(-60 * time.Second)
	midnight := localMidnight(now)

	rpmCount := l.ring.CountRequestsSince(k, minuteAgo)
	if rpmCount >= limits.RPM {
		oldest := l.ring.OldestRequestSince(k, minuteAgo)
		wait := oldest.Add(60 * time.Second).Sub(now)
		if wait < 0 {
			wait = 0
		}
		return Reservation{Outcome: WaitHint, WaitFor: wait, windowKind: "rpm", estTokens: estimatedTokens}
	}

	if limits.TPM > 0 {
		tpmSum := l.ring.SumTokensSince(k, minuteAgo)
		if tpmSum+estimatedTokens > limits.TPM {
			oldest := l.ring.OldestRequestSince(k, minuteAgo)
			wait := oldest.Add(60 * time.Second).Sub(now)
			if wait < 0 {
				wait = 0
			}
			return Reservation{Outcome: WaitHint, WaitFor: wait, windowKind: "tpm", estTokens: estimatedTokens}
		}
	}

	if limits.RPD > 0 {
		rpdCount := l.ring.CountRequestsSince(k, midnight)
		if rpdCount >= limits.RPD {
			return Reservation{Outcome: Exhausted, Reason: "rpd limit reached"}
		}
	}

	l.ring.RecordRequest(k, now)
	l.ring.ReserveTokens(k, reservationID, now, estimatedTokens)

	return Reservation{Outcome: Ready, windowKind: "", estTokens: estimatedTokens}
}

// Commit finalizes a reservation with actual usage (spec §4.5).
func (l *Limiter) Commit(reservationID string, provider, model string, actualTokens int) {
	k := key(provider, model)
	l.ring.ReleaseReservation(k, reservationID)
	l.ring.RecordTokens(k, time.Now(), actualTokens)
}

func localMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (r Reservation) String() string {
	switch r.Outcome {
	case Ready:
		return "ready"
	case WaitHint:
		return fmt.Sprintf("wait_hint(%s, window=%s)", r.WaitFor, r.windowKind)
	default:
		return fmt.Sprintf("exhausted(%s)", r.Reason)
	}
}
