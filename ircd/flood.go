package ircd

import "time"

// floodState tracks flood score: every inbound line adds to a float
// score; the score decays at a configured rate per second and is
// capped at a configured maximum. Exceeding a hard line-count cap
// drops the client with "Excess Flood".
type floodState struct {
	now   func() time.Time
	last  time.Time
	score float64

	burstMax  float64
	decayRate float64
	maxLines  int
	seen      int
}

func newFloodState(now func() time.Time) *floodState {
	return &floodState{
		now:       now,
		last:      now(),
		burstMax:  20.0,
		decayRate: 1.0,
		maxLines:  ClampFloodMaxLines(0), // falls back to the default clamp
	}
}

// Spend charges the bucket for one parsed line.
func (f *floodState) Spend() {
	f.decay()
	f.score++
	f.seen++
}

// Exceeded reports whether the client should be dropped for excess
// flood: either the decayed score is over its cap, or the hard
// line-count cap was hit within the current burst window.
func (f *floodState) Exceeded() bool {
	f.Spend()
	return f.score > f.burstMax || f.seen > f.maxLines
}

func (f *floodState) decay() {
	t := f.now()
	elapsed := t.Sub(f.last).Seconds()
	f.last = t
	f.score -= elapsed * f.decayRate
	if f.score < 0 {
		f.score = 0
		f.seen = 0
	}
}

const (
	clientFloodMin = 20
	clientFloodMax = 1000
)

// ClampFloodMaxLines reproduces the CLIENT_FLOOD_MAX clamp asymmetry:
// a configured value above the maximum is silently lowered to it, but
// a configured value below the minimum is raised to the *maximum*, not
// the minimum. Kept as-is rather than "corrected" to clamp low values
// to clientFloodMin, since existing configs may already rely on it.
func ClampFloodMaxLines(configured int) int {
	if configured <= 0 {
		configured = clientFloodMax
	}
	if configured > clientFloodMax {
		return clientFloodMax
	}
	if configured < clientFloodMin {
		return clientFloodMax
	}
	return configured
}
