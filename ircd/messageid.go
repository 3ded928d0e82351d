package ircd

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MessageIDGenerator produces msgid values of the form:
//
//	'1' + 10-digit seconds + 3-digit ms + 6-digit counter + 9-char UID + base64(channel)
//
// Monotonicity is per-server; collision-freedom across the network
// comes from the UID suffix. The counter's randomized seed on each new
// second makes ids harder to predict but is not a correctness
// requirement.
type MessageIDGenerator struct {
	mu      sync.Mutex
	uid     string
	lastSec int64
	lastMs  int64
	counter int64
	rng     *rand.Rand
	now     func() time.Time
}

// NewMessageIDGenerator constructs a generator for the given 9-char
// source UID.
func NewMessageIDGenerator(uid string) *MessageIDGenerator {
	return &MessageIDGenerator{
		uid: uid,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// Next returns a new message-id. channel is the target channel name
// ("" for a non-channel target), base64-encoded without padding.
func (g *MessageIDGenerator) Next(channel string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now()
	sec := t.Unix()
	ms := int64(t.Nanosecond() / 1e6)

	if sec > g.lastSec {
		g.lastSec, g.lastMs = sec, ms
		g.counter = g.rng.Int63n(1000)
	} else {
		if ms > g.lastMs {
			g.lastMs = ms
		}
		g.counter++
		if g.counter >= 1000000 {
			g.counter = 0
			g.lastMs++
			if g.lastMs >= 1000 {
				g.lastMs = 0
				g.lastSec++
			}
		}
	}

	id := fmt.Sprintf("1%010d%03d%06d%s", g.lastSec, g.lastMs, g.counter, g.uid)
	if channel != "" {
		id += base64.RawStdEncoding.EncodeToString([]byte(channel))
	}
	return id
}
