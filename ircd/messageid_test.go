package ircd

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageIDGeneratorFormat(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	g := &MessageIDGenerator{uid: "000AAAAAA", now: func() time.Time { return clock }, rng: rand.New(rand.NewSource(1))}

	id := g.Next("")
	assert.True(t, strings.HasPrefix(id, "1"))
	assert.Equal(t, 1+10+3+6+9, len(id))
	assert.True(t, strings.HasSuffix(id, "000AAAAAA"))
}

func TestMessageIDGeneratorMonotonicWithinSameSecond(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	g := &MessageIDGenerator{uid: "000AAAAAA", now: func() time.Time { return clock }, rng: rand.New(rand.NewSource(1))}

	first := g.Next("")
	second := g.Next("")
	assert.NotEqual(t, first, second)
	assert.True(t, second > first)
}

func TestMessageIDGeneratorAppendsChannelSuffix(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	g := &MessageIDGenerator{uid: "000AAAAAA", now: func() time.Time { return clock }, rng: rand.New(rand.NewSource(1))}

	withChannel := g.Next("#test")
	withoutChannel := g.Next("")
	assert.True(t, strings.HasPrefix(withChannel, "1"))
	assert.Greater(t, len(withChannel), len(withoutChannel))
}
