package ircd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPropagatedBanIndexApplyInstallsIntoAddressIndex(t *testing.T) {
	clock := time.Unix(1000, 0)
	addr := NewAddressIndex()
	idx := NewPropagatedBanIndex(addr, func() time.Time { return clock })

	key := BanKey{Kind: ConfKill, User: "*", Host: "*.example.com"}
	rec := idx.Apply(BanMessage{
		Key:      key,
		Created:  clock,
		Hold:     clock.Add(time.Hour),
		Lifetime: clock.Add(2 * time.Hour),
		Reason:   "spam",
	})

	assert.Equal(t, "spam", rec.Reason)
	found := addr.FindKLine("host.example.com", "host.example.com", "user", nil)
	assert.Same(t, rec, found)
}

func TestPropagatedBanIndexApplyMergeExtendsLifetime(t *testing.T) {
	clock := time.Unix(1000, 0)
	addr := NewAddressIndex()
	idx := NewPropagatedBanIndex(addr, func() time.Time { return clock })

	key := BanKey{Kind: ConfKill, User: "*", Host: "*.example.com"}
	idx.Apply(BanMessage{
		Key:      key,
		Created:  clock,
		Hold:     clock.Add(time.Hour),
		Lifetime: clock.Add(4 * time.Hour),
	})

	// a second BAN for the same key with a shorter lifetime must not
	// shrink the tombstone window already recorded.
	merged := idx.Apply(BanMessage{
		Key:      key,
		Created:  clock,
		Hold:     clock.Add(time.Hour),
		Lifetime: clock.Add(2 * time.Hour),
	})

	assert.Equal(t, clock.Add(4*time.Hour), merged.Lifetime)
}

func TestPropagatedBanIndexExpireScanRemovesPastLifetime(t *testing.T) {
	clock := time.Unix(1000, 0)
	addr := NewAddressIndex()
	idx := NewPropagatedBanIndex(addr, func() time.Time { return clock })

	key := BanKey{Kind: ConfKill, User: "*", Host: "*.example.com"}
	idx.Apply(BanMessage{
		Key:      key,
		Created:  clock,
		Hold:     clock.Add(time.Minute),
		Lifetime: clock.Add(2 * time.Minute),
	})

	clock = clock.Add(3 * time.Minute)
	idx.ExpireScan()

	_, ok := idx.Lookup(key)
	assert.False(t, ok)
	assert.Nil(t, addr.FindKLine("host.example.com", "host.example.com", "user", nil))
}

func TestPropagatedBanIndexExpireScanKeepsTombstoneUntilLifetime(t *testing.T) {
	clock := time.Unix(1000, 0)
	addr := NewAddressIndex()
	idx := NewPropagatedBanIndex(addr, func() time.Time { return clock })

	key := BanKey{Kind: ConfKill, User: "*", Host: "*.example.com"}
	idx.Apply(BanMessage{
		Key:      key,
		Created:  clock,
		Hold:     clock.Add(time.Minute),
		Lifetime: clock.Add(10 * time.Minute),
	})

	clock = clock.Add(2 * time.Minute)
	idx.ExpireScan()

	rec, ok := idx.Lookup(key)
	assert.True(t, ok)
	assert.Nil(t, addr.FindKLine("host.example.com", "host.example.com", "user", nil))
	assert.NotNil(t, rec)
}
