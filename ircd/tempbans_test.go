package ircd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketForThresholds(t *testing.T) {
	now := time.Unix(0, 0)
	assert.Equal(t, BucketWeek, bucketFor(now, now.Add(8*24*time.Hour)))
	assert.Equal(t, BucketDay, bucketFor(now, now.Add(2*24*time.Hour)))
	assert.Equal(t, BucketHour, bucketFor(now, now.Add(2*time.Hour)))
	assert.Equal(t, BucketMin, bucketFor(now, now.Add(30*time.Second)))
}

func TestTempBanStoreInsertPlacesInCorrectBucket(t *testing.T) {
	clock := time.Unix(1000, 0)
	idx := NewAddressIndex()
	store := NewTempBanStore(idx, func() time.Time { return clock })

	rec := &Conf{Kind: ConfKill, HostMask: "*.example.com", Hold: clock.Add(2 * time.Hour), Flags: FlagTemporary}
	store.Insert(rec)

	assert.Len(t, store.Bucket(BucketHour), 1)
	assert.Len(t, store.Bucket(BucketMin), 0)
}

func TestTempBanStoreScanMinExpiresPastHold(t *testing.T) {
	clock := time.Unix(1000, 0)
	idx := NewAddressIndex()
	store := NewTempBanStore(idx, func() time.Time { return clock })

	rec := &Conf{Kind: ConfKill, HostMask: "*.example.com", Hold: clock.Add(10 * time.Second), Flags: FlagTemporary}
	store.Insert(rec)

	clock = clock.Add(20 * time.Second)
	expired := store.ScanMin()

	assert.Len(t, expired, 1)
	assert.Same(t, rec, expired[0])
	assert.True(t, rec.illegal())
}

func TestTempBanStoreScanHourDemotesAndExpires(t *testing.T) {
	clock := time.Unix(1000, 0)
	idx := NewAddressIndex()
	store := NewTempBanStore(idx, func() time.Time { return clock })

	surviving := &Conf{Kind: ConfKill, HostMask: "*.demoted.com", Hold: clock.Add(90 * time.Minute), Flags: FlagTemporary}
	store.Insert(surviving)

	expiring := &Conf{Kind: ConfKill, HostMask: "*.expired.com", Hold: clock.Add(70 * time.Minute), Flags: FlagTemporary}
	store.Insert(expiring)

	// advance the clock so surviving's remaining TTL drops under the
	// HOUR threshold (demoted to MIN) and expiring's Hold has passed.
	clock = clock.Add(80 * time.Minute)
	expired := store.ScanHour()

	assert.Len(t, expired, 1)
	assert.Same(t, expiring, expired[0])
	assert.Len(t, store.Bucket(BucketMin), 1)
	assert.Same(t, surviving, store.Bucket(BucketMin)[0])
}
