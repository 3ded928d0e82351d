package ircd

import (
	"sync"
	"time"
)

// TTLBucket names the four temporary-ban lists, grouped by how soon
// each entry expires.
type TTLBucket int

const (
	BucketMin TTLBucket = iota
	BucketHour
	BucketDay
	BucketWeek
	bucketCount
)

func (b TTLBucket) String() string {
	switch b {
	case BucketMin:
		return "min"
	case BucketHour:
		return "hour"
	case BucketDay:
		return "day"
	case BucketWeek:
		return "week"
	default:
		return "invalid"
	}
}

// bucketFor selects the insertion bucket for a record expiring at
// hold, using thresholds of 7d, 1d, 1h, else MIN.
func bucketFor(now, hold time.Time) TTLBucket {
	ttl := hold.Sub(now)
	switch {
	case ttl >= 7*24*time.Hour:
		return BucketWeek
	case ttl >= 24*time.Hour:
		return BucketDay
	case ttl >= time.Hour:
		return BucketHour
	default:
		return BucketMin
	}
}

// TempBanStore holds the four TTL-bucketed lists and the AddressIndex
// they deposit into, sweeping each bucket on its own schedule so a
// long-lived ban isn't rescanned every minute.
type TempBanStore struct {
	mu      sync.Mutex
	buckets [bucketCount][]*Conf
	index   *AddressIndex
	now     func() time.Time
}

// NewTempBanStore constructs a store backed by idx.
func NewTempBanStore(idx *AddressIndex, now func() time.Time) *TempBanStore {
	return &TempBanStore{index: idx, now: now}
}

// Insert places c in its AddressIndex bucket and the matching TTL list.
func (s *TempBanStore) Insert(c *Conf) {
	s.index.Insert(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bucketFor(s.now(), c.Hold)
	s.buckets[b] = append(s.buckets[b], c)
}

// ScanMin implements the 60-second MIN-list sweep: drop records whose
// Hold has passed, detaching them from the address hash.
func (s *TempBanStore) ScanMin() []*Conf {
	return s.expireBucket(BucketMin)
}

// ScanHour performs the hourly HOUR-list sweep, moving records whose
// remaining TTL has dropped below the HOUR threshold down to MIN (and
// expiring any whose Hold has already passed).
func (s *TempBanStore) ScanHour() []*Conf {
	return s.demoteBucket(BucketHour, BucketMin)
}

// ScanDay performs the daily DAY-list sweep.
func (s *TempBanStore) ScanDay() []*Conf {
	return s.demoteBucket(BucketDay, BucketHour)
}

// ScanWeek performs the weekly WEEK-list sweep.
func (s *TempBanStore) ScanWeek() []*Conf {
	return s.demoteBucket(BucketWeek, BucketDay)
}

func (s *TempBanStore) expireBucket(b TTLBucket) []*Conf {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []*Conf
	kept := s.buckets[b][:0]
	for _, c := range s.buckets[b] {
		if !c.Hold.IsZero() && !c.Hold.After(now) {
			s.index.Remove(c)
			expired = append(expired, c)
			continue
		}
		kept = append(kept, c)
	}
	s.buckets[b] = kept
	return expired
}

// demoteBucket re-evaluates every record in from, moving it to to if
// its TTL has dropped into to's threshold range, expiring it outright
// if Hold has already passed, or leaving it in from otherwise.
func (s *TempBanStore) demoteBucket(from, to TTLBucket) []*Conf {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []*Conf
	kept := s.buckets[from][:0]
	for _, c := range s.buckets[from] {
		if !c.Hold.IsZero() && !c.Hold.After(now) {
			s.index.Remove(c)
			expired = append(expired, c)
			continue
		}
		if bucketFor(now, c.Hold) != from {
			s.buckets[to] = append(s.buckets[to], c)
			continue
		}
		kept = append(kept, c)
	}
	s.buckets[from] = kept
	return expired
}

// Bucket returns a snapshot of the records currently on b, for tests.
func (s *TempBanStore) Bucket(b TTLBucket) []*Conf {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conf, len(s.buckets[b]))
	copy(out, s.buckets[b])
	return out
}
