package collection

import (
	"encoding/json"
	"time"
)

// Snapshot is an ordered list of items and the time it was fetched.
// A snapshot is never modified once published; mutations publish a new one.
type Snapshot[T any] struct {
	Items     []T
	FetchedAt time.Time
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot[T]) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// Stale reports whether the snapshot is older than ttl.
func (s *Snapshot[T]) Stale(now time.Time, ttl time.Duration) bool {
	return s.Age(now) > ttl
}

// persisted is the stored form of a snapshot.
type persisted[T any] struct {
	Data      []T       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeSnapshot[T any](s *Snapshot[T]) (string, error) {
	data := s.Items
	if data == nil {
		data = []T{}
	}
	raw, err := json.Marshal(persisted[T]{Data: data, Timestamp: s.FetchedAt.UTC()})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeSnapshot[T any](raw string) (*Snapshot[T], error) {
	var p persisted[T]
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &Snapshot[T]{Items: p.Data, FetchedAt: p.Timestamp}, nil
}

// Op is an optimistic change to a collection.
type Op int

const (
	Insert Op = iota
	Remove
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// apply returns a new snapshot with op applied to item. Inserting an
// existing key replaces it in place; removing a missing key is a no-op.
func apply[T any](s *Snapshot[T], op Op, item T, key func(T) string) *Snapshot[T] {
	var (
		items     []T
		fetchedAt time.Time
	)
	if s != nil {
		items = s.Items
		fetchedAt = s.FetchedAt
	}

	k := key(item)
	out := make([]T, 0, len(items)+1)
	found := false

	for _, it := range items {
		if key(it) != k {
			out = append(out, it)
			continue
		}
		found = true
		if op == Insert {
			out = append(out, item)
		}
	}
	if op == Insert && !found {
		out = append(out, item)
	}

	return &Snapshot[T]{Items: out, FetchedAt: fetchedAt}
}

// revert undoes op for item on top of s, used when s has moved on since
// the mutation was applied.
func revert[T any](s *Snapshot[T], op Op, item T, before *Snapshot[T], key func(T) string) *Snapshot[T] {
	prev, existed := find(before, key(item), key)

	if existed {
		return apply(s, Insert, prev, key)
	}
	if op == Insert {
		return apply(s, Remove, item, key)
	}
	return s
}

func find[T any](s *Snapshot[T], k string, key func(T) string) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	for _, it := range s.Items {
		if key(it) == k {
			return it, true
		}
	}
	return zero, false
}
