package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLamportMonotonic(t *testing.T) {
	l := NewLamport("r1")
	t1 := l.Next()
	t2 := l.Next()
	t3 := l.Next()

	assert.Equal(t, int64(1), t1.Counter)
	assert.Equal(t, int64(2), t2.Counter)
	assert.Equal(t, int64(3), t3.Counter)
	assert.Less(t, t1.Counter, t2.Counter)
	assert.Less(t, t2.Counter, t3.Counter)
}

func TestLamportObserveAdvancesFutureTimestamps(t *testing.T) {
	l := NewLamport("r1")
	l.Next() // counter = 1

	l.Observe(Timestamp{ReplicaID: "r2", Counter: 10})
	next := l.Next()

	assert.Equal(t, int64(11), next.Counter)
}

func TestLamportObserveNeverDecreasesLocalCounter(t *testing.T) {
	l := NewLamport("r1")
	for i := 0; i < 5; i++ {
		l.Next()
	}
	l.Observe(Timestamp{ReplicaID: "r2", Counter: 1})

	next := l.Next()
	assert.Equal(t, int64(6), next.Counter)
}

func TestCompareTotalOrder(t *testing.T) {
	a := Timestamp{ReplicaID: "alice", Counter: 1}
	b := Timestamp{ReplicaID: "bob", Counter: 1}
	c := Timestamp{ReplicaID: "alice", Counter: 2}

	assert.True(t, Less(a, b), "equal counters break tie on replica id lexicographically")
	assert.True(t, Less(a, c), "lower counter always precedes")
	assert.False(t, Less(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestEqualRequiresBothFields(t *testing.T) {
	a := Timestamp{ReplicaID: "alice", Counter: 1}
	b := Timestamp{ReplicaID: "alice", Counter: 1}
	c := Timestamp{ReplicaID: "bob", Counter: 1}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestIsZero(t *testing.T) {
	var z Timestamp
	assert.True(t, z.IsZero())

	nz := Timestamp{ReplicaID: "a", Counter: 1}
	assert.False(t, nz.IsZero())
}
