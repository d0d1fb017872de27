package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gollaborate/clock"
)

func TestSetLetterOutOfBoundsFailsBeforeOp(t *testing.T) {
	g := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	_, err := g.SetLetter(Coord{Row: 10, Col: 10}, 'A', "r1")
	require.Error(t, err)
	assert.Empty(t, g.OpsSince(clock.Timestamp{}))
}

func TestSetLetterClearIsNotDeletion(t *testing.T) {
	g := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	c := Coord{Row: 1, Col: 1}
	_, err := g.SetLetter(c, 'A', "r1")
	require.NoError(t, err)

	_, err = g.SetLetter(c, 0, "r1")
	require.NoError(t, err)

	cell, ok := g.GetCell(c)
	require.True(t, ok, "clearing a letter must not delete the cell")
	assert.Equal(t, rune(0), cell.Letter)
}

func TestSetLetterRefusesBlackCell(t *testing.T) {
	g := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	c := Coord{Row: 2, Col: 2}
	_, err := g.SetBlack(c, "r1")
	require.NoError(t, err)

	_, err = g.SetLetter(c, 'A', "r1")
	assert.Error(t, err)
}

func TestBlackCellCanBeReclaimedByNewerTimestamp(t *testing.T) {
	g := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	c := Coord{Row: 2, Col: 2}
	blackOp, err := g.SetBlack(c, "r1")
	require.NoError(t, err)

	unblack := Cell{IsBlack: false, Letter: 'X'}
	op := Op{Kind: OpSetCell, Key: c.String(), Cell: &unblack, Timestamp: clock.Timestamp{ReplicaID: blackOp.Timestamp.ReplicaID, Counter: blackOp.Timestamp.Counter + 1}, Author: "r2"}
	applied := g.Apply(op)
	require.True(t, applied)

	cell, _ := g.GetCell(c)
	assert.False(t, cell.IsBlack)
	assert.Equal(t, rune('X'), cell.Letter)
}

func TestConcurrentCellWriteTieBreaksOnReplicaID(t *testing.T) {
	// Mirrors SPEC_FULL.md/spec.md §8 scenario 1.
	g1 := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	g2 := NewGrid(5, 5, "r2", clock.NewLamport("r2"))

	c := Coord{Row: 2, Col: 2}
	opA, err := g1.SetLetter(c, 'A', "r1")
	require.NoError(t, err)
	opB, err := g2.SetLetter(c, 'B', "r2")
	require.NoError(t, err)

	g1.Apply(opB)
	g2.Apply(opA)

	cellG1, _ := g1.GetCell(c)
	cellG2, _ := g2.GetCell(c)
	assert.Equal(t, cellG1.Letter, cellG2.Letter, "replicas must converge")

	// r2 > r1 lexicographically, so 'B' wins the tie-break at equal counters.
	assert.Equal(t, rune('B'), cellG1.Letter)
}

func TestApplyIsIdempotent(t *testing.T) {
	g := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	c := Coord{Row: 0, Col: 0}
	cell := Cell{Letter: 'Z'}
	op := Op{Kind: OpSetCell, Key: c.String(), Cell: &cell, Timestamp: clock.Timestamp{ReplicaID: "r2", Counter: 1}, Author: "r2"}

	first := g.Apply(op)
	second := g.Apply(op)
	third := g.Apply(op)

	assert.True(t, first)
	assert.False(t, second)
	assert.False(t, third)
	assert.Len(t, g.OpsSince(clock.Timestamp{}), 1)
}

func TestAddWordPlacesLettersAndNumbersStartCell(t *testing.T) {
	g := NewGrid(10, 10, "r1", clock.NewLamport("r1"))
	num, ops, err := g.AddWord("CAT", Coord{Row: 0, Col: 0}, Across, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, num)
	assert.Len(t, ops, 3)

	start, ok := g.GetCell(Coord{Row: 0, Col: 0})
	require.True(t, ok)
	assert.Equal(t, 1, start.Number)
	assert.Equal(t, rune('C'), start.Letter)

	second, _ := g.GetCell(Coord{Row: 0, Col: 1})
	assert.Equal(t, rune('A'), second.Letter)
}

func TestAddWordRejectsOutOfBounds(t *testing.T) {
	g := NewGrid(3, 3, "r1", clock.NewLamport("r1"))
	_, _, err := g.AddWord("TOOLONG", Coord{Row: 0, Col: 0}, Across, "r1")
	assert.Error(t, err)
}

func TestAddWordRejectsBlackCellCrossing(t *testing.T) {
	g := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	_, err := g.SetBlack(Coord{Row: 0, Col: 1}, "r1")
	require.NoError(t, err)

	_, _, err = g.AddWord("CAT", Coord{Row: 0, Col: 0}, Across, "r1")
	assert.Error(t, err)
}

func TestOpsSinceReturnsOnlyStrictlyNewer(t *testing.T) {
	g := NewGrid(5, 5, "r1", clock.NewLamport("r1"))
	op1, _ := g.SetLetter(Coord{Row: 0, Col: 0}, 'A', "r1")
	_, _ = g.SetLetter(Coord{Row: 0, Col: 1}, 'B', "r1")

	ops := g.OpsSince(op1.Timestamp)
	assert.Len(t, ops, 1)
}
