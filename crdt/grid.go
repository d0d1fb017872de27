package crdt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gollaborate/clock"
	"gollaborate/errs"
)

// Coord is a zero-based (row, col) grid position.
type Coord struct {
	Row int
	Col int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.Row, c.Col)
}

// Direction is the axis a word is placed along.
type Direction int

const (
	Across Direction = iota
	Down
)

// Cell is a single grid square. A black cell always has Letter == 0 and
// Number == 0 (spec.md §3 invariant).
type Cell struct {
	Letter  rune   `json:"letter"`   // 0 means "no letter"
	IsBlack bool   `json:"is_black"`
	Number  int    `json:"number"`   // 0 means "unnumbered"
	Author  string `json:"author"`   // "" means "no author"
}

type cellEntry struct {
	cell Cell
	ts   clock.Timestamp
}

// Grid is the fixed-dimension (rows x cols) LWW map CRDT from SPEC_FULL.md
// §4.2. It owns its own mutex: this is the single serializing boundary the
// concurrency model (§5) requires for the grid's half of a replica's state.
type Grid struct {
	mu        sync.Mutex
	rows      int
	cols      int
	cells     map[Coord]cellEntry
	log       []Op
	seen      map[string]struct{} // dedup key: "replicaID/counter"
	wordNum   int
	lamport   *clock.Lamport
	replicaID string
}

// NewGrid creates an empty grid of the given dimensions owned by replicaID.
func NewGrid(rows, cols int, replicaID string, lamport *clock.Lamport) *Grid {
	return &Grid{
		rows:      rows,
		cols:      cols,
		cells:     make(map[Coord]cellEntry),
		seen:      make(map[string]struct{}),
		lamport:   lamport,
		replicaID: replicaID,
	}
}

func dedupKey(t clock.Timestamp) string {
	return fmt.Sprintf("%s/%d", t.ReplicaID, t.Counter)
}

func (g *Grid) inBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < g.rows && c.Col >= 0 && c.Col < g.cols
}

// GetCell returns the current cell at c and whether anything has been
// written there yet.
func (g *Grid) GetCell(c Coord) (Cell, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cells[c]
	return entry.cell, ok
}

// Snapshot returns a copy of every stored cell, keyed by coordinate.
func (g *Grid) Snapshot() map[Coord]Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[Coord]Cell, len(g.cells))
	for k, v := range g.cells {
		out[k] = v.cell
	}
	return out
}

// Dimensions returns the grid's fixed rows and cols.
func (g *Grid) Dimensions() (rows, cols int) {
	return g.rows, g.cols
}

// SetLetter validates coordinates, refuses to write into a black cell, and
// applies a set-cell op clearing or setting the letter (spec.md §4.2).
func (g *Grid) SetLetter(c Coord, letter rune, author string) (Op, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inBounds(c) {
		return Op{}, fmt.Errorf("%w: (%d,%d) outside [0,%d)x[0,%d)", errs.ErrInvalidArgument, c.Row, c.Col, g.rows, g.cols)
	}
	existing, ok := g.cells[c]
	if ok && existing.cell.IsBlack {
		return Op{}, fmt.Errorf("%w: cell (%d,%d) is black", errs.ErrPreconditionFailed, c.Row, c.Col)
	}

	upper := letter
	if upper != 0 {
		upper = []rune(strings.ToUpper(string(letter)))[0]
	}
	number := 0
	if ok {
		number = existing.cell.Number
	}
	newCell := Cell{Letter: upper, IsBlack: false, Number: number, Author: author}
	op := Op{Kind: OpSetCell, Key: c.String(), Cell: &newCell, Timestamp: g.lamport.Next(), Author: author}
	g.applyLocked(c, op)
	return op, nil
}

// SetBlack validates coordinates and turns the cell into a black square.
func (g *Grid) SetBlack(c Coord, author string) (Op, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inBounds(c) {
		return Op{}, fmt.Errorf("%w: (%d,%d) outside [0,%d)x[0,%d)", errs.ErrInvalidArgument, c.Row, c.Col, g.rows, g.cols)
	}

	newCell := Cell{IsBlack: true}
	op := Op{Kind: OpSetCell, Key: c.String(), Cell: &newCell, Timestamp: g.lamport.Next(), Author: author}
	g.applyLocked(c, op)
	return op, nil
}

// AddWord allocates a local word number, validates the footprint fits and is
// free of black cells, stamps the start cell with the number, and writes one
// letter per character along direction. Returns the allocated number.
//
// word_number is a local, non-converging identifier: two replicas may
// allocate the same number to different words (SPEC_FULL.md §9). It exists
// for UI labeling only.
func (g *Grid) AddWord(answer string, start Coord, dir Direction, author string) (int, []Op, error) {
	if answer == "" {
		return 0, nil, fmt.Errorf("%w: empty answer", errs.ErrInvalidArgument)
	}

	g.mu.Lock()
	cells := make([]Coord, len(answer))
	for i := range answer {
		c := start
		if dir == Across {
			c.Col += i
		} else {
			c.Row += i
		}
		if !g.inBounds(c) {
			g.mu.Unlock()
			return 0, nil, fmt.Errorf("%w: word does not fit in grid", errs.ErrPreconditionFailed)
		}
		if entry, ok := g.cells[c]; ok && entry.cell.IsBlack {
			g.mu.Unlock()
			return 0, nil, fmt.Errorf("%w: word crosses a black cell at (%d,%d)", errs.ErrPreconditionFailed, c.Row, c.Col)
		}
		cells[i] = c
	}
	g.wordNum++
	number := g.wordNum
	g.mu.Unlock()

	ops := make([]Op, 0, len(answer))
	for i, ch := range answer {
		op, err := g.SetLetter(cells[i], ch, author)
		if err != nil {
			return number, ops, err
		}
		ops = append(ops, op)
	}

	g.mu.Lock()
	if entry, ok := g.cells[cells[0]]; ok {
		entry.cell.Number = number
		g.cells[cells[0]] = entry
	}
	g.mu.Unlock()

	return number, ops, nil
}

// Apply runs the single grid merge rule against a remote or replayed op:
// accept unconditionally if the key is unseen, else accept iff the op's
// timestamp strictly exceeds the stored one. Returns whether it was applied.
func (g *Grid) Apply(op Op) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.seen[dedupKey(op.Timestamp)]; dup {
		return false
	}
	if op.Kind != OpSetCell || op.Cell == nil {
		return false
	}
	row, col, ok := parseCoord(op.Key)
	if !ok || !g.inBounds(Coord{Row: row, Col: col}) {
		return false
	}
	c := Coord{Row: row, Col: col}

	applied := g.applyLocked(c, op)
	g.lamport.Observe(op.Timestamp)
	return applied
}

// applyLocked performs the merge and op-log append; caller holds g.mu.
func (g *Grid) applyLocked(c Coord, op Op) bool {
	g.log = append(g.log, op)
	g.seen[dedupKey(op.Timestamp)] = struct{}{}

	existing, ok := g.cells[c]
	if ok && !clock.Less(existing.ts, op.Timestamp) {
		// op.Timestamp <= existing.ts: reject, existing write wins.
		return false
	}
	g.cells[c] = cellEntry{cell: *op.Cell, ts: op.Timestamp}
	return true
}

// OpsSince returns log entries strictly after since, ordered by timestamp.
// A zero Timestamp returns the full log.
func (g *Grid) OpsSince(since clock.Timestamp) []Op {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Op, 0, len(g.log))
	for _, op := range g.log {
		if since.IsZero() || clock.Less(since, op.Timestamp) {
			out = append(out, op)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return clock.Less(out[i].Timestamp, out[j].Timestamp)
	})
	return out
}

// MergeSnapshot folds a full-state cell snapshot into the grid, filling in
// any coordinate absent locally and leaving existing cells untouched.
// Unlike Apply, a snapshot carries no per-cell timestamp to arbitrate a
// conflict against local state, so this is deliberately one-directional —
// the same limitation spec.md §9 flags for chat's full-state merge, here
// applied to the grid's half of full-state sync. Returns whether anything
// changed.
func (g *Grid) MergeSnapshot(cells map[Coord]Cell) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	changed := false
	for c, cell := range cells {
		if _, ok := g.cells[c]; !ok {
			g.cells[c] = cellEntry{cell: cell, ts: clock.Timestamp{}}
			changed = true
		}
	}
	return changed
}

// ParseCoord parses the "row,col" key format used on the wire back into a
// Coord.
func ParseCoord(key string) (Coord, bool) {
	row, col, ok := parseCoord(key)
	return Coord{Row: row, Col: col}, ok
}

func parseCoord(key string) (row, col int, ok bool) {
	parts := strings.SplitN(key, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &row); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &col); err != nil {
		return 0, 0, false
	}
	return row, col, true
}
