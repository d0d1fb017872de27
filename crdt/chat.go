package crdt

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gollaborate/clock"
	"gollaborate/errs"
)

// EditedSuffix and DeletedContent are the visible markers spec.md §3
// mandates for edited and soft-deleted messages.
const (
	EditedSuffix   = " (edited)"
	DeletedContent = "[Message deleted]"
)

// Message is a single chat message. Edits and deletes mutate Content in
// place; the message is never physically removed (spec.md §3).
type Message struct {
	ID            string    `json:"id"`
	Author        string    `json:"author"`
	Content       string    `json:"content"`
	WallTimestamp time.Time `json:"wall_timestamp"`
	Channel       string    `json:"channel"`
}

type messageEntry struct {
	msg Message
	ts  clock.Timestamp
}

// Chat is the message_id -> Message LWW map plus channel index from
// SPEC_FULL.md §4.3. Single-channel mode rewrites every message's Channel to
// Chat.channel on ingestion (spec.md §3).
type Chat struct {
	mu        sync.Mutex
	channel   string
	messages  map[string]messageEntry
	index     []string // channel-ordered message ids: arrival order, re-sorted by MergeState
	log       []Op
	seen      map[string]struct{}
	lamport   *clock.Lamport
	replicaID string
	now       func() time.Time
}

// NewChat creates an empty chat log forcing every message into channel.
func NewChat(channel, replicaID string, lamport *clock.Lamport) *Chat {
	return &Chat{
		channel:   channel,
		messages:  make(map[string]messageEntry),
		seen:      make(map[string]struct{}),
		lamport:   lamport,
		replicaID: replicaID,
		now:       time.Now,
	}
}

// Send records a message under the caller-supplied id (Chat does not mint
// ids), stamps it with the current wall clock, forces the canonical channel,
// appends to the index, and records the op.
func (c *Chat) Send(id, content, author string) (Op, error) {
	if content == "" {
		return Op{}, errs.ErrInvalidArgument
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{ID: id, Author: author, Content: content, WallTimestamp: c.now(), Channel: c.channel}
	op := Op{Kind: OpSend, Key: id, Message: &msg, Timestamp: c.lamport.Next(), Author: author}
	c.applyLocked(op)
	return op, nil
}

// Edit requires the message to exist locally; the local-author check (only
// the original author may edit) is enforced here and bypassed for remote ops
// ingested via Apply, per spec.md §4.3.
func (c *Chat) Edit(id, newContent, author string) (Op, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.messages[id]
	if !ok {
		return Op{}, errs.ErrInvalidArgument
	}
	if entry.msg.Author != author {
		return Op{}, errs.ErrPreconditionFailed
	}

	edited := entry.msg
	edited.Content = newContent + EditedSuffix
	op := Op{Kind: OpEdit, Key: id, Message: &edited, Timestamp: c.lamport.Next(), Author: author}
	c.applyLocked(op)
	return op, nil
}

// Delete tombstones a message's content while preserving author/wall time.
func (c *Chat) Delete(id, author string) (Op, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.messages[id]
	if !ok {
		return Op{}, errs.ErrInvalidArgument
	}
	if entry.msg.Author != author {
		return Op{}, errs.ErrPreconditionFailed
	}

	deleted := entry.msg
	deleted.Content = DeletedContent
	op := Op{Kind: OpDelete, Key: id, Message: &deleted, Timestamp: c.lamport.Next(), Author: author}
	c.applyLocked(op)
	return op, nil
}

// Apply runs the chat merge rule for a remote or replayed op: dedup by
// (replica_id, counter), then last-Lamport-timestamp-wins on message content
// regardless of op kind. A send for an unknown id inserts; a send for a
// known id is a late arrival, applied only if strictly newer.
func (c *Chat) Apply(op Op) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seen[dedupKey(op.Timestamp)]; dup {
		return false
	}
	if op.Message == nil {
		return false
	}

	applied := c.applyLocked(op)
	c.lamport.Observe(op.Timestamp)
	return applied
}

func (c *Chat) applyLocked(op Op) bool {
	c.log = append(c.log, op)
	c.seen[dedupKey(op.Timestamp)] = struct{}{}

	msg := *op.Message
	msg.Channel = c.channel

	entry, exists := c.messages[op.Key]
	if exists && !clock.Less(entry.ts, op.Timestamp) {
		return false
	}
	c.messages[op.Key] = messageEntry{msg: msg, ts: op.Timestamp}
	if !exists {
		c.index = append(c.index, op.Key)
	}
	return true
}

// MessagesInChannel returns all messages in channel-index order: arrival
// order, except that MergeState re-sorts the index by (wall timestamp, id).
func (c *Chat) MessagesInChannel() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0, len(c.index))
	for _, id := range c.index {
		if entry, ok := c.messages[id]; ok {
			out = append(out, entry.msg)
		}
	}
	return out
}

// OpsSince returns log entries strictly after since.
func (c *Chat) OpsSince(since clock.Timestamp) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Op, 0, len(c.log))
	for _, op := range c.log {
		if since.IsZero() || clock.Less(since, op.Timestamp) {
			out = append(out, op)
		}
	}
	return out
}

// SearchResult pairs a matched message with its substring occurrence count,
// used to rank Search output.
type SearchResult struct {
	Message Message
	Count   int
}

// Search matches query against content and author (case-insensitive) and
// sorts by descending occurrence count, then descending wall timestamp
// (spec.md §4.3).
func (c *Chat) Search(query string) []SearchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := strings.ToLower(query)
	var results []SearchResult
	for _, id := range c.index {
		entry, ok := c.messages[id]
		if !ok {
			continue
		}
		content := strings.ToLower(entry.msg.Content)
		author := strings.ToLower(entry.msg.Author)
		count := strings.Count(content, q)
		if strings.Contains(author, q) && count == 0 {
			count = 1
		}
		if count == 0 && !strings.Contains(author, q) {
			continue
		}
		results = append(results, SearchResult{Message: entry.msg, Count: count})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Message.WallTimestamp.After(results[j].Message.WallTimestamp)
	})
	return results
}

// ActiveAuthors returns the sorted, deduplicated set of authors who sent a
// message within the trailing window (spec.md §4.3: 600s of local wall
// time). Supplied as the editor-facing presence indicator (SPEC_FULL.md
// §4.3).
func (c *Chat) ActiveAuthors(window time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-window)
	set := make(map[string]struct{})
	for _, id := range c.index {
		entry, ok := c.messages[id]
		if !ok {
			continue
		}
		if entry.msg.WallTimestamp.After(cutoff) {
			set[entry.msg.Author] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for author := range set {
		out = append(out, author)
	}
	sort.Strings(out)
	return out
}

// StateDigest is the full-state sync payload from spec.md §4.3/§4.4.
type StateDigest struct {
	ReplicaID    string           `json:"replica_id"`
	VectorClock  clock.Vector     `json:"vector_clock"`
	Messages     map[string]Message `json:"messages"`
	ChannelIndex []string         `json:"channel_index"`
}

// Digest computes the current full-state payload for this chat log.
func (c *Chat) Digest(vc clock.Vector) StateDigest {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make(map[string]Message, len(c.messages))
	for id, entry := range c.messages {
		messages[id] = entry.msg
	}
	index := make([]string, len(c.index))
	copy(index, c.index)

	return StateDigest{
		ReplicaID:    c.replicaID,
		VectorClock:  vc.Clone(),
		Messages:     messages,
		ChannelIndex: index,
	}
}

// MergeState ingests a remote digest per spec.md §4.3: for each remote
// message, insert if absent (rewriting channel), else keep the later wall
// timestamp; then rebuild the channel index as a canonical sort so replicas
// converging on the same message set converge on the same index too.
//
// This branch is the known weakness flagged in spec.md §9: wall-clock
// comparison can silently lose updates when author clocks disagree. A
// Lamport comparison on the message's last-op timestamp would be safer, but
// the digest payload intentionally carries no such timestamp per spec.md
// §4.4 (it is a state snapshot, not an op log) so this spec does not change
// the behavior — only documents it.
func (c *Chat) MergeState(remote StateDigest, localVC clock.Vector) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	clock.Merge(localVC, remote.VectorClock)

	contentChanged := false
	for id, remoteMsg := range remote.Messages {
		local, ok := c.messages[id]
		if !ok {
			msg := remoteMsg
			msg.Channel = c.channel
			c.messages[id] = messageEntry{msg: msg, ts: clock.Timestamp{}}
			contentChanged = true
			continue
		}
		if remoteMsg.WallTimestamp.After(local.msg.WallTimestamp) {
			msg := remoteMsg
			msg.Channel = c.channel
			local.msg = msg
			c.messages[id] = local
			contentChanged = true
		}
	}

	// The channel index must land on the same order on every replica that
	// ends up holding the same message set (spec.md §8: "chat message map +
	// channel index ... byte-identical"). Rebuilding it by map-iteration
	// order (the previous approach) is nondeterministic both across
	// replicas and across runs of the same replica, so instead recompute it
	// as a canonical sort over the full message set - wall timestamp, then
	// id as a tiebreak - rather than appending newly-seen ids in map order.
	// remote.ChannelIndex isn't consulted: it reflects the remote's local
	// insertion history, which two replicas merging in different orders
	// would not agree on, whereas a sort over (wall_timestamp, id) is a pure
	// function of the converged message content alone.
	ids := make([]string, 0, len(c.messages))
	for id := range c.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := c.messages[ids[i]].msg.WallTimestamp, c.messages[ids[j]].msg.WallTimestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i] < ids[j]
	})
	indexChanged := !equalStringSlices(c.index, ids)
	if indexChanged {
		c.index = ids
	}
	return contentChanged || indexChanged
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
