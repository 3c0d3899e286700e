package reader

import (
	"sort"

	"github.com/ismaiel54/fullfeed/internal/feed"
)

// Gap is a run of sequence numbers missing for one product
type Gap struct {
	ProductID string
	After     uint64
	Next      uint64
}

// Missing returns how many sequence numbers the gap skipped
func (g Gap) Missing() uint64 {
	return g.Next - g.After - 1
}

// GapTracker follows per-product sequence numbers. It only reports gaps;
// nothing is reordered or requested again.
type GapTracker struct {
	last  map[string]uint64
	kinds map[feed.MessageType]int
	gaps  []Gap
	stale int
}

// NewGapTracker creates an empty tracker
func NewGapTracker() *GapTracker {
	return &GapTracker{
		last:  make(map[string]uint64),
		kinds: make(map[feed.MessageType]int),
	}
}

// Observe records one decoded message and returns the gap it revealed,
// if any.
func (t *GapTracker) Observe(m feed.Message) (Gap, bool) {
	t.kinds[m.Type()]++

	productID, seq, ok := sequenceOf(m)
	if !ok {
		return Gap{}, false
	}

	last, seen := t.last[productID]
	switch {
	case !seen:
		t.last[productID] = seq
		return Gap{}, false
	case seq <= last:
		t.stale++
		return Gap{}, false
	}

	t.last[productID] = seq
	if seq == last+1 {
		return Gap{}, false
	}
	g := Gap{ProductID: productID, After: last, Next: seq}
	t.gaps = append(t.gaps, g)
	return g, true
}

// Kinds returns the number of messages seen per type
func (t *GapTracker) Kinds() map[feed.MessageType]int {
	out := make(map[feed.MessageType]int, len(t.kinds))
	for k, n := range t.kinds {
		out[k] = n
	}
	return out
}

// Gaps returns every gap in the order it was found
func (t *GapTracker) Gaps() []Gap {
	return append([]Gap(nil), t.gaps...)
}

// Stale returns how many messages repeated or went behind a sequence
// already seen.
func (t *GapTracker) Stale() int {
	return t.stale
}

// Products returns the tracked products, sorted
func (t *GapTracker) Products() []string {
	ids := make([]string, 0, len(t.last))
	for id := range t.last {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sequenceOf returns the product and sequence of order events. Control
// frames and activations carry no sequence.
func sequenceOf(m feed.Message) (string, uint64, bool) {
	var v sequenceVisitor
	if err := m.Accept(&v); err != nil {
		return "", 0, false
	}
	return v.productID, v.sequence, v.ok
}

type sequenceVisitor struct {
	productID string
	sequence  uint64
	ok        bool
}

func (v *sequenceVisitor) set(productID string, sequence uint64) error {
	v.productID, v.sequence, v.ok = productID, sequence, true
	return nil
}

func (v *sequenceVisitor) VisitSubscribe(feed.Subscribe) error         { return nil }
func (v *sequenceVisitor) VisitSubscriptions(feed.Subscriptions) error { return nil }
func (v *sequenceVisitor) VisitUnsubscribe(feed.Unsubscribe) error     { return nil }
func (v *sequenceVisitor) VisitActivate(feed.Activate) error           { return nil }
func (v *sequenceVisitor) VisitLevel3(feed.Level3) error               { return nil }
func (v *sequenceVisitor) VisitError(feed.ErrorMessage) error          { return nil }
func (v *sequenceVisitor) VisitCompact(feed.Compact) error             { return nil }

func (v *sequenceVisitor) VisitReceived(m feed.Received) error { return v.set(m.ProductID, m.Sequence) }
func (v *sequenceVisitor) VisitOpen(m feed.Open) error         { return v.set(m.ProductID, m.Sequence) }
func (v *sequenceVisitor) VisitDone(m feed.Done) error         { return v.set(m.ProductID, m.Sequence) }
func (v *sequenceVisitor) VisitMatch(m feed.Match) error       { return v.set(m.ProductID, m.Sequence) }
func (v *sequenceVisitor) VisitChange(m feed.Change) error     { return v.set(m.ProductID, m.Sequence) }
