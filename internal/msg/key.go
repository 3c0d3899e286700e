package msg

import (
	"github.com/ismaiel54/fullfeed/internal/feed"
)

// PartitionKey picks the Kafka key for a decoded frame. Order events are
// keyed by product so each product's sequence stays in one partition;
// control frames are keyed by their kind.
func PartitionKey(m feed.Message) string {
	var k keyVisitor
	if err := m.Accept(&k); err != nil || k.key == "" {
		return string(m.Type())
	}
	return k.key
}

type keyVisitor struct {
	key string
}

func (k *keyVisitor) VisitSubscribe(feed.Subscribe) error         { return nil }
func (k *keyVisitor) VisitSubscriptions(feed.Subscriptions) error { return nil }
func (k *keyVisitor) VisitUnsubscribe(feed.Unsubscribe) error     { return nil }
func (k *keyVisitor) VisitLevel3(feed.Level3) error               { return nil }
func (k *keyVisitor) VisitError(feed.ErrorMessage) error          { return nil }
func (k *keyVisitor) VisitCompact(feed.Compact) error             { return nil }

func (k *keyVisitor) VisitReceived(m feed.Received) error {
	k.key = m.ProductID
	return nil
}

func (k *keyVisitor) VisitOpen(m feed.Open) error {
	k.key = m.ProductID
	return nil
}

func (k *keyVisitor) VisitDone(m feed.Done) error {
	k.key = m.ProductID
	return nil
}

func (k *keyVisitor) VisitMatch(m feed.Match) error {
	k.key = m.ProductID
	return nil
}

func (k *keyVisitor) VisitChange(m feed.Change) error {
	k.key = m.ProductID
	return nil
}

func (k *keyVisitor) VisitActivate(m feed.Activate) error {
	k.key = m.ProductID
	return nil
}
