package feed

// MessageType is the value of the top-level "type" field.
type MessageType string

const (
	TypeSubscribe     MessageType = "subscribe"
	TypeSubscriptions MessageType = "subscriptions"
	TypeUnsubscribe   MessageType = "unsubscribe"
	TypeReceived      MessageType = "received"
	TypeOpen          MessageType = "open"
	TypeDone          MessageType = "done"
	TypeMatch         MessageType = "match"
	TypeChange        MessageType = "change"
	TypeActivate      MessageType = "activate"
	TypeLevel3        MessageType = "level3"
	TypeError         MessageType = "error"

	// TypeCompact names bare array frames. It never appears on the wire.
	TypeCompact MessageType = "compact"
)

// Message is one decoded inbound frame. The set of implementations is
// closed: only types in this package satisfy it.
type Message interface {
	Type() MessageType
	Accept(v Visitor) error
	isMessage()
}

// Visitor has one method per Message kind. A new kind adds a method here,
// so every consumer that dispatches through Accept stops compiling until it
// handles the new kind.
type Visitor interface {
	VisitSubscribe(Subscribe) error
	VisitSubscriptions(Subscriptions) error
	VisitUnsubscribe(Unsubscribe) error
	VisitReceived(Received) error
	VisitOpen(Open) error
	VisitDone(Done) error
	VisitMatch(Match) error
	VisitChange(Change) error
	VisitActivate(Activate) error
	VisitLevel3(Level3) error
	VisitError(ErrorMessage) error
	VisitCompact(Compact) error
}

// Subscribe opens channels. ProductIDs apply to every listed channel that
// carries no product list of its own.
type Subscribe struct {
	ProductIDs []string
	Channels   Channels
}

// Subscriptions acknowledges the current subscription set.
type Subscriptions struct {
	Channels Channels
}

// Unsubscribe closes channels.
type Unsubscribe struct {
	Channels Channels
}

// Level3 describes the column layout of the compact level3 stream, keyed by
// message kind. The content is passed through untouched.
type Level3 struct {
	Schema map[string][]string `json:"schema"`
}

// ErrorMessage is a server-side rejection, e.g. an invalid product id on
// subscribe.
type ErrorMessage struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// Compact is a bare array frame with no type field.
type Compact []string

func (Subscribe) Type() MessageType     { return TypeSubscribe }
func (Subscriptions) Type() MessageType { return TypeSubscriptions }
func (Unsubscribe) Type() MessageType   { return TypeUnsubscribe }
func (Received) Type() MessageType      { return TypeReceived }
func (Open) Type() MessageType          { return TypeOpen }
func (Done) Type() MessageType          { return TypeDone }
func (Match) Type() MessageType         { return TypeMatch }
func (Change) Type() MessageType        { return TypeChange }
func (Activate) Type() MessageType      { return TypeActivate }
func (Level3) Type() MessageType        { return TypeLevel3 }
func (ErrorMessage) Type() MessageType  { return TypeError }
func (Compact) Type() MessageType       { return TypeCompact }

func (m Subscribe) Accept(v Visitor) error     { return v.VisitSubscribe(m) }
func (m Subscriptions) Accept(v Visitor) error { return v.VisitSubscriptions(m) }
func (m Unsubscribe) Accept(v Visitor) error   { return v.VisitUnsubscribe(m) }
func (m Received) Accept(v Visitor) error      { return v.VisitReceived(m) }
func (m Open) Accept(v Visitor) error          { return v.VisitOpen(m) }
func (m Done) Accept(v Visitor) error          { return v.VisitDone(m) }
func (m Match) Accept(v Visitor) error         { return v.VisitMatch(m) }
func (m Change) Accept(v Visitor) error        { return v.VisitChange(m) }
func (m Activate) Accept(v Visitor) error      { return v.VisitActivate(m) }
func (m Level3) Accept(v Visitor) error        { return v.VisitLevel3(m) }
func (m ErrorMessage) Accept(v Visitor) error  { return v.VisitError(m) }
func (m Compact) Accept(v Visitor) error       { return v.VisitCompact(m) }

func (Subscribe) isMessage()     {}
func (Subscriptions) isMessage() {}
func (Unsubscribe) isMessage()   {}
func (Received) isMessage()      {}
func (Open) isMessage()          {}
func (Done) isMessage()          {}
func (Match) isMessage()         {}
func (Change) isMessage()        {}
func (Activate) isMessage()      {}
func (Level3) isMessage()        {}
func (ErrorMessage) isMessage()  {}
func (Compact) isMessage()       {}
