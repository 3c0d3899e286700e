package feed

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

var errNoOrderType = errors.New("feed: received frame has no order type")

// Encode serialises any Message back into its wire shape. Object frames
// start with their "type" field; absent optionals are omitted.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("feed: encode nil message")
	}
	return json.Marshal(m)
}

// EncodeIndent is Encode with two-space indentation, for display.
func EncodeIndent(m Message) ([]byte, error) {
	data, err := Encode(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("feed: indent %s frame: %w", m.Type(), err)
	}
	return buf.Bytes(), nil
}

// EncodeSubscribe returns the outbound subscribe frame. It cannot fail.
func EncodeSubscribe(m Subscribe) []byte {
	return mustMarshal(m)
}

// EncodeUnsubscribe returns the outbound unsubscribe frame. It cannot fail.
func EncodeUnsubscribe(m Unsubscribe) []byte {
	return mustMarshal(m)
}

// mustMarshal is only used for frames made of strings and string lists.
func mustMarshal(v interface{ MarshalJSON() ([]byte, error) }) []byte {
	b, err := v.MarshalJSON()
	if err != nil {
		panic(fmt.Sprintf("feed: encode control frame: %v", err))
	}
	return b
}

func (m Subscribe) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       MessageType `json:"type"`
		ProductIDs []string    `json:"product_ids"`
		Channels   Channels    `json:"channels"`
	}{TypeSubscribe, nonNil(m.ProductIDs), orEmpty(m.Channels)})
}

func (m Subscriptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     MessageType `json:"type"`
		Channels Channels    `json:"channels"`
	}{TypeSubscriptions, orEmpty(m.Channels)})
}

func (m Unsubscribe) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     MessageType `json:"type"`
		Channels Channels    `json:"channels"`
	}{TypeUnsubscribe, orEmpty(m.Channels)})
}

// MarshalJSON flattens the order type arm back beside the common fields.
func (m Received) MarshalJSON() ([]byte, error) {
	frame := struct {
		Type      MessageType      `json:"type"`
		Time      time.Time        `json:"time"`
		ProductID string           `json:"product_id"`
		Sequence  uint64           `json:"sequence"`
		OrderID   string           `json:"order_id"`
		OrderType string           `json:"order_type"`
		Funds     *decimal.Decimal `json:"funds,omitempty"`
		Size      *decimal.Decimal `json:"size,omitempty"`
		Price     *decimal.Decimal `json:"price,omitempty"`
		Side      string           `json:"side"`
		ClientOID *string          `json:"client-oid,omitempty"`
	}{
		Type:      TypeReceived,
		Time:      m.Time,
		ProductID: m.ProductID,
		Sequence:  m.Sequence,
		OrderID:   m.OrderID,
		Side:      m.Side,
		ClientOID: m.ClientOID,
	}
	switch o := m.OrderType.(type) {
	case MarketOrder:
		frame.OrderType = OrderTypeMarket
		frame.Funds = &o.Funds
	case LimitOrder:
		frame.OrderType = OrderTypeLimit
		frame.Size = &o.Size
		frame.Price = &o.Price
	default:
		return nil, errNoOrderType
	}
	return json.Marshal(frame)
}

func (m Open) MarshalJSON() ([]byte, error) {
	type fields Open
	return marshalTagged(TypeOpen, fields(m))
}

func (m Done) MarshalJSON() ([]byte, error) {
	type fields Done
	return marshalTagged(TypeDone, fields(m))
}

func (m Match) MarshalJSON() ([]byte, error) {
	type fields Match
	return marshalTagged(TypeMatch, fields(m))
}

func (m Change) MarshalJSON() ([]byte, error) {
	type fields Change
	return marshalTagged(TypeChange, fields(m))
}

func (m Activate) MarshalJSON() ([]byte, error) {
	type fields Activate
	return marshalTagged(TypeActivate, fields(m))
}

func (m Level3) MarshalJSON() ([]byte, error) {
	schema := m.Schema
	if schema == nil {
		schema = map[string][]string{}
	}
	return marshalTagged(TypeLevel3, struct {
		Schema map[string][]string `json:"schema"`
	}{schema})
}

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	type fields ErrorMessage
	return marshalTagged(TypeError, fields(m))
}

func (m Compact) MarshalJSON() ([]byte, error) {
	return json.Marshal(nonNil([]string(m)))
}

// marshalTagged encodes v, which must encode to a JSON object, and puts the
// type tag in front of its fields.
func marshalTagged(t MessageType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("feed: %s fields did not encode to an object", t)
	}
	out := make([]byte, 0, len(body)+len(t)+10)
	out = append(out, `{"type":"`...)
	out = append(out, t...)
	out = append(out, '"')
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}

func orEmpty(cs Channels) Channels {
	if cs == nil {
		return Channels{}
	}
	return cs
}
