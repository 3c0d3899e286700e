package feed

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

type decodeFunc func(r *fieldReader) (Message, error)

var decoders = map[MessageType]decodeFunc{
	TypeSubscribe:     decodeSubscribe,
	TypeSubscriptions: decodeSubscriptions,
	TypeUnsubscribe:   decodeUnsubscribe,
	TypeReceived:      decodeReceived,
	TypeOpen:          decodeOpen,
	TypeDone:          decodeDone,
	TypeMatch:         decodeMatch,
	TypeChange:        decodeChange,
	TypeActivate:      decodeActivate,
	TypeLevel3:        decodeLevel3,
	TypeError:         decodeError,
}

// Decode maps one complete JSON text frame to its Message. Object frames
// dispatch on "type"; array frames become Compact. Every failure is a
// *DecodeError.
func Decode(frame []byte) (Message, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Kind: ErrMalformedJSON, Err: fmt.Errorf("empty frame")}
	}
	switch trimmed[0] {
	case '{':
		return decodeObject(trimmed)
	case '[':
		return decodeCompact(trimmed)
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, &DecodeError{Kind: ErrMalformedJSON, Err: err}
	}
	return nil, &DecodeError{Kind: ErrMalformedJSON, Err: errNotObjectOrArray}
}

// DecodeString is Decode for a text frame held as a string.
func DecodeString(frame string) (Message, error) {
	return Decode([]byte(frame))
}

func decodeObject(frame []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, &DecodeError{Kind: ErrMalformedJSON, Err: err}
	}
	raw, ok := fields["type"]
	if !ok || isNull(raw) {
		return nil, &DecodeError{Kind: ErrMissingDiscriminator, Field: "type"}
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, &DecodeError{Kind: ErrInvalidField, Field: "type", Token: string(raw), Err: err}
	}
	decode, ok := decoders[MessageType(tag)]
	if !ok {
		return nil, &DecodeError{Kind: ErrUnknownMessageKind, Field: "type", Token: tag}
	}
	return decode(newFieldReader(MessageType(tag), fields))
}

func decodeCompact(frame []byte) (Message, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(frame, &items); err != nil {
		return nil, &DecodeError{Kind: ErrMalformedJSON, Err: err}
	}
	out, err := stringElems(TypeCompact, "", items)
	if err != nil {
		return nil, err
	}
	return Compact(out), nil
}

func decodeSubscribe(r *fieldReader) (Message, error) {
	m := Subscribe{
		ProductIDs: r.stringList("product_ids", false),
		Channels:   r.channels("channels"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeSubscriptions(r *fieldReader) (Message, error) {
	m := Subscriptions{Channels: r.channels("channels")}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeUnsubscribe(r *fieldReader) (Message, error) {
	m := Unsubscribe{Channels: r.channels("channels")}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

// decodeReceived resolves order_type before anything else, then reads the
// common fields and the arm's own fields from the same object.
func decodeReceived(r *fieldReader) (Message, error) {
	kind := r.str("order_type")
	if r.err != nil {
		return nil, r.err
	}
	if kind != OrderTypeMarket && kind != OrderTypeLimit {
		r.fail(ErrUnknownOrderType, "order_type", kind, nil)
		return nil, r.err
	}

	m := Received{
		Time:      r.time("time"),
		ProductID: r.str("product_id"),
		Sequence:  r.uint64("sequence"),
		OrderID:   r.str("order_id"),
		Side:      r.str("side"),
		ClientOID: r.optStr("client-oid"),
	}
	switch kind {
	case OrderTypeMarket:
		m.OrderType = MarketOrder{Funds: r.decimal("funds")}
	case OrderTypeLimit:
		m.OrderType = LimitOrder{Size: r.decimal("size"), Price: r.decimal("price")}
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeOpen(r *fieldReader) (Message, error) {
	m := Open{
		Time:          r.time("time"),
		ProductID:     r.str("product_id"),
		Sequence:      r.uint64("sequence"),
		OrderID:       r.str("order_id"),
		Price:         r.decimal("price"),
		RemainingSize: r.decimal("remaining_size"),
		Side:          r.str("side"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeDone(r *fieldReader) (Message, error) {
	m := Done{
		Time:          r.time("time"),
		ProductID:     r.str("product_id"),
		Sequence:      r.uint64("sequence"),
		Price:         r.optDecimal("price"),
		OrderID:       r.str("order_id"),
		Reason:        r.str("reason"),
		CancelReason:  r.optStr("cancel_reason"),
		Side:          r.str("side"),
		RemainingSize: r.decimal("remaining_size"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeMatch(r *fieldReader) (Message, error) {
	m := Match{
		TradeID:      r.uint64("trade_id"),
		Sequence:     r.uint64("sequence"),
		MakerOrderID: r.str("maker_order_id"),
		TakerOrderID: r.str("taker_order_id"),
		Time:         r.time("time"),
		ProductID:    r.str("product_id"),
		Size:         r.decimal("size"),
		Price:        r.decimal("price"),
		Side:         r.str("side"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeChange(r *fieldReader) (Message, error) {
	m := Change{
		Reason:    r.str("reason"),
		Time:      r.time("time"),
		Sequence:  r.uint64("sequence"),
		OrderID:   r.str("order_id"),
		Side:      r.str("side"),
		ProductID: r.str("product_id"),
		OldSize:   r.optDecimal("old_size"),
		NewSize:   r.optDecimal("new_size"),
		Size:      r.optDecimal("size"),
		OldPrice:  r.optDecimal("old_price"),
		NewPrice:  r.optDecimal("new_price"),
		Price:     r.optDecimal("price"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeActivate(r *fieldReader) (Message, error) {
	m := Activate{
		ProductID: r.str("product_id"),
		Timestamp: r.str("timestamp"),
		UserID:    r.str("user_id"),
		ProfileID: r.str("profile_id"),
		OrderID:   r.strOrEmpty("order_id"),
		StopType:  r.str("stop_type"),
		Side:      r.str("side"),
		StopPrice: r.decimal("stop_price"),
		Size:      r.decimal("size"),
		Funds:     r.decimal("funds"),
		Private:   r.boolean("private"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeLevel3(r *fieldReader) (Message, error) {
	m := Level3{Schema: r.schema("schema")}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func decodeError(r *fieldReader) (Message, error) {
	m := ErrorMessage{
		Message: r.str("message"),
		Reason:  r.strOrEmpty("reason"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}
