package feed

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func assertTime(t *testing.T, want string, got time.Time) {
	t.Helper()
	expected, err := time.Parse(time.RFC3339Nano, want)
	require.NoError(t, err)
	assert.Truef(t, expected.Equal(got), "want %s, got %s", expected, got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestDecode_ReceivedLimit(t *testing.T) {
	frame := `{"type":"received","time":"2014-11-07T08:19:27.028459Z","product_id":"BTC-USD","sequence":10,"order_id":"d50ec984-77a8-460a-b958-66f114b0de9b","size":"1.34","price":"502.1","side":"buy","order_type":"limit"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	require.IsType(t, Received{}, m)

	r := m.(Received)
	assertTime(t, "2014-11-07T08:19:27.028459Z", r.Time)
	assert.Equal(t, "BTC-USD", r.ProductID)
	assert.Equal(t, uint64(10), r.Sequence)
	assert.Equal(t, "d50ec984-77a8-460a-b958-66f114b0de9b", r.OrderID)
	assert.Equal(t, "buy", r.Side)
	assert.Nil(t, r.ClientOID)

	require.IsType(t, LimitOrder{}, r.OrderType)
	limit := r.OrderType.(LimitOrder)
	assertDecimal(t, "1.34", limit.Size, "size")
	assertDecimal(t, "502.1", limit.Price, "price")
}

func TestDecode_ReceivedMarket(t *testing.T) {
	frame := `{"type":"received","time":"2014-11-09T08:19:27.028459Z","product_id":"BTC-USD","sequence":12,"order_id":"dddec984-77a8-460a-b958-66f114b0de9b","funds":"3000.234","side":"buy","order_type":"market","client-oid":"d50ec974-76a2-454b-66f1-35a9f4ef9c3b"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)

	r, ok := m.(Received)
	require.True(t, ok, "expected Received, got %T", m)
	require.IsType(t, MarketOrder{}, r.OrderType)
	assertDecimal(t, "3000.234", r.OrderType.(MarketOrder).Funds, "funds")
	require.NotNil(t, r.ClientOID)
	assert.Equal(t, "d50ec974-76a2-454b-66f1-35a9f4ef9c3b", *r.ClientOID)
}

func TestDecode_ReceivedClientOIDAbsentNullOrEmpty(t *testing.T) {
	base := `"type":"received","time":"2014-11-07T08:19:27.028459Z","product_id":"BTC-USD","sequence":10,"order_id":"abc","size":"1","price":"2","side":"sell","order_type":"limit"`

	absent, err := DecodeString(`{` + base + `}`)
	require.NoError(t, err)
	null, err := DecodeString(`{` + base + `,"client-oid":null}`)
	require.NoError(t, err)
	empty, err := DecodeString(`{` + base + `,"client-oid":""}`)
	require.NoError(t, err)

	assert.Nil(t, absent.(Received).ClientOID)
	assert.Nil(t, null.(Received).ClientOID)
	assert.Nil(t, empty.(Received).ClientOID)
	assert.Equal(t, absent, null, "absent and null client-oid should decode the same")
	assert.Equal(t, absent, empty, "absent and empty client-oid should decode the same")
}

func TestDecode_UnknownOrderType(t *testing.T) {
	_, err := DecodeString(`{"type":"received","order_type":"stop"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOrderType)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "stop", de.Token)
	assert.Equal(t, TypeReceived, de.Type)
	assert.Equal(t, "unknown_order_type", ErrorKind(err))
}

func TestDecode_Open(t *testing.T) {
	frame := `{"type":"open","time":"2014-11-07T08:19:27.028459Z","product_id":"BTC-USD","sequence":10,"order_id":"d50ec984-77a8-460a-b958-66f114b0de9b","price":"200.2","remaining_size":"1.00","side":"sell"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	o, ok := m.(Open)
	require.True(t, ok, "expected Open, got %T", m)

	assertTime(t, "2014-11-07T08:19:27.028459Z", o.Time)
	assert.Equal(t, "BTC-USD", o.ProductID)
	assert.Equal(t, uint64(10), o.Sequence)
	assert.Equal(t, "d50ec984-77a8-460a-b958-66f114b0de9b", o.OrderID)
	assertDecimal(t, "200.2", o.Price, "price")
	assertDecimal(t, "1.00", o.RemainingSize, "remaining_size")
	assert.Equal(t, "sell", o.Side)
}

func TestDecode_Done(t *testing.T) {
	frame := `{"type":"done","time":"2014-11-07T08:19:27.028459Z","product_id":"BTC-USD","sequence":10,"price":"200.2","order_id":"d50ec984-77a8-460a-b958-66f114b0de9b","reason":"filled","side":"sell","remaining_size":"0"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	d, ok := m.(Done)
	require.True(t, ok, "expected Done, got %T", m)

	assert.Equal(t, "filled", d.Reason)
	require.NotNil(t, d.Price)
	assertDecimal(t, "200.2", *d.Price, "price")
	assertDecimal(t, "0", d.RemainingSize, "remaining_size")
	assert.Nil(t, d.CancelReason)
	assert.Equal(t, "sell", d.Side)
}

func TestDecode_DoneMarketWithoutPrice(t *testing.T) {
	frame := `{"type":"done","time":"2014-11-07T08:19:27.028459Z","product_id":"BTC-USD","sequence":11,"order_id":"abc","reason":"canceled","cancel_reason":"102:Self Trade Prevention","side":"buy","remaining_size":"0.5"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	d := m.(Done)
	assert.Nil(t, d.Price, "market done frames carry no price")
	require.NotNil(t, d.CancelReason)
	assert.Equal(t, "102:Self Trade Prevention", *d.CancelReason)
}

func TestDecode_Match(t *testing.T) {
	frame := `{"type":"match","trade_id":10,"sequence":50,"maker_order_id":"ac928c66-ca53-498f-9c13-a110027a60e8","taker_order_id":"132fb6ae-456b-4654-b4e0-d681ac05cea1","time":"2014-11-07T08:19:27.028459Z","product_id":"BTC-USD","size":"5.23512","price":"400.23","side":"sell"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	mt, ok := m.(Match)
	require.True(t, ok, "expected Match, got %T", m)

	assert.Equal(t, uint64(10), mt.TradeID)
	assert.Equal(t, uint64(50), mt.Sequence)
	assert.Equal(t, "ac928c66-ca53-498f-9c13-a110027a60e8", mt.MakerOrderID)
	assert.Equal(t, "132fb6ae-456b-4654-b4e0-d681ac05cea1", mt.TakerOrderID)
	assertTime(t, "2014-11-07T08:19:27.028459Z", mt.Time)
	assert.Equal(t, "BTC-USD", mt.ProductID)
	assertDecimal(t, "5.23512", mt.Size, "size")
	assertDecimal(t, "400.23", mt.Price, "price")
	assert.Equal(t, "sell", mt.Side)
}

func TestDecode_LargeSequenceKeepsEveryDigit(t *testing.T) {
	frame := `{"type":"match","trade_id":18446744073709551615,"sequence":9007199254740993,"maker_order_id":"a","taker_order_id":"b","time":"2014-11-07T08:19:27Z","product_id":"BTC-USD","size":"1","price":"1","side":"buy"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	mt := m.(Match)
	assert.Equal(t, uint64(18446744073709551615), mt.TradeID)
	assert.Equal(t, uint64(9007199254740993), mt.Sequence)
}

func TestDecode_ChangeOptionalFields(t *testing.T) {
	frame := `{"type":"change","reason":"STP","time":"2014-11-07T08:19:27.028459Z","sequence":80,"order_id":"ac928c66-ca53-498f-9c13-a110027a60e8","side":"sell","product_id":"BTC-USD","new_size":"5.23512","old_size":"12.234412","price":"400.23"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	c, ok := m.(Change)
	require.True(t, ok, "expected Change, got %T", m)

	assert.Equal(t, "STP", c.Reason)
	assert.Equal(t, uint64(80), c.Sequence)
	require.NotNil(t, c.NewSize)
	require.NotNil(t, c.OldSize)
	require.NotNil(t, c.Price)
	assertDecimal(t, "5.23512", *c.NewSize, "new_size")
	assertDecimal(t, "12.234412", *c.OldSize, "old_size")
	assertDecimal(t, "400.23", *c.Price, "price")
	assert.Nil(t, c.Size)
	assert.Nil(t, c.OldPrice)
	assert.Nil(t, c.NewPrice)
}

func TestDecode_ChangeModify(t *testing.T) {
	frame := `{"type":"change","reason":"modify_order","time":"2022-06-06T22:55:43.433114Z","sequence":24753,"order_id":"c3f16063-77b1-408f-a743-88b7bc20cdcd","side":"buy","product_id":"ETH-USD","old_price":"1200.00","new_price":"1201.00","old_size":"3","new_size":"5"}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	c := m.(Change)
	require.NotNil(t, c.OldPrice)
	require.NotNil(t, c.NewPrice)
	assertDecimal(t, "1200", *c.OldPrice, "old_price")
	assertDecimal(t, "1201", *c.NewPrice, "new_price")
	assert.Nil(t, c.Price)
	assert.Nil(t, c.Size)
}

func TestDecode_Activate(t *testing.T) {
	frame := `{"type":"activate","product_id":"test-product","timestamp":"1483736448.299000","user_id":"12","profile_id":"30000727-d308-cf50-7b1c-c06deb1934fc","order_id":"7b52009b-64fd-0a2a-49e6-d8a939753077","stop_type":"entry","side":"buy","stop_price":"80","size":"2","funds":"50","private":true}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	a, ok := m.(Activate)
	require.True(t, ok, "expected Activate, got %T", m)

	assert.Equal(t, "test-product", a.ProductID)
	assert.Equal(t, "1483736448.299000", a.Timestamp, "timestamp is kept verbatim")
	assert.Equal(t, "12", a.UserID)
	assert.Equal(t, "30000727-d308-cf50-7b1c-c06deb1934fc", a.ProfileID)
	assert.Equal(t, "7b52009b-64fd-0a2a-49e6-d8a939753077", a.OrderID)
	assert.Equal(t, "entry", a.StopType)
	assert.Equal(t, "buy", a.Side)
	assertDecimal(t, "80", a.StopPrice, "stop_price")
	assertDecimal(t, "2", a.Size, "size")
	assertDecimal(t, "50", a.Funds, "funds")
	assert.True(t, a.Private)
}

func TestDecode_Level3(t *testing.T) {
	frame := `{"type":"level3","schema":{"change":["type","product_id","sequence","order_id","price","size","time"],"done":["type","product_id","sequence","order_id","time"],"noop":["type","product_id","sequence","time"]}}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	l, ok := m.(Level3)
	require.True(t, ok, "expected Level3, got %T", m)

	assert.Len(t, l.Schema, 3)
	assert.Equal(t, []string{"type", "product_id", "sequence", "order_id", "time"}, l.Schema["done"])
	assert.Equal(t, []string{"type", "product_id", "sequence", "time"}, l.Schema["noop"])
}

func TestDecode_Error(t *testing.T) {
	m, err := DecodeString(`{"type":"error","message":"Failed to subscribe","reason":"ETH-FOO is not a valid product"}`)
	require.NoError(t, err)
	assert.Equal(t, ErrorMessage{Message: "Failed to subscribe", Reason: "ETH-FOO is not a valid product"}, m)
}

func TestDecode_SubscriptionsMixedChannels(t *testing.T) {
	frame := `{"type":"subscriptions","channels":["heartbeat",{"name":"ticker","product_ids":["BTC-USD"]}]}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	s, ok := m.(Subscriptions)
	require.True(t, ok, "expected Subscriptions, got %T", m)

	require.Len(t, s.Channels, 2)
	assert.Equal(t, NamedChannel("heartbeat"), s.Channels[0])
	assert.Equal(t, DetailedChannel{Name: "ticker", ProductIDs: []string{"BTC-USD"}}, s.Channels[1])
	assert.Equal(t, []string{"heartbeat", "ticker"}, s.Channels.Names())
}

func TestDecode_SubscribeEcho(t *testing.T) {
	frame := `{"type":"subscribe","product_ids":["ETH-USD","BTC-USD"],"channels":["level2","heartbeat",{"name":"ticker","product_ids":["ETH-BTC","ETH-USD"]}]}`

	m, err := DecodeString(frame)
	require.NoError(t, err)
	s, ok := m.(Subscribe)
	require.True(t, ok, "expected Subscribe, got %T", m)

	assert.Equal(t, []string{"ETH-USD", "BTC-USD"}, s.ProductIDs)
	assert.Equal(t, Channels{
		Named("level2"),
		Named("heartbeat"),
		Detailed("ticker", "ETH-BTC", "ETH-USD"),
	}, s.Channels)
}

func TestDecode_Unsubscribe(t *testing.T) {
	m, err := DecodeString(`{"type":"unsubscribe","channels":["full"]}`)
	require.NoError(t, err)
	assert.Equal(t, Unsubscribe{Channels: Channels{Named("full")}}, m)
}

func TestDecode_InvalidChannelNamesPosition(t *testing.T) {
	_, err := DecodeString(`{"type":"subscriptions","channels":["heartbeat",42]}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidChannel)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Index)
	assert.Equal(t, "42", de.Token)
	assert.Contains(t, err.Error(), "at position 1")
}

func TestDecode_ChannelObjectWithoutName(t *testing.T) {
	_, err := DecodeString(`{"type":"unsubscribe","channels":[{"product_ids":["BTC-USD"]}]}`)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestDecode_CompactArray(t *testing.T) {
	m, err := DecodeString(`["subscribe","heartbeat","BTC-USD"]`)
	require.NoError(t, err)
	assert.Equal(t, Compact{"subscribe", "heartbeat", "BTC-USD"}, m)
	assert.Equal(t, TypeCompact, m.Type())
}

func TestDecode_CompactArrayRejectsNonStrings(t *testing.T) {
	_, err := DecodeString(`["open", 12]`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidField)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "[1]", de.Field)
}

func TestDecode_NullListElementsRejected(t *testing.T) {
	cases := []struct {
		frame string
		field string
	}{
		{`{"type":"subscribe","product_ids":["BTC-USD",null],"channels":["heartbeat"]}`, "product_ids[1]"},
		{`{"type":"level3","schema":{"open":["type",null]}}`, "schema.open[1]"},
		{`["open",null]`, "[1]"},
	}
	for _, tc := range cases {
		_, err := DecodeString(tc.frame)
		require.Error(t, err, tc.frame)
		assert.ErrorIs(t, err, ErrInvalidField, tc.frame)

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, tc.field, de.Field, tc.frame)
		assert.Equal(t, "null", de.Token, tc.frame)
	}
}

func TestDecode_NullProductInChannelRejected(t *testing.T) {
	_, err := DecodeString(`{"type":"subscriptions","channels":[{"name":"ticker","product_ids":["BTC-USD",null]}]}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidChannel)
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.Contains(t, err.Error(), "product_ids[1]")
}

func TestDecode_UnknownMessageKind(t *testing.T) {
	_, err := DecodeString(`{"type":"frobnicate","product_id":"BTC-USD"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMessageKind)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "frobnicate", de.Token)
}

func TestDecode_MissingDiscriminator(t *testing.T) {
	for _, frame := range []string{`{"product_id":"BTC-USD"}`, `{"type":null}`} {
		_, err := DecodeString(frame)
		assert.ErrorIs(t, err, ErrMissingDiscriminator, frame)
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	for _, frame := range []string{``, `   `, `{"type":`, `not json`, `42`, `"received"`} {
		_, err := DecodeString(frame)
		assert.ErrorIs(t, err, ErrMalformedJSON, "frame %q", frame)
		assert.Equal(t, "malformed_json", ErrorKind(err))
	}
}

func TestDecode_InvalidDecimal(t *testing.T) {
	frame := `{"type":"open","time":"2014-11-07T08:19:27.028459Z","product_id":"BTC-USD","sequence":10,"order_id":"abc","price":"20x.2","remaining_size":"1.00","side":"sell"}`

	_, err := DecodeString(frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDecimal)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "price", de.Field)
	assert.Equal(t, "20x.2", de.Token)
}

func TestDecode_ExponentDecimalRejected(t *testing.T) {
	base := `{"type":"match","trade_id":10,"sequence":50,"maker_order_id":"a","taker_order_id":"b","time":"2014-11-07T08:19:27Z","product_id":"BTC-USD","size":"1","side":"sell","price":%s}`

	for _, token := range []string{`"1e100000000"`, `"1E30"`, `"4.0023e2"`, `1e5`} {
		_, err := DecodeString(fmt.Sprintf(base, token))
		require.Error(t, err, token)
		assert.ErrorIs(t, err, ErrInvalidDecimal, token)

		var de *DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "price", de.Field)
		assert.Equal(t, strings.Trim(token, `"`), de.Token)
	}

	m, err := DecodeString(fmt.Sprintf(base, `"0.000000000000000001"`))
	require.NoError(t, err)
	out, err := Encode(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"price":"0.000000000000000001"`)
}

func TestDecode_InvalidTimestamp(t *testing.T) {
	frame := `{"type":"open","time":"yesterday","product_id":"BTC-USD","sequence":10,"order_id":"abc","price":"1","remaining_size":"1","side":"sell"}`

	_, err := DecodeString(frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "time", de.Field)
	assert.Equal(t, "yesterday", de.Token)
}

func TestDecode_MissingRequiredField(t *testing.T) {
	frame := `{"type":"match","trade_id":10,"sequence":50,"maker_order_id":"a","taker_order_id":"b","time":"2014-11-07T08:19:27Z","product_id":"BTC-USD","size":"1","side":"sell"}`

	_, err := DecodeString(frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "price", de.Field)
	assert.Equal(t, "missing_field", ErrorKind(err))
}

func TestDecode_WrongFieldType(t *testing.T) {
	_, err := DecodeString(`{"type":"error","message":7}`)
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = DecodeString(`{"type":7}`)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestErrorKind_ForeignError(t *testing.T) {
	assert.Equal(t, "unknown", ErrorKind(errors.New("boom")))
}

type kindCounter struct {
	seen []MessageType
}

func (k *kindCounter) add(t MessageType) error {
	k.seen = append(k.seen, t)
	return nil
}

func (k *kindCounter) VisitSubscribe(Subscribe) error         { return k.add(TypeSubscribe) }
func (k *kindCounter) VisitSubscriptions(Subscriptions) error { return k.add(TypeSubscriptions) }
func (k *kindCounter) VisitUnsubscribe(Unsubscribe) error     { return k.add(TypeUnsubscribe) }
func (k *kindCounter) VisitReceived(Received) error           { return k.add(TypeReceived) }
func (k *kindCounter) VisitOpen(Open) error                   { return k.add(TypeOpen) }
func (k *kindCounter) VisitDone(Done) error                   { return k.add(TypeDone) }
func (k *kindCounter) VisitMatch(Match) error                 { return k.add(TypeMatch) }
func (k *kindCounter) VisitChange(Change) error               { return k.add(TypeChange) }
func (k *kindCounter) VisitActivate(Activate) error           { return k.add(TypeActivate) }
func (k *kindCounter) VisitLevel3(Level3) error               { return k.add(TypeLevel3) }
func (k *kindCounter) VisitError(ErrorMessage) error          { return k.add(TypeError) }
func (k *kindCounter) VisitCompact(Compact) error             { return k.add(TypeCompact) }

func TestAccept_DispatchesToMatchingVisit(t *testing.T) {
	msgs := []Message{
		Subscribe{}, Subscriptions{}, Unsubscribe{}, Received{}, Open{}, Done{},
		Match{}, Change{}, Activate{}, Level3{}, ErrorMessage{}, Compact{},
	}
	k := &kindCounter{}
	for _, m := range msgs {
		require.NoError(t, m.Accept(k))
	}
	require.Len(t, k.seen, len(msgs))
	for i, m := range msgs {
		assert.Equal(t, m.Type(), k.seen[i])
	}
}
