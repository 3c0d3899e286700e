package feed

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// fieldReader pulls typed fields out of one decoded JSON object. The first
// failure sticks in err and turns every later call into a no-op, so a
// struct literal can be filled field by field and checked once.
type fieldReader struct {
	typ    MessageType
	fields map[string]json.RawMessage
	err    error
}

func newFieldReader(typ MessageType, fields map[string]json.RawMessage) *fieldReader {
	return &fieldReader{typ: typ, fields: fields}
}

func (r *fieldReader) fail(kind error, field, token string, err error) {
	r.err = &DecodeError{Kind: kind, Type: r.typ, Field: field, Token: token, Err: err}
}

// lookup returns the raw value of key, treating null like absence.
func (r *fieldReader) lookup(key string) (json.RawMessage, bool) {
	if r.err != nil {
		return nil, false
	}
	raw, ok := r.fields[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (r *fieldReader) require(key string) (json.RawMessage, bool) {
	raw, ok := r.lookup(key)
	if !ok && r.err == nil {
		r.fail(ErrMissingField, key, "", nil)
	}
	return raw, ok
}

func (r *fieldReader) str(key string) string {
	raw, ok := r.require(key)
	if !ok {
		return ""
	}
	return r.decodeString(key, raw)
}

// optStr returns nil when key is absent, null or the empty string.
func (r *fieldReader) optStr(key string) *string {
	raw, ok := r.lookup(key)
	if !ok {
		return nil
	}
	s := r.decodeString(key, raw)
	if r.err != nil || s == "" {
		return nil
	}
	return &s
}

// strOrEmpty tolerates an absent field and yields "".
func (r *fieldReader) strOrEmpty(key string) string {
	raw, ok := r.lookup(key)
	if !ok {
		return ""
	}
	return r.decodeString(key, raw)
}

func (r *fieldReader) decodeString(key string, raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		r.fail(ErrInvalidField, key, string(raw), err)
		return ""
	}
	return s
}

// uint64 reads an unsigned JSON number from its literal text, so values
// above 2^53 keep every digit.
func (r *fieldReader) uint64(key string) uint64 {
	raw, ok := r.require(key)
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		r.fail(ErrInvalidField, key, string(raw), err)
		return 0
	}
	return v
}

func (r *fieldReader) boolean(key string) bool {
	raw, ok := r.require(key)
	if !ok {
		return false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		r.fail(ErrInvalidField, key, string(raw), err)
		return false
	}
	return v
}

func (r *fieldReader) decimal(key string) decimal.Decimal {
	raw, ok := r.require(key)
	if !ok {
		return decimal.Decimal{}
	}
	return r.parseDecimal(key, raw)
}

func (r *fieldReader) optDecimal(key string) *decimal.Decimal {
	raw, ok := r.lookup(key)
	if !ok {
		return nil
	}
	d := r.parseDecimal(key, raw)
	if r.err != nil {
		return nil
	}
	return &d
}

// parseDecimal accepts the string token the feed sends and, leniently, a
// bare number token. Both are parsed from their literal text. Exponent
// notation is refused so a decoded value always encodes back in bounded
// size.
func (r *fieldReader) parseDecimal(key string, raw json.RawMessage) decimal.Decimal {
	token := string(bytes.TrimSpace(raw))
	if len(token) > 0 && token[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			r.fail(ErrInvalidDecimal, key, token, err)
			return decimal.Decimal{}
		}
		token = s
	}
	if strings.ContainsAny(token, "eE") {
		r.fail(ErrInvalidDecimal, key, token, errExponentDecimal)
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(token)
	if err != nil {
		r.fail(ErrInvalidDecimal, key, token, err)
		return decimal.Decimal{}
	}
	return d
}

func (r *fieldReader) time(key string) time.Time {
	raw, ok := r.require(key)
	if !ok {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		r.fail(ErrInvalidTimestamp, key, string(raw), err)
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail(ErrInvalidTimestamp, key, s, err)
		return time.Time{}
	}
	return t.UTC()
}

// stringList reads a list of strings. An absent list is nil unless
// required.
func (r *fieldReader) stringList(key string, required bool) []string {
	var (
		raw json.RawMessage
		ok  bool
	)
	if required {
		raw, ok = r.require(key)
	} else {
		raw, ok = r.lookup(key)
	}
	if !ok {
		return nil
	}
	out, err := decodeStringList(r.typ, key, raw)
	if err != nil {
		r.err = err
		return nil
	}
	return out
}

func (r *fieldReader) channels(key string) Channels {
	raw, ok := r.require(key)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		r.fail(ErrInvalidField, key, string(raw), err)
		return nil
	}
	cs, err := decodeChannels(r.typ, items)
	if err != nil {
		r.err = err
		return nil
	}
	return cs
}

func (r *fieldReader) schema(key string) map[string][]string {
	raw, ok := r.require(key)
	if !ok {
		return nil
	}
	var columns map[string]json.RawMessage
	if err := json.Unmarshal(raw, &columns); err != nil {
		r.fail(ErrInvalidField, key, string(raw), err)
		return nil
	}
	out := make(map[string][]string, len(columns))
	for name, list := range columns {
		cols, err := decodeStringList(r.typ, key+"."+name, list)
		if err != nil {
			r.err = err
			return nil
		}
		out[name] = cols
	}
	return out
}

// decodeStringList decodes a JSON array whose elements must all be
// strings. A null list is nil; a null element is an error.
func decodeStringList(typ MessageType, field string, raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &DecodeError{Kind: ErrInvalidField, Type: typ, Field: field, Token: string(raw), Err: err}
	}
	return stringElems(typ, field, items)
}

// stringElems reports a failing element as field[i].
func stringElems(typ MessageType, field string, items []json.RawMessage) ([]string, error) {
	out := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		var err error
		if isNull(item) {
			err = errNullElement
		} else {
			err = json.Unmarshal(item, &s)
		}
		if err != nil {
			return nil, &DecodeError{
				Kind:  ErrInvalidField,
				Type:  typ,
				Field: fmt.Sprintf("%s[%d]", field, i),
				Token: string(item),
				Err:   err,
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
