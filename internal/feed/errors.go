package feed

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedJSON        = errors.New("feed: malformed json")
	ErrMissingDiscriminator = errors.New("feed: missing type discriminator")
	ErrUnknownMessageKind   = errors.New("feed: unknown message kind")
	ErrUnknownOrderType     = errors.New("feed: unknown order type")
	ErrInvalidChannel       = errors.New("feed: invalid channel descriptor")
	ErrInvalidDecimal       = errors.New("feed: invalid decimal")
	ErrInvalidTimestamp     = errors.New("feed: invalid timestamp")
	ErrMissingField         = errors.New("feed: missing required field")
	ErrInvalidField         = errors.New("feed: invalid field")
)

var (
	errNotObjectOrArray   = errors.New("frame is neither an object nor an array")
	errChannelShape       = errors.New("expected a string or an object")
	errChannelWithoutName = errors.New("channel object has no name")
	errExponentDecimal    = errors.New("exponent notation is not accepted")
	errNullElement        = errors.New("null list element")
)

// DecodeError describes why one frame could not be decoded. Kind is one of
// the Err* sentinels above, so callers can match with errors.Is.
type DecodeError struct {
	Kind error
	// Type is the frame's type tag when it was known at failure time.
	Type  MessageType
	Field string
	// Token is the offending raw value: the unknown tag, order type,
	// decimal or timestamp literal.
	Token string
	// Index is the element position for ErrInvalidChannel.
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Type != "" {
		fmt.Fprintf(&b, " in %s frame", e.Type)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Kind == ErrInvalidChannel {
		fmt.Fprintf(&b, " at position %d", e.Index)
	}
	if e.Token != "" {
		fmt.Fprintf(&b, " value %q", e.Token)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var errorKindNames = map[error]string{
	ErrMalformedJSON:        "malformed_json",
	ErrMissingDiscriminator: "missing_discriminator",
	ErrUnknownMessageKind:   "unknown_message_kind",
	ErrUnknownOrderType:     "unknown_order_type",
	ErrInvalidChannel:       "invalid_channel",
	ErrInvalidDecimal:       "invalid_decimal",
	ErrInvalidTimestamp:     "invalid_timestamp",
	ErrMissingField:         "missing_field",
	ErrInvalidField:         "invalid_field",
}

// ErrorKind returns a stable snake_case label for a decode failure, or
// "unknown" for errors that did not come from Decode.
func ErrorKind(err error) string {
	var de *DecodeError
	if !errors.As(err, &de) {
		return "unknown"
	}
	if name, ok := errorKindNames[de.Kind]; ok {
		return name
	}
	return "unknown"
}
