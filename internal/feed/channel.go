package feed

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Channel is one entry of a channels list: NamedChannel or DetailedChannel.
// The wire carries no tag for the distinction, only the JSON shape.
type Channel interface {
	ChannelName() string
	isChannel()
}

// NamedChannel is a channel given by name alone, a bare JSON string.
type NamedChannel string

// DetailedChannel is a channel restricted to its own product list.
type DetailedChannel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

func (c NamedChannel) ChannelName() string    { return string(c) }
func (c DetailedChannel) ChannelName() string { return c.Name }

func (NamedChannel) isChannel()    {}
func (DetailedChannel) isChannel() {}

// Named returns the name-only form of a channel.
func Named(name string) NamedChannel { return NamedChannel(name) }

// Detailed returns a channel restricted to productIDs.
func Detailed(name string, productIDs ...string) DetailedChannel {
	return DetailedChannel{Name: name, ProductIDs: productIDs}
}

func (c DetailedChannel) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string   `json:"name"`
		ProductIDs []string `json:"product_ids"`
	}{c.Name, nonNil(c.ProductIDs)})
}

// Channels keeps each element in the shape it was built or decoded in.
type Channels []Channel

// Names lists the channel names in order.
func (cs Channels) Names() []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.ChannelName())
	}
	return names
}

func (cs Channels) MarshalJSON() ([]byte, error) {
	if cs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Channel(cs))
}

func (cs *Channels) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DecodeError{Kind: ErrInvalidField, Field: "channels", Err: err}
	}
	decoded, err := decodeChannels("", raw)
	if err != nil {
		return err
	}
	*cs = decoded
	return nil
}

func decodeChannels(typ MessageType, raw []json.RawMessage) (Channels, error) {
	out := make(Channels, 0, len(raw))
	for i, item := range raw {
		c, err := decodeChannel(item)
		if err != nil {
			return nil, &DecodeError{
				Kind:  ErrInvalidChannel,
				Type:  typ,
				Field: "channels",
				Index: i,
				Token: string(item),
				Err:   err,
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// decodeChannel tries the object shape first and the string shape second.
func decodeChannel(raw json.RawMessage) (Channel, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var detail struct {
			Name       *string         `json:"name"`
			ProductIDs json.RawMessage `json:"product_ids"`
		}
		if err := json.Unmarshal(trimmed, &detail); err != nil {
			return nil, err
		}
		if detail.Name == nil {
			return nil, errChannelWithoutName
		}
		var products []string
		if len(detail.ProductIDs) > 0 {
			var err error
			if products, err = decodeStringList("", "product_ids", detail.ProductIDs); err != nil {
				return nil, err
			}
		}
		return DetailedChannel{Name: *detail.Name, ProductIDs: products}, nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return nil, err
		}
		return NamedChannel(name), nil
	}
	return nil, errChannelShape
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
