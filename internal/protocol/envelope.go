package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned by Decode for datagrams that are not a
// valid envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is one decoded datagram.
type Envelope struct {
	MessageType int
	RoutingType string
	Sender      string
	Target      string
	ModuleKey   string
	Command     map[string]any

	// Binary is the tail after the 0x00 separator, nil when absent.
	Binary []byte
	// Raw is the whole datagram as received.
	Raw []byte
}

// IsIntermodule reports whether the envelope is addressed to the local
// module set rather than a party.
func (e *Envelope) IsIntermodule() bool {
	return e.RoutingType == RoutingIntermodule
}

// HasBinary reports whether a non-empty binary tail is present.
func (e *Envelope) HasBinary() bool {
	return len(e.Binary) > 0
}

// wireHeader is the JSON header as it appears on the wire. Pointer fields
// detect missing mandatory keys.
type wireHeader struct {
	MessageType *int           `json:"messageType"`
	RoutingType *string        `json:"routingType"`
	Sender      string         `json:"sender,omitempty"`
	Target      string         `json:"target,omitempty"`
	ModuleKey   string         `json:"moduleKey,omitempty"`
	Command     map[string]any `json:"command"`
}

// Decode parses a datagram. The header ends where the first complete JSON
// value ends; a 0x00 right after it starts the binary tail, which is never
// scanned.
func Decode(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var h wireHeader
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if h.MessageType == nil {
		return nil, fmt.Errorf("%w: missing messageType", ErrMalformedEnvelope)
	}
	if h.RoutingType == nil {
		return nil, fmt.Errorf("%w: missing routingType", ErrMalformedEnvelope)
	}

	env := &Envelope{
		MessageType: *h.MessageType,
		RoutingType: *h.RoutingType,
		Sender:      h.Sender,
		Target:      h.Target,
		ModuleKey:   h.ModuleKey,
		Command:     h.Command,
		Raw:         data,
	}
	if env.Command == nil {
		env.Command = map[string]any{}
	}

	binary, err := splitTail(data[dec.InputOffset():])
	if err != nil {
		return nil, err
	}
	env.Binary = binary

	return env, nil
}

// splitTail returns the bytes after the NUL that must directly follow the
// header. A header with no tail may carry trailing whitespace only.
func splitTail(rest []byte) ([]byte, error) {
	if len(rest) > 0 && rest[0] == 0x00 {
		return rest[1:], nil
	}
	if len(bytes.TrimLeft(rest, " \t\r\n")) != 0 {
		return nil, fmt.Errorf("%w: trailing data after header", ErrMalformedEnvelope)
	}
	return nil, nil
}

// Self supplies the local identity embedded in outbound envelopes.
type Self interface {
	PartyID() string
	ModuleKey() string
}

// Codec encodes outbound envelopes on behalf of Self.
type Codec struct {
	self Self
}

// NewCodec creates a Codec.
func NewCodec(self Self) *Codec {
	return &Codec{self: self}
}

// Encode builds an outbound datagram. With internal set the header carries
// the module key and intermodule routing; otherwise it is routed to target,
// or to the whole group when target is empty. A non-nil binary is appended
// after a 0x00 separator.
func (c *Codec) Encode(target string, msgType int, internal bool, cmd map[string]any, binary []byte) ([]byte, error) {
	if cmd == nil {
		cmd = map[string]any{}
	}

	routing := RoutingGroup
	var moduleKey string
	switch {
	case internal:
		routing = RoutingIntermodule
		moduleKey = c.self.ModuleKey()
	case target != "":
		routing = RoutingIndividual
	}

	h := wireHeader{
		MessageType: &msgType,
		RoutingType: &routing,
		Sender:      c.self.PartyID(),
		Target:      target,
		ModuleKey:   moduleKey,
		Command:     cmd,
	}

	header, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if binary == nil {
		return header, nil
	}

	out := make([]byte, 0, len(header)+1+len(binary))
	out = append(out, header...)
	out = append(out, 0x00)
	out = append(out, binary...)
	return out, nil
}

// EncodeSystem builds a datagram addressed to the communicator itself.
func (c *Codec) EncodeSystem(msgType int, cmd map[string]any) ([]byte, error) {
	if cmd == nil {
		cmd = map[string]any{}
	}
	routing := RoutingSystem
	h := wireHeader{
		MessageType: &msgType,
		RoutingType: &routing,
		Sender:      c.self.PartyID(),
		Command:     cmd,
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return data, nil
}

// Tail returns the binary tail of data without decoding the header into a
// command map. It fails when the header is not a complete JSON value or is
// followed by anything other than the NUL separator.
func Tail(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var header json.RawMessage
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return splitTail(data[dec.InputOffset():])
}
