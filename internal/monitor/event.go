// Package monitor streams dispatch and connection events to ground tooling
// over WebSocket, and serves the module status and metrics over HTTP.
package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event kinds.
const (
	KindStatus   = "status"
	KindInbound  = "inbound"
	KindIdentity = "identity"
	KindPing     = "ping"
	KindPong     = "pong"
)

// Supported WebSocket subprotocols.
const (
	SubprotocolProto = "demavlink.v1"
	SubprotocolCBOR  = "demavlink.cbor"
)

var errNoKind = errors.New("event has no kind")

// Event is one monitor frame. Data values must be JSON-like: nil, bool,
// numbers, strings, []any or map[string]any.
type Event struct {
	Kind string         `cbor:"kind"`
	At   int64          `cbor:"at"`
	Data map[string]any `cbor:"data"`
}

// NewEvent stamps an event with the current time in milliseconds.
func NewEvent(kind string, data map[string]any) Event {
	return Event{Kind: kind, At: time.Now().UnixMilli(), Data: data}
}

// codec encodes events for one subprotocol.
type codec interface {
	marshal(e Event) ([]byte, error)
	unmarshal(data []byte) (Event, error)
}

func codecFor(subprotocol string) (codec, bool) {
	switch subprotocol {
	case SubprotocolProto:
		return protoCodec{}, true
	case SubprotocolCBOR:
		return cborCodec{}, true
	}
	return nil, false
}

// protoCodec carries events as google.protobuf.Struct.
type protoCodec struct{}

func (protoCodec) marshal(e Event) ([]byte, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	s, err := structpb.NewStruct(map[string]any{
		"kind": e.Kind,
		"at":   e.At,
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return proto.Marshal(s)
}

func (protoCodec) unmarshal(data []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Event{}, err
	}
	m := s.AsMap()
	e := Event{}
	e.Kind, _ = m["kind"].(string)
	if at, ok := m["at"].(float64); ok {
		e.At = int64(at)
	}
	e.Data, _ = m["data"].(map[string]any)
	if e.Kind == "" {
		return Event{}, errNoKind
	}
	return e, nil
}

type cborCodec struct{}

func (cborCodec) marshal(e Event) ([]byte, error) {
	return cbor.Marshal(e)
}

func (cborCodec) unmarshal(data []byte) (Event, error) {
	var e Event
	if err := cbor.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if e.Kind == "" {
		return Event{}, errNoKind
	}
	return e, nil
}
