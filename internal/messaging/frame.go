package messaging

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Transport-level functions, never delivered to handlers.
const (
	functionHello   = "_hello"
	functionWelcome = "_welcome"
)

var errEmptyFrame = errors.New("frame has no function")

type envelope struct {
	Function string `msgpack:"f"`
	Payload  []byte `msgpack:"p"`
}

// EncodeFrame packs a function call into a binary frame.
func EncodeFrame(function string, payload []byte) ([]byte, error) {
	if function == "" {
		return nil, ErrEmptyFunction
	}
	b, err := msgpack.Marshal(&envelope{Function: function, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding frame %s: %w", function, err)
	}
	return b, nil
}

// DecodeFrame unpacks a binary frame.
func DecodeFrame(frame []byte) (function string, payload []byte, err error) {
	var env envelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Function == "" {
		return "", nil, errEmptyFrame
	}
	return env.Function, env.Payload, nil
}

// hello is the first frame an observer sends.
type hello struct {
	Name     string `msgpack:"name"`
	Password string `msgpack:"password,omitempty"`
}

// welcome is the host's reply to a valid hello.
type welcome struct {
	PeerID PeerID `msgpack:"peer_id"`
}

func encodeControl(function string, v any) ([]byte, error) {
	p, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", function, err)
	}
	return EncodeFrame(function, p)
}

func decodeControl(frame []byte, want string, v any) error {
	function, payload, err := DecodeFrame(frame)
	if err != nil {
		return err
	}
	if function != want {
		return fmt.Errorf("expected %s frame, got %s", want, function)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding %s: %w", want, err)
	}
	return nil
}

// Discard is a transport that drops every frame. Used in the unconnected role.
type Discard struct{}

func (Discard) Send(PeerID, []byte) error       { return nil }
func (Discard) SendAll([]byte, ...PeerID) error { return nil }
