package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError reports a payload that is not a valid protocol message.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode message: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to decode message: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError returns true if err is, or wraps, a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// requiredFields lists the keys that must be present for each kind,
// independent of their values.
var requiredFields = map[Kind][]string{
	KindDispatch: {"path", "data", "engine", "transformerSource", "caseId", "formatOnApply"},
	KindExit:     {},
	KindCommands: {"commands"},
	KindIdle:     {},
	KindError:    {"message"},
}

// Wire envelopes: the kind tag plus the variant's own fields.
type (
	dispatchWire struct {
		Kind Kind `json:"kind"`
		Dispatch
	}
	exitWire struct {
		Kind Kind `json:"kind"`
		Exit
	}
	commandsWire struct {
		Kind Kind `json:"kind"`
		Commands
	}
	idleWire struct {
		Kind Kind `json:"kind"`
		Idle
	}
	errorWire struct {
		Kind Kind `json:"kind"`
		Error
	}
)

// Encode validates m and serializes it as a single line of JSON
// (no trailing newline).
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", m.Kind(), err)
	}

	var payload any
	switch v := m.(type) {
	case Dispatch:
		payload = dispatchWire{Kind: KindDispatch, Dispatch: v}
	case Exit:
		payload = exitWire{Kind: KindExit, Exit: v}
	case Commands:
		payload = commandsWire{Kind: KindCommands, Commands: v}
	case Idle:
		payload = idleWire{Kind: KindIdle, Idle: v}
	case Error:
		payload = errorWire{Kind: KindError, Error: v}
	default:
		return nil, fmt.Errorf("unsupported message type %T", m)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", m.Kind(), err)
	}
	return data, nil
}

// Decode parses one encoded message. Any deviation from the message schema
// returns a *DecodeError.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON object", Err: err}
	}

	rawKind, ok := fields["kind"]
	if !ok {
		return nil, &DecodeError{Reason: "missing kind"}
	}
	var kind Kind
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return nil, &DecodeError{Reason: "kind must be a string", Err: err}
	}
	if err := kind.Validate(); err != nil {
		return nil, &DecodeError{Reason: "unrecognized kind", Err: err}
	}

	for _, name := range requiredFields[kind] {
		if _, ok := fields[name]; !ok {
			return nil, &DecodeError{Reason: fmt.Sprintf("%s message missing field %q", kind, name)}
		}
	}

	var msg Message
	switch kind {
	case KindDispatch:
		var w dispatchWire
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, &DecodeError{Reason: "invalid dispatch payload", Err: err}
		}
		msg = w.Dispatch
	case KindExit:
		var w exitWire
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, &DecodeError{Reason: "invalid exit payload", Err: err}
		}
		msg = w.Exit
	case KindCommands:
		var w commandsWire
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, &DecodeError{Reason: "invalid commands payload", Err: err}
		}
		msg = w.Commands
	case KindIdle:
		var w idleWire
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, &DecodeError{Reason: "invalid idle payload", Err: err}
		}
		msg = w.Idle
	case KindError:
		var w errorWire
		if err := strictUnmarshal(data, &w); err != nil {
			return nil, &DecodeError{Reason: "invalid error payload", Err: err}
		}
		msg = w.Error
	}

	if err := msg.Validate(); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s message", kind), Err: err}
	}

	return msg, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
