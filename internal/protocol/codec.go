// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/modvote/internal/validation"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object with a
	// string "type", or whose fields do not match the type.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownType is returned for a well-formed frame with an
	// unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
)

var registry = map[string]func() Message{
	TypeClientRegister:        func() Message { return &ClientRegister{} },
	TypeClientInitialize:      func() Message { return &ClientInitialize{} },
	TypeClientInitialized:     func() Message { return &ClientInitialized{} },
	TypeExecutionStartRequest: func() Message { return &ExecutionStartRequest{} },
	TypeExecutionStarted:      func() Message { return &ExecutionStarted{} },
	TypeExecutionStopped:      func() Message { return &ExecutionStopped{} },
	TypeExecutionStopRequest:  func() Message { return &ExecutionStopRequest{} },
	TypeConfigRegister:        func() Message { return &ConfigRegister{} },
	TypeConfigAvailable:       func() Message { return &ConfigAvailable{} },
	TypeConfigChange:          func() Message { return &ConfigChange{} },
	TypeConfigStart:           func() Message { return &ConfigStart{} },
	TypeConfigStop:            func() Message { return &ConfigStop{} },
	TypeInfoSubscribe:         func() Message { return &InfoSubscribe{} },
	TypeInfoUnsubscribe:       func() Message { return &InfoUnsubscribe{} },
	TypeInfoOpen:              func() Message { return &InfoOpen{} },
	TypeInfoMessage:           func() Message { return &InfoMessage{} },
	TypeAuthorization:         func() Message { return &Authorization{} },
	TypeAuthorizationSuccess:  func() Message { return &AuthorizationSuccess{} },
	TypeAuthorizationError:    func() Message { return &AuthorizationError{} },
	TypeOK:                    func() Message { return &OK{} },
	TypeStartPoll:             func() Message { return &StartPoll{} },
	TypePollStarted:           func() Message { return &PollStarted{} },
	TypePollStopped:           func() Message { return &PollStopped{} },
	TypePollError:             func() Message { return &PollError{} },
	TypePollResult:            func() Message { return &PollResult{} },
	TypePollWinner:            func() Message { return &PollWinner{} },
	TypeNextPoll:              func() Message { return &NextPoll{} },
	TypeNextPollCanceled:      func() Message { return &NextPollCanceled{} },
	TypeSetConfig:             func() Message { return &SetConfig{} },
	TypeViewerAuthorization:   func() Message { return &ViewerAuthorization{} },
	TypeRole:                  func() Message { return &Role{} },
	TypeVote:                  func() Message { return &Vote{} },
}

type header struct {
	Type string `json:"type"`
}

// PeekType returns the discriminator of a frame without decoding the rest.
func PeekType(frame []byte) (string, error) {
	var h header
	if err := json.Unmarshal(frame, &h); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return h.Type, nil
}

// Decode parses and validates a frame. The returned Message is always a
// pointer to one of the message structs in this package.
func Decode(frame []byte) (Message, error) {
	typ, err := PeekType(frame)
	if err != nil {
		return nil, err
	}
	factory, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	msg := factory()
	if err := json.Unmarshal(frame, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	if err := validation.ValidateStruct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	return msg, nil
}

// Encode serializes m with its type discriminator as the first key.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	typ, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(typ) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MustEncode is Encode for messages built entirely from this package's
// types, which cannot fail to marshal.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}
