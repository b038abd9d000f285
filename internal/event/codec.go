package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"market_go/internal/execution"

	"github.com/google/uuid"
)

// ErrUnknownKind is returned when an envelope names no known instruction.
var ErrUnknownKind = errors.New("unknown instruction kind")

// Envelope is the serialized form of an instruction event, used both in
// the instruction log and on the websocket gateway.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Seq     uint64          `json:"seq,omitempty"`
	Ts      int64           `json:"ts,omitempty"`
	Kind    execution.Kind  `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps ev in an envelope.
func Encode(ev *InstructionEvent) (*Envelope, error) {
	if ev.Instruction == nil {
		return nil, fmt.Errorf("encode event %d: no instruction", ev.Seq)
	}
	payload, err := json.Marshal(ev.Instruction)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return &Envelope{
		ID:      ev.ID,
		Seq:     ev.Seq,
		Ts:      ev.Ts,
		Kind:    ev.Kind(),
		Payload: payload,
	}, nil
}

// Decode turns an envelope back into an event. The event comes from the
// pool and should be released once processed.
func Decode(env *Envelope) (*InstructionEvent, error) {
	ins, ok := execution.New(env.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ins); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
		}
	}
	ev := AcquireInstructionEvent()
	ev.Seq = env.Seq
	ev.Ts = env.Ts
	ev.ID = env.ID
	ev.Instruction = ins
	return ev, nil
}

// Marshal encodes ev as a JSON envelope.
func Marshal(ev *InstructionEvent) ([]byte, error) {
	env, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Unmarshal decodes a JSON envelope.
func Unmarshal(data []byte) (*InstructionEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return Decode(&env)
}
