// Package event defines the sequenced events the engine consumes and their
// wire envelope.
package event

import (
	"market_go/internal/execution"

	"github.com/google/uuid"
)

// Type names an event on the wire.
type Type string

const (
	TypeInstruction Type = "instruction"
)

// Event is anything the sequencer can order.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
}

// BaseEvent holds the sequencing fields shared by every event.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // unix milliseconds
}

func (e BaseEvent) GetSeq() uint64 { return e.Seq }
func (e BaseEvent) GetTs() int64   { return e.Ts }

// InstructionEvent carries one instruction through the sequencer. Reply,
// when set, receives the receipt once the instruction has been applied or
// rejected. It must be buffered.
type InstructionEvent struct {
	BaseEvent
	ID          uuid.UUID
	Instruction execution.Instruction
	Reply       chan execution.Receipt
}

func (e *InstructionEvent) GetType() Type { return TypeInstruction }

// Kind returns the wrapped instruction's kind.
func (e *InstructionEvent) Kind() execution.Kind {
	if e.Instruction == nil {
		return ""
	}
	return e.Instruction.Kind()
}
