package event

import (
	"sync"

	"github.com/google/uuid"
)

// instructionPool reuses InstructionEvent values on the hot path.
//
// Usage:
//
//	ev := AcquireInstructionEvent()
//	ev.Instruction = ins
//	// ... submit and wait ...
//	ReleaseInstructionEvent(ev)
var instructionPool = sync.Pool{
	New: func() interface{} {
		return &InstructionEvent{}
	},
}

// AcquireInstructionEvent gets an InstructionEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireInstructionEvent() *InstructionEvent {
	return instructionPool.Get().(*InstructionEvent)
}

// ReleaseInstructionEvent resets ev and returns it to the pool.
func ReleaseInstructionEvent(ev *InstructionEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.ID = uuid.Nil
	ev.Instruction = nil
	ev.Reply = nil

	instructionPool.Put(ev)
}

// Warmup pre-allocates pooled events to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*InstructionEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireInstructionEvent())
	}
	for _, ev := range evs {
		ReleaseInstructionEvent(ev)
	}
}
