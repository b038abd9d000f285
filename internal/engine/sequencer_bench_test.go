package engine

import (
	"context"
	"testing"

	"market_go/internal/event"
	"market_go/internal/execution"

	"github.com/gagliardetto/solana-go"
)

// BenchmarkSequencer_Apply measures the hot path of one deposit.
func BenchmarkSequencer_Apply(b *testing.B) {
	f := newFixture(b)
	buyer := solana.NewWallet().PublicKey()
	f.st.SetBalance(buyer, f.mint, uint64(b.N)+1)
	seq := NewSequencer(1, f.st, f.proc, nil, nil)
	seq.ReplayEvent(&event.InstructionEvent{BaseEvent: event.BaseEvent{Seq: 1}, Instruction: f.createMarket(0)})

	ins := f.deposit(buyer, 1)
	ev := event.AcquireInstructionEvent()
	ev.Instruction = ins

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev.Seq = uint64(i + 2)
		seq.processEvent(ev)
	}

	event.ReleaseInstructionEvent(ev)
}

// BenchmarkSequencer_Submit measures end-to-end submission including the
// channel round trip.
func BenchmarkSequencer_Submit(b *testing.B) {
	f := newFixture(b)
	buyer := solana.NewWallet().PublicKey()
	f.st.SetBalance(buyer, f.mint, uint64(b.N)+1)
	seq := NewSequencer(1024, f.st, f.proc, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seq.Run(ctx)

	if _, err := seq.Submit(ctx, f.createMarket(0)); err != nil {
		b.Fatal(err)
	}
	var ins execution.Instruction = f.deposit(buyer, 1)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := seq.Submit(ctx, ins); err != nil {
			b.Fatal(err)
		}
	}
}
