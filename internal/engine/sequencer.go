package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"market_go/internal/domain"
	"market_go/internal/event"
	"market_go/internal/execution"
	"market_go/internal/infra"
	"market_go/internal/ledger"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// ErrStopped is returned by Submit once the sequencer is no longer running.
var ErrStopped = errors.New("sequencer stopped")

// Journal is the instruction log. AppendEvent runs before an instruction is
// applied; CommitEvent records its outcome and the state it changed.
type Journal interface {
	AppendEvent(ctx context.Context, ev *event.InstructionEvent) error
	CommitEvent(ctx context.Context, r execution.Receipt, cs *ledger.ChangeSet) error
}

// Sequencer is the single-threaded instruction processor. It owns the
// committed state; one instruction is fully applied before the next starts.
type Sequencer struct {
	inbox   chan *event.InstructionEvent
	state   *ledger.MemState
	proc    *execution.Processor
	nextSeq uint64
	journal Journal
	metrics *infra.Metrics

	// Boundary: notifies the read model and the gateway of outcomes.
	// cs is nil for rejected instructions.
	onUpdate func(r execution.Receipt, cs *ledger.ChangeSet)

	submitMu sync.Mutex // orders Submit's seq assignment with its send
	issued   uint64
	done     chan struct{}

	mu       sync.RWMutex // apply writes under it; external reads share it
	dumpPath string
}

// NewSequencer creates a sequencer over st. journal and onUpdate may be nil.
func NewSequencer(inboxSize int, st *ledger.MemState, proc *execution.Processor, journal Journal, onUpdate func(execution.Receipt, *ledger.ChangeSet)) *Sequencer {
	return &Sequencer{
		inbox:    make(chan *event.InstructionEvent, inboxSize),
		state:    st,
		proc:     proc,
		nextSeq:  1,
		journal:  journal,
		onUpdate: onUpdate,
		done:     make(chan struct{}),
		dumpPath: "panic_dump.json",
	}
}

// SetMetrics attaches a metric set.
func (s *Sequencer) SetMetrics(m *infra.Metrics) {
	s.metrics = m
}

// SetDumpPath sets where DumpState writes on a halt.
func (s *Sequencer) SetDumpPath(path string) {
	s.dumpPath = path
}

// Resume continues numbering after lastSeq. Call before Run.
func (s *Sequencer) Resume(lastSeq uint64) {
	s.nextSeq = lastSeq + 1
	s.submitMu.Lock()
	s.issued = lastSeq
	s.submitMu.Unlock()
}

// NextSeq returns the sequence number the next instruction must carry.
func (s *Sequencer) NextSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// Inbox returns the event channel for producers that assign sequence
// numbers themselves. Do not mix with Submit.
func (s *Sequencer) Inbox() chan<- *event.InstructionEvent {
	return s.inbox
}

// Submit sequences ins, waits for it to be applied and returns its receipt.
func (s *Sequencer) Submit(ctx context.Context, ins execution.Instruction) (execution.Receipt, error) {
	ev := event.AcquireInstructionEvent()
	ev.ID = uuid.New()
	ev.Ts = time.Now().UnixMilli()
	ev.Instruction = ins
	reply := make(chan execution.Receipt, 1)
	ev.Reply = reply

	s.submitMu.Lock()
	ev.Seq = s.issued + 1
	select {
	case s.inbox <- ev:
		s.issued++
		s.submitMu.Unlock()
	case <-ctx.Done():
		s.submitMu.Unlock()
		event.ReleaseInstructionEvent(ev)
		return execution.Receipt{}, ctx.Err()
	case <-s.done:
		s.submitMu.Unlock()
		event.ReleaseInstructionEvent(ev)
		return execution.Receipt{}, ErrStopped
	}

	// Once queued, ev belongs to the sequencer until the reply arrives.
	select {
	case r := <-reply:
		event.ReleaseInstructionEvent(ev)
		return r, nil
	case <-ctx.Done():
		return execution.Receipt{}, ctx.Err()
	case <-s.done:
		return execution.Receipt{}, ErrStopped
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("next_seq", s.nextSeq))
	defer close(s.done)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			// Halt after dump: state is no longer trusted.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.Uint64("next_seq", s.nextSeq))
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
		}
	}
}

func (s *Sequencer) processEvent(ev *event.InstructionEvent) {
	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	// 2. WAL-first: Persistence
	if s.journal != nil {
		if err := s.journal.AppendEvent(context.Background(), ev); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	s.apply(ev)
}

// ReplayEvent applies a logged event without writing it to the log again.
// Its outcome is still recorded.
func (s *Sequencer) ReplayEvent(ev *event.InstructionEvent) execution.Receipt {
	// Replay must still respect sequence order
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}
	r := s.apply(ev)
	s.submitMu.Lock()
	s.issued = ev.Seq
	s.submitMu.Unlock()
	return r
}

func (s *Sequencer) apply(ev *event.InstructionEvent) execution.Receipt {
	start := time.Now()

	// 3. Logic Dispatch
	var (
		res *execution.Result
		err error
	)
	s.mu.Lock()
	if ev.Instruction == nil {
		err = fmt.Errorf("%w: empty instruction", domain.ErrInvalidAccountState)
	} else {
		res, err = s.proc.Execute(s.state, ev.Instruction)
	}
	// 4. Increment Sequence
	s.nextSeq++
	s.mu.Unlock()

	r := execution.NewReceipt(ev.ID, ev.Seq, ev.Kind(), res, err)
	var cs *ledger.ChangeSet
	if res != nil {
		cs = res.Changes
	}

	if s.journal != nil {
		if jerr := s.journal.CommitEvent(context.Background(), r, cs); jerr != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: seq %d: %v", ev.Seq, jerr))
		}
	}

	s.record(r, time.Since(start))

	if ev.Reply != nil {
		ev.Reply <- r
	}
	if s.onUpdate != nil {
		s.onUpdate(r, cs)
	}
	return r
}

func (s *Sequencer) record(r execution.Receipt, d time.Duration) {
	s.metrics.RecordInstruction(string(r.Kind), r.Status, r.Category, r.Seq, d)

	if !r.Applied() {
		slog.Warn("Instruction rejected",
			slog.Uint64("seq", r.Seq),
			slog.String("kind", string(r.Kind)),
			slog.String("category", r.Category),
			slog.String("error", r.Error),
		)
		return
	}
	if sale := r.Sale; sale != nil {
		s.metrics.RecordSale(sale.Total, sale.Fee, sale.Royalty)
		slog.Info("Sale executed",
			slog.Uint64("seq", r.Seq),
			slog.String("mint", sale.Mint.String()),
			slog.Uint64("price", sale.Price),
			slog.Uint64("quantity", sale.Quantity),
			slog.Uint64("fee", sale.Fee),
			slog.Uint64("royalty", sale.Royalty),
		)
		return
	}
	slog.Debug("Instruction applied", slog.Uint64("seq", r.Seq), slog.String("kind", string(r.Kind)))
}

// Read runs fn against the committed state under the read lock (external read).
// fn must not retain the state or any account it returns.
func (s *Sequencer) Read(fn func(st ledger.State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Account returns a copy of the committed account at key.
func (s *Sequencer) Account(key solana.PublicKey) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.Account(key)
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Balance returns a committed settlement balance.
func (s *Sequencer) Balance(owner, mint solana.PublicKey) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Balance(owner, mint)
}

type dumpAccount struct {
	Kind string         `json:"kind"`
	Data domain.Account `json:"data"`
}

type dumpBalance struct {
	Owner  solana.PublicKey `json:"owner"`
	Mint   solana.PublicKey `json:"mint"`
	Amount uint64           `json:"amount"`
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	if !s.mu.TryRLock() {
		// A panic inside apply leaves the write lock held.
		slog.Warn("State lock held, dumping without it")
	} else {
		defer s.mu.RUnlock()
	}

	accs := s.state.Accounts()
	data := struct {
		NextSeq  uint64        `json:"next_seq"`
		Accounts []dumpAccount `json:"accounts"`
		Balances []dumpBalance `json:"balances"`
	}{
		NextSeq:  s.nextSeq,
		Accounts: make([]dumpAccount, 0, len(accs)),
	}
	for _, a := range accs {
		data.Accounts = append(data.Accounts, dumpAccount{Kind: a.Kind().String(), Data: a})
	}
	for k, v := range s.state.Balances() {
		data.Balances = append(data.Balances, dumpBalance{Owner: k.Owner, Mint: k.Mint, Amount: v})
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
