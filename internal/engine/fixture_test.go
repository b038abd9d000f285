package engine

import (
	"context"
	"sync"
	"testing"

	"market_go/internal/domain"
	"market_go/internal/event"
	"market_go/internal/execution"
	"market_go/internal/ledger"
	"market_go/internal/pda"
	"market_go/internal/strategy"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memJournal records the log calls in order.
type memJournal struct {
	mu       sync.Mutex
	calls    []string
	events   []*event.InstructionEvent
	receipts []execution.Receipt
	fail     error
}

func (j *memJournal) AppendEvent(_ context.Context, ev *event.InstructionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.calls = append(j.calls, "append")
	// Keep a decoded copy, as the log would.
	data, err := event.Marshal(ev)
	if err != nil {
		return err
	}
	cp, err := event.Unmarshal(data)
	if err != nil {
		return err
	}
	j.events = append(j.events, cp)
	return nil
}

func (j *memJournal) CommitEvent(_ context.Context, r execution.Receipt, _ *ledger.ChangeSet) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, "commit")
	j.receipts = append(j.receipts, r)
	return nil
}

type fixture struct {
	t         testing.TB
	d         *pda.Deriver
	proc      *execution.Processor
	st        *ledger.MemState
	creator   solana.PublicKey
	authority solana.PublicKey
	mint      solana.PublicKey
	market    solana.PublicKey
	treasury  solana.PublicKey
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	d := pda.NewDeriver(solana.NewWallet().PublicKey(), "")
	proc, err := execution.NewProcessor(d, strategy.NewRuleEngine(), execution.Config{TreasuryMinLeftover: decimal.Zero})
	require.NoError(t, err)

	f := &fixture{
		t:         t,
		d:         d,
		proc:      proc,
		st:        ledger.NewMemState(),
		creator:   solana.NewWallet().PublicKey(),
		authority: solana.NewWallet().PublicKey(),
		mint:      solana.NewWallet().PublicKey(),
	}
	m, err := d.Market(f.creator)
	require.NoError(t, err)
	tr, err := d.Treasury(m.Key)
	require.NoError(t, err)
	f.market, f.treasury = m.Key, tr.Key
	return f
}

func (f *fixture) createMarket(feeBps uint16) *execution.CreateMarket {
	return &execution.CreateMarket{
		Signed:         execution.Signed{By: []solana.PublicKey{f.creator}},
		Creator:        f.creator,
		Market:         f.market,
		Treasury:       f.treasury,
		Authority:      f.authority,
		SettlementMint: f.mint,
		FeeBps:         feeBps,
	}
}

func (f *fixture) escrow(buyer solana.PublicKey) solana.PublicKey {
	e, err := f.d.Escrow(f.market, buyer)
	require.NoError(f.t, err)
	return e.Key
}

func (f *fixture) deposit(buyer solana.PublicKey, amount uint64) *execution.Deposit {
	return &execution.Deposit{
		Signed: execution.Signed{By: []solana.PublicKey{buyer}},
		Market: f.market,
		Buyer:  buyer,
		Escrow: f.escrow(buyer),
		Amount: amount,
	}
}

// plainAsset puts a one-unit plain asset held by owner into the state.
func (f *fixture) plainAsset(owner solana.PublicKey) (solana.PublicKey, solana.PublicKey) {
	mint := solana.NewWallet().PublicKey()
	ta, err := pda.TokenAccount(owner, mint)
	require.NoError(f.t, err)
	f.st.Put(&domain.Asset{Mint: mint, Class: domain.ClassPlain, Supply: 1})
	f.st.Put(&domain.TokenAccount{Address: ta, Mint: mint, Owner: owner, Amount: 1})
	return mint, ta
}

func (f *fixture) buy(buyer, mint solana.PublicKey, price uint64) *execution.Buy {
	b, err := f.d.BuyTradeState(buyer, f.market, mint, price, 1)
	require.NoError(f.t, err)
	return &execution.Buy{
		Signed:        execution.Signed{By: []solana.PublicKey{buyer}},
		Market:        f.market,
		Buyer:         buyer,
		Mint:          mint,
		Escrow:        f.escrow(buyer),
		BuyTradeState: b.Key,
		Price:         price,
		Quantity:      1,
	}
}

func (f *fixture) sell(seller, ta, mint solana.PublicKey, price uint64) *execution.Sell {
	s, err := f.d.SellTradeState(seller, f.market, ta, mint)
	require.NoError(f.t, err)
	return &execution.Sell{
		Signed:           execution.Signed{By: []solana.PublicKey{seller}},
		Market:           f.market,
		Seller:           seller,
		TokenAccount:     ta,
		Mint:             mint,
		SellTradeState:   s.Key,
		ProgramAuthority: f.proc.Authority(),
		Price:            price,
		Quantity:         1,
	}
}

func (f *fixture) execute(signer, buyer, seller, ta, mint solana.PublicKey, price uint64) *execution.ExecuteSale {
	b, err := f.d.BuyTradeState(buyer, f.market, mint, price, 1)
	require.NoError(f.t, err)
	s, err := f.d.SellTradeState(seller, f.market, ta, mint)
	require.NoError(f.t, err)
	return &execution.ExecuteSale{
		Signed:           execution.Signed{By: []solana.PublicKey{signer}},
		Market:           f.market,
		Buyer:            buyer,
		Seller:           seller,
		Mint:             mint,
		TokenAccount:     ta,
		Escrow:           f.escrow(buyer),
		Treasury:         f.treasury,
		BuyTradeState:    b.Key,
		SellTradeState:   s.Key,
		ProgramAuthority: f.proc.Authority(),
		Price:            price,
		Quantity:         1,
	}
}

func (f *fixture) sequencer(journal Journal, onReceipt func(execution.Receipt)) *Sequencer {
	var onUpdate func(execution.Receipt, *ledger.ChangeSet)
	if onReceipt != nil {
		onUpdate = func(r execution.Receipt, _ *ledger.ChangeSet) { onReceipt(r) }
	}
	seq := NewSequencer(64, f.st, f.proc, journal, onUpdate)
	seq.SetDumpPath(f.t.TempDir() + "/dump.json")
	return seq
}

// start runs seq until the test ends.
func start(t *testing.T, seq *Sequencer) {
	ctx, cancel := context.WithCancel(context.Background())
	go seq.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-seq.done
	})
}
