package ledger

import (
	"errors"
	"testing"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
)

type fixture struct {
	state  *MemState
	market *domain.Market
	buyer  solana.PublicKey
	escrow solana.PublicKey
}

func newFixture(t *testing.T, walletFunds uint64) *fixture {
	t.Helper()
	f := &fixture{
		state: NewMemState(),
		market: &domain.Market{
			Address:        solana.NewWallet().PublicKey(),
			Authority:      solana.NewWallet().PublicKey(),
			SettlementMint: solana.NewWallet().PublicKey(),
			FeeBps:         200,
		},
		buyer:  solana.NewWallet().PublicKey(),
		escrow: solana.NewWallet().PublicKey(),
	}
	f.state.Put(f.market)
	f.state.SetBalance(f.buyer, f.market.SettlementMint, walletFunds)
	return f
}

func (f *fixture) deposit(t *testing.T, amount uint64) {
	t.Helper()
	tx := f.state.Begin()
	if _, err := Deposit(tx, f.market, f.buyer, f.escrow, 255, amount); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func (f *fixture) escrowAmount(t *testing.T) uint64 {
	t.Helper()
	a, ok := f.state.Account(f.escrow)
	if !ok {
		return 0
	}
	return a.(*domain.Escrow).Amount
}

func TestTx_IsolatedUntilCommit(t *testing.T) {
	f := newFixture(t, 1000)
	tx := f.state.Begin()
	if _, err := Deposit(tx, f.market, f.buyer, f.escrow, 255, 400); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if _, ok := f.state.Account(f.escrow); ok {
		t.Error("Escrow should not be visible before commit")
	}
	if got := f.state.Balance(f.buyer, f.market.SettlementMint); got != 1000 {
		t.Errorf("Expected committed wallet 1000, got %d", got)
	}
	if got := tx.Balance(f.buyer, f.market.SettlementMint); got != 600 {
		t.Errorf("Expected staged wallet 600, got %d", got)
	}

	tx.Rollback()
	if f.state.Len() != 1 {
		t.Errorf("Expected only the market after rollback, got %d accounts", f.state.Len())
	}
}

func TestTx_CommitOnce(t *testing.T) {
	f := newFixture(t, 0)
	tx := f.state.Begin()
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("first Commit failed: %v", err)
	}
	if _, err := tx.Commit(); err == nil {
		t.Error("Expected second Commit to fail")
	}
}

func TestTx_ClonesOnRead(t *testing.T) {
	f := newFixture(t, 0)
	tx := f.state.Begin()
	m, err := tx.Market(f.market.Address)
	if err != nil {
		t.Fatalf("Market failed: %v", err)
	}
	m.FeeBps = 9999

	if stored, _ := f.state.Account(f.market.Address); stored.(*domain.Market).FeeBps != 200 {
		t.Error("Mutating a loaded account must not touch committed state")
	}
}

func TestTx_WrongKind(t *testing.T) {
	f := newFixture(t, 0)
	tx := f.state.Begin()
	if _, err := tx.Escrow(f.market.Address); !errors.Is(err, domain.ErrInvalidAccountState) {
		t.Errorf("Expected ErrInvalidAccountState, got %v", err)
	}
	if _, err := tx.BuyTradeState(solana.NewWallet().PublicKey()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDepositWithdraw(t *testing.T) {
	t.Run("Roundtrip", func(t *testing.T) {
		f := newFixture(t, 1000)
		f.deposit(t, 1000)

		tx := f.state.Begin()
		if _, err := Withdraw(tx, f.market, f.buyer, f.escrow, 300); err != nil {
			t.Fatalf("Withdraw failed: %v", err)
		}
		tx.Commit()

		if got := f.escrowAmount(t); got != 700 {
			t.Errorf("Expected escrow 700, got %d", got)
		}
		if got := f.state.Balance(f.buyer, f.market.SettlementMint); got != 300 {
			t.Errorf("Expected wallet 300, got %d", got)
		}
	})

	t.Run("WalletShort", func(t *testing.T) {
		f := newFixture(t, 10)
		tx := f.state.Begin()
		if _, err := Deposit(tx, f.market, f.buyer, f.escrow, 255, 11); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("Expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("OverWithdraw", func(t *testing.T) {
		f := newFixture(t, 100)
		f.deposit(t, 100)
		tx := f.state.Begin()
		if _, err := Withdraw(tx, f.market, f.buyer, f.escrow, 101); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("Expected ErrInsufficientFunds, got %v", err)
		}
		tx.Rollback()
		if got := f.escrowAmount(t); got != 100 {
			t.Errorf("Expected escrow unchanged at 100, got %d", got)
		}
	})

	t.Run("EmptyEscrow", func(t *testing.T) {
		f := newFixture(t, 100)
		tx := f.state.Begin()
		if _, err := Withdraw(tx, f.market, f.buyer, f.escrow, 1); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("Expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("ForeignEscrow", func(t *testing.T) {
		f := newFixture(t, 100)
		f.deposit(t, 100)
		tx := f.state.Begin()
		if _, err := Withdraw(tx, f.market, solana.NewWallet().PublicKey(), f.escrow, 1); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized, got %v", err)
		}
	})
}

func (f *fixture) bid(price uint64) *domain.BuyTradeState {
	return &domain.BuyTradeState{
		Address:   solana.NewWallet().PublicKey(),
		Market:    f.market.Address,
		Buyer:     f.buyer,
		Mint:      solana.NewWallet().PublicKey(),
		Escrow:    f.escrow,
		Price:     price,
		Quantity:  1,
		Committed: price,
		Payer:     f.buyer,
	}
}

func TestOpenBuy_CommitmentBlocksWithdraw(t *testing.T) {
	f := newFixture(t, 1000)
	f.deposit(t, 1000)

	tx := f.state.Begin()
	bid := f.bid(600)
	if err := OpenBuy(tx, f.market, bid, 0); err != nil {
		t.Fatalf("OpenBuy failed: %v", err)
	}
	tx.Commit()

	tx = f.state.Begin()
	if _, err := Withdraw(tx, f.market, f.buyer, f.escrow, 500); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds while committed, got %v", err)
	}
	if _, err := Withdraw(tx, f.market, f.buyer, f.escrow, 400); err != nil {
		t.Errorf("Expected uncommitted withdraw to pass, got %v", err)
	}
	tx.Rollback()

	tx = f.state.Begin()
	if err := OpenBuy(tx, f.market, f.bid(500), 0); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("Expected second bid to exceed available funds, got %v", err)
	}
	tx.Rollback()

	tx = f.state.Begin()
	if _, err := CloseBuy(tx, f.market, bid.Address); err != nil {
		t.Fatalf("CloseBuy failed: %v", err)
	}
	if _, err := Withdraw(tx, f.market, f.buyer, f.escrow, 1000); err != nil {
		t.Errorf("Expected full withdraw after close, got %v", err)
	}
}

func TestOpenBuy_AlreadyOpen(t *testing.T) {
	f := newFixture(t, 1000)
	f.deposit(t, 1000)
	bid := f.bid(100)

	tx := f.state.Begin()
	if err := OpenBuy(tx, f.market, bid, 0); err != nil {
		t.Fatalf("OpenBuy failed: %v", err)
	}
	dup := *bid
	if err := OpenBuy(tx, f.market, &dup, 0); !errors.Is(err, domain.ErrAlreadyOpen) {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}
}

func TestRent_ChargedAndRefunded(t *testing.T) {
	f := newFixture(t, 10_000)
	f.deposit(t, 1000)
	want, _ := Rent(domain.BuyTradeStateSize, 2)

	tx := f.state.Begin()
	bid := f.bid(100)
	if err := OpenBuy(tx, f.market, bid, 2); err != nil {
		t.Fatalf("OpenBuy failed: %v", err)
	}
	tx.Commit()

	if got := f.state.Balance(f.buyer, f.market.SettlementMint); got != 9000-want {
		t.Errorf("Expected wallet %d after rent, got %d", 9000-want, got)
	}

	tx = f.state.Begin()
	closed, err := CloseBuy(tx, f.market, bid.Address)
	if err != nil {
		t.Fatalf("CloseBuy failed: %v", err)
	}
	tx.Commit()
	if closed.Rent != want {
		t.Errorf("Expected recorded rent %d, got %d", want, closed.Rent)
	}
	if got := f.state.Balance(f.buyer, f.market.SettlementMint); got != 9000 {
		t.Errorf("Expected rent refunded to 9000, got %d", got)
	}
}

func TestCloseBuy_NotFound(t *testing.T) {
	f := newFixture(t, 0)
	tx := f.state.Begin()
	if _, err := CloseBuy(tx, f.market, solana.NewWallet().PublicKey()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := CloseSell(tx, f.market, solana.NewWallet().PublicKey()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDebitForSettlement(t *testing.T) {
	f := newFixture(t, 1000)
	f.deposit(t, 1000)
	bid := f.bid(700)

	tx := f.state.Begin()
	if err := OpenBuy(tx, f.market, bid, 0); err != nil {
		t.Fatalf("OpenBuy failed: %v", err)
	}
	e, err := DebitForSettlement(tx, bid, 700)
	if err != nil {
		t.Fatalf("DebitForSettlement failed: %v", err)
	}
	if e.Amount != 300 || e.Committed != 0 {
		t.Errorf("Expected amount 300 committed 0, got %d/%d", e.Amount, e.Committed)
	}
	if _, err := CloseBuy(tx, f.market, bid.Address); err != nil {
		t.Errorf("CloseBuy after settlement failed: %v", err)
	}

	t.Run("Overdraw", func(t *testing.T) {
		f := newFixture(t, 100)
		f.deposit(t, 100)
		bid := f.bid(100)
		tx := f.state.Begin()
		OpenBuy(tx, f.market, bid, 0)
		if _, err := DebitForSettlement(tx, bid, 101); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("Expected ErrInsufficientFunds, got %v", err)
		}
	})
}

type stubHolding struct{ err error }

func (s stubHolding) AssertTransferable(*Tx, solana.PublicKey, *domain.TokenAccount, *domain.Asset, uint64) error {
	return s.err
}

func TestOpenSell(t *testing.T) {
	f := newFixture(t, 0)
	ask := &domain.SellTradeState{
		Address:  solana.NewWallet().PublicKey(),
		Market:   f.market.Address,
		Seller:   solana.NewWallet().PublicKey(),
		Price:    100,
		Quantity: 1,
	}

	tx := f.state.Begin()
	if err := OpenSell(tx, f.market, ask, nil, nil, stubHolding{err: domain.ErrInsufficientAssetBalance}, 0); !errors.Is(err, domain.ErrInsufficientAssetBalance) {
		t.Errorf("Expected holding error to surface, got %v", err)
	}
	if err := OpenSell(tx, f.market, ask, nil, nil, stubHolding{}, 0); err != nil {
		t.Fatalf("OpenSell failed: %v", err)
	}
	if err := OpenSell(tx, f.market, ask, nil, nil, stubHolding{}, 0); !errors.Is(err, domain.ErrAlreadyOpen) {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}
	if _, err := CloseSell(tx, f.market, ask.Address); err != nil {
		t.Fatalf("CloseSell failed: %v", err)
	}
	if err := OpenSell(tx, f.market, ask, nil, nil, stubHolding{}, 0); err != nil {
		t.Errorf("Expected reopen after close to succeed, got %v", err)
	}
}

func TestMemState_ApplyChangeSet(t *testing.T) {
	f := newFixture(t, 500)
	tx := f.state.Begin()
	Deposit(tx, f.market, f.buyer, f.escrow, 255, 500)
	cs, _ := tx.Commit()

	replica := NewMemState()
	replica.Put(f.market)
	replica.SetBalance(f.buyer, f.market.SettlementMint, 500)
	replica.Apply(cs)

	if replica.Balance(f.buyer, f.market.SettlementMint) != 0 {
		t.Error("Expected zero balance to be removed on replica")
	}
	if _, ok := replica.Balances()[BalanceKey{Owner: f.buyer, Mint: f.market.SettlementMint}]; ok {
		t.Error("Zero balances should not be stored")
	}
	if len(replica.Accounts()) != 2 {
		t.Errorf("Expected 2 accounts on replica, got %d", len(replica.Accounts()))
	}
}
