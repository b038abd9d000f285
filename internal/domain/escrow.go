package domain

import (
	"fmt"

	"market_go/pkg/safe"

	"github.com/gagliardetto/solana-go"
)

// Escrow holds a buyer's deposited settlement funds for one market.
// Committed is the sum of the buyer's open bids; it is never larger
// than Amount.
type Escrow struct {
	Address   solana.PublicKey `json:"address"`
	Market    solana.PublicKey `json:"market"`
	Owner     solana.PublicKey `json:"owner"`
	Amount    uint64           `json:"amount"`
	Committed uint64           `json:"committed"`
	Bump      uint8            `json:"bump"`
}

func (e *Escrow) Kind() Kind            { return KindEscrow }
func (e *Escrow) Key() solana.PublicKey { return e.Address }
func (e *Escrow) Clone() Account        { c := *e; return &c }

// Available returns the balance not reserved by open bids.
func (e *Escrow) Available() uint64 {
	if e.Committed > e.Amount {
		return 0
	}
	return e.Amount - e.Committed
}

// Credit adds deposited funds.
func (e *Escrow) Credit(amount uint64) error {
	next, err := safe.Add(e.Amount, amount)
	if err != nil {
		return ErrNumericalOverflow
	}
	e.Amount = next
	return nil
}

// Withdraw removes funds that are not backing an open bid.
func (e *Escrow) Withdraw(amount uint64) error {
	if amount > e.Amount {
		return fmt.Errorf("%w: withdraw %d, balance %d", ErrInsufficientFunds, amount, e.Amount)
	}
	if amount > e.Available() {
		return fmt.Errorf("%w: withdraw %d, available %d (committed %d)",
			ErrInsufficientFunds, amount, e.Available(), e.Committed)
	}
	e.Amount -= amount
	return nil
}

// Reserve commits funds to a new bid.
func (e *Escrow) Reserve(amount uint64) error {
	if amount > e.Available() {
		return fmt.Errorf("%w: need %d, available %d", ErrInsufficientFunds, amount, e.Available())
	}
	e.Committed += amount
	return nil
}

// Release returns a bid's commitment to the available balance.
func (e *Escrow) Release(amount uint64) error {
	if amount > e.Committed {
		return fmt.Errorf("%w: release %d, committed %d", ErrInvalidAccountState, amount, e.Committed)
	}
	e.Committed -= amount
	return nil
}

// Debit removes funds during settlement. The caller releases the bid's
// commitment first; Debit still refuses to dip into other bids' funds.
func (e *Escrow) Debit(amount uint64) error {
	if amount > e.Amount {
		return fmt.Errorf("%w: debit %d, balance %d", ErrInsufficientFunds, amount, e.Amount)
	}
	if amount > e.Available() {
		return fmt.Errorf("%w: debit %d, available %d (committed %d)",
			ErrInsufficientFunds, amount, e.Available(), e.Committed)
	}
	e.Amount -= amount
	return nil
}

// VerifyInvariant checks that commitments never exceed the balance.
func (e *Escrow) VerifyInvariant() error {
	if e.Committed > e.Amount {
		return fmt.Errorf("%w: escrow %s committed=%d exceeds amount=%d",
			ErrInvalidAccountState, e.Address, e.Committed, e.Amount)
	}
	return nil
}
