package ledger

import (
	"fmt"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
)

// Deposit moves amount of the market's settlement mint from buyer's wallet
// into the escrow at addr, creating the escrow on first use.
func Deposit(tx *Tx, market *domain.Market, buyer solana.PublicKey, addr solana.PublicKey, bump uint8, amount uint64) (*domain.Escrow, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero deposit", domain.ErrInvalidQuantity)
	}
	e, err := tx.Escrow(addr)
	switch {
	case err == nil:
		if !e.Owner.Equals(buyer) || !e.Market.Equals(market.Address) {
			return nil, fmt.Errorf("%w: escrow %s belongs to %s", domain.ErrInvalidAccountState, addr, e.Owner)
		}
	case tx.Exists(addr):
		return nil, err
	default:
		e = &domain.Escrow{Address: addr, Market: market.Address, Owner: buyer, Bump: bump}
	}

	if err := tx.Debit(buyer, market.SettlementMint, amount); err != nil {
		return nil, err
	}
	if err := e.Credit(amount); err != nil {
		return nil, err
	}
	tx.Put(e)
	return e, nil
}

// Withdraw moves uncommitted escrow funds back to the buyer's wallet.
func Withdraw(tx *Tx, market *domain.Market, buyer solana.PublicKey, addr solana.PublicKey, amount uint64) (*domain.Escrow, error) {
	e, err := tx.Escrow(addr)
	if err != nil {
		if !tx.Exists(addr) {
			return nil, fmt.Errorf("%w: withdraw %d from empty escrow", domain.ErrInsufficientFunds, amount)
		}
		return nil, err
	}
	if !e.Owner.Equals(buyer) {
		return nil, fmt.Errorf("%w: escrow %s belongs to %s", domain.ErrUnauthorized, addr, e.Owner)
	}
	if err := e.Withdraw(amount); err != nil {
		return nil, err
	}
	if err := tx.Credit(buyer, market.SettlementMint, amount); err != nil {
		return nil, err
	}
	tx.Put(e)
	return e, nil
}

// DebitForSettlement releases the bid's commitment and removes amount from
// its escrow. The escrow is still checked even though Buy reserved the funds.
func DebitForSettlement(tx *Tx, bid *domain.BuyTradeState, amount uint64) (*domain.Escrow, error) {
	e, err := tx.Escrow(bid.Escrow)
	if err != nil {
		return nil, err
	}
	if err := e.Release(bid.Committed); err != nil {
		return nil, err
	}
	if err := e.Debit(amount); err != nil {
		return nil, err
	}
	bid.Committed = 0
	tx.Put(bid)
	tx.Put(e)
	return e, nil
}
