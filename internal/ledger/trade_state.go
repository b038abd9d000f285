package ledger

import (
	"fmt"

	"market_go/internal/domain"
	"market_go/pkg/safe"

	"github.com/gagliardetto/solana-go"
)

// recordOverhead is charged on top of every stored record's size.
const recordOverhead = 128

// Rent returns the storage deposit for a record of size bytes.
func Rent(size int, perByte uint64) (uint64, error) {
	v, err := safe.Mul(uint64(recordOverhead+size), perByte)
	if err != nil {
		return 0, domain.ErrNumericalOverflow
	}
	return v, nil
}

// Holding checks that a token account can back a listing. Implemented by
// the asset transfer strategies.
type Holding interface {
	AssertTransferable(tx *Tx, owner solana.PublicKey, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error
}

// OpenBuy opens bid at its derived address and reserves its commitment in
// the bid's escrow. Rent is charged from the payer.
func OpenBuy(tx *Tx, market *domain.Market, bid *domain.BuyTradeState, rentPerByte uint64) error {
	if tx.Exists(bid.Address) {
		return fmt.Errorf("%w: bid %s", domain.ErrAlreadyOpen, bid.Address)
	}
	e, err := tx.Escrow(bid.Escrow)
	if err != nil {
		if !tx.Exists(bid.Escrow) {
			return fmt.Errorf("%w: no escrow for %s", domain.ErrInsufficientFunds, bid.Buyer)
		}
		return err
	}
	if err := e.Reserve(bid.Committed); err != nil {
		return err
	}
	rent, err := Rent(domain.BuyTradeStateSize, rentPerByte)
	if err != nil {
		return err
	}
	if err := tx.Debit(bid.Payer, market.SettlementMint, rent); err != nil {
		return fmt.Errorf("rent: %w", err)
	}
	bid.Rent = rent
	tx.Put(e)
	tx.Put(bid)
	return nil
}

// OpenSell opens a listing at its derived address after the seller's
// holding is checked.
func OpenSell(tx *Tx, market *domain.Market, ask *domain.SellTradeState, ta *domain.TokenAccount, asset *domain.Asset, h Holding, rentPerByte uint64) error {
	if tx.Exists(ask.Address) {
		return fmt.Errorf("%w: listing %s", domain.ErrAlreadyOpen, ask.Address)
	}
	if err := h.AssertTransferable(tx, ask.Seller, ta, asset, ask.Quantity); err != nil {
		return err
	}
	rent, err := Rent(domain.SellTradeStateSize, rentPerByte)
	if err != nil {
		return err
	}
	if err := tx.Debit(ask.Payer, market.SettlementMint, rent); err != nil {
		return fmt.Errorf("rent: %w", err)
	}
	ask.Rent = rent
	tx.Put(ask)
	return nil
}

// CloseBuy closes the bid at key, releases whatever is still committed and
// refunds rent to the original payer.
func CloseBuy(tx *Tx, market *domain.Market, key solana.PublicKey) (*domain.BuyTradeState, error) {
	bid, err := tx.BuyTradeState(key)
	if err != nil {
		return nil, err
	}
	if bid.Committed > 0 {
		e, err := tx.Escrow(bid.Escrow)
		if err != nil {
			return nil, err
		}
		if err := e.Release(bid.Committed); err != nil {
			return nil, err
		}
		tx.Put(e)
	}
	if err := tx.Credit(bid.Payer, market.SettlementMint, bid.Rent); err != nil {
		return nil, err
	}
	tx.Delete(key)
	return bid, nil
}

// CloseSell closes the listing at key and refunds rent to the original payer.
func CloseSell(tx *Tx, market *domain.Market, key solana.PublicKey) (*domain.SellTradeState, error) {
	ask, err := tx.SellTradeState(key)
	if err != nil {
		return nil, err
	}
	if err := tx.Credit(ask.Payer, market.SettlementMint, ask.Rent); err != nil {
		return nil, err
	}
	tx.Delete(key)
	return ask, nil
}
