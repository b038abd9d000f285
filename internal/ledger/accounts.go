package ledger

import (
	"fmt"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
)

func load[T domain.Account](tx *Tx, key solana.PublicKey, kind domain.Kind, missing error) (T, error) {
	var zero T
	a, ok := tx.Account(key)
	if !ok {
		return zero, fmt.Errorf("%w: %s %s", missing, kind, key)
	}
	v, ok := a.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %s, want %s", domain.ErrInvalidAccountState, key, a.Kind(), kind)
	}
	return v, nil
}

func (tx *Tx) Market(key solana.PublicKey) (*domain.Market, error) {
	return load[*domain.Market](tx, key, domain.KindMarket, domain.ErrAccountNotFound)
}

func (tx *Tx) Escrow(key solana.PublicKey) (*domain.Escrow, error) {
	return load[*domain.Escrow](tx, key, domain.KindEscrow, domain.ErrAccountNotFound)
}

// BuyTradeState loads an open bid. A missing bid is ErrNotFound.
func (tx *Tx) BuyTradeState(key solana.PublicKey) (*domain.BuyTradeState, error) {
	return load[*domain.BuyTradeState](tx, key, domain.KindBuyTradeState, domain.ErrNotFound)
}

// SellTradeState loads an open listing. A missing listing is ErrNotFound.
func (tx *Tx) SellTradeState(key solana.PublicKey) (*domain.SellTradeState, error) {
	return load[*domain.SellTradeState](tx, key, domain.KindSellTradeState, domain.ErrNotFound)
}

// Asset loads the asset description of mint.
func (tx *Tx) Asset(mint solana.PublicKey) (*domain.Asset, error) {
	return load[*domain.Asset](tx, mint, domain.KindAsset, domain.ErrAccountNotFound)
}

func (tx *Tx) TokenAccount(key solana.PublicKey) (*domain.TokenAccount, error) {
	return load[*domain.TokenAccount](tx, key, domain.KindTokenAccount, domain.ErrAccountNotFound)
}

func (tx *Tx) Guard(key solana.PublicKey) (*domain.Guard, error) {
	return load[*domain.Guard](tx, key, domain.KindGuard, domain.ErrAccountNotFound)
}
