package strategy

import (
	"fmt"

	"market_go/internal/domain"
	"market_go/internal/ledger"
	"market_go/internal/pda"

	"github.com/gagliardetto/solana-go"
)

// Guarded moves tokens held inside a custody guard. Moving requires the
// program to hold the guard's unlock credential; the guard is re-locked
// for the new holder afterwards.
type Guarded struct {
	authority solana.PublicKey
}

func (g *Guarded) Class() domain.AssetClass { return domain.ClassGuarded }

func (g *Guarded) guard(tx *ledger.Tx, asset *domain.Asset) (*domain.Guard, error) {
	addr, err := pda.Guard(asset.GuardProgram, asset.Mint)
	if err != nil {
		return nil, err
	}
	gd, err := tx.Guard(addr.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: no guard at %s: %v", domain.ErrGuardMismatch, addr.Key, err)
	}
	if !gd.Mint.Equals(asset.Mint) {
		return nil, fmt.Errorf("%w: guard %s wraps %s", domain.ErrGuardMismatch, gd.Address, gd.Mint)
	}
	return gd, nil
}

func (g *Guarded) AssertTransferable(tx *ledger.Tx, owner solana.PublicKey, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error {
	if err := checkHolding(owner, ta, asset, quantity); err != nil {
		return wrap(g.Class(), asset.Mint, err)
	}
	gd, err := g.guard(tx, asset)
	if err != nil {
		return wrap(g.Class(), asset.Mint, err)
	}
	if gd.IsLocked() && !gd.LockedBy.Equals(g.authority) {
		return wrap(g.Class(), asset.Mint, fmt.Errorf("%w: locked by %s", domain.ErrGuardMismatch, gd.LockedBy))
	}
	return nil
}

// List approves the program and locks the guard to it.
func (g *Guarded) List(tx *ledger.Tx, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error {
	if err := g.AssertTransferable(tx, ta.Owner, ta, asset, quantity); err != nil {
		return err
	}
	gd, err := g.guard(tx, asset)
	if err != nil {
		return wrap(g.Class(), asset.Mint, err)
	}
	gd.LockedBy = g.authority
	gd.Frozen = true
	ta.Delegate = g.authority
	ta.DelegatedAmount = quantity
	ta.Locked = true
	tx.Put(gd)
	tx.Put(ta)
	return nil
}

// Delist releases the program's lock. The token stays frozen by the guard.
func (g *Guarded) Delist(tx *ledger.Tx, ta *domain.TokenAccount, asset *domain.Asset) error {
	gd, err := g.guard(tx, asset)
	if err != nil {
		return wrap(g.Class(), asset.Mint, err)
	}
	if gd.LockedBy.Equals(g.authority) {
		gd.LockedBy = solana.PublicKey{}
		tx.Put(gd)
	}
	if ta.Delegate.Equals(g.authority) {
		ta.ClearDelegate()
		ta.Locked = gd.Frozen
		tx.Put(ta)
	}
	return nil
}

// Transfer unlocks the guard, moves the units and re-locks on the
// destination side.
func (g *Guarded) Transfer(tx *ledger.Tx, req Transfer) (*domain.TokenAccount, error) {
	src := req.Source
	gd, err := g.guard(tx, req.Asset)
	if err != nil {
		return nil, wrap(g.Class(), req.Asset.Mint, err)
	}
	if !gd.LockedBy.Equals(g.authority) {
		return nil, wrap(g.Class(), req.Asset.Mint, fmt.Errorf("%w: program does not hold the unlock credential", domain.ErrGuardMismatch))
	}
	if err := checkDelegate(g.authority, src, req.Quantity); err != nil {
		return nil, wrap(g.Class(), req.Asset.Mint, err)
	}
	dst, err := destination(tx, req.Recipient, req.Asset.Mint)
	if err != nil {
		return nil, wrap(g.Class(), req.Asset.Mint, err)
	}

	gd.LockedBy = solana.PublicKey{}
	gd.Frozen = false
	src.DelegatedAmount -= req.Quantity
	if src.DelegatedAmount == 0 {
		src.ClearDelegate()
	}
	if err := move(tx, src, dst, req.Quantity); err != nil {
		return nil, wrap(g.Class(), req.Asset.Mint, err)
	}

	gd.Frozen = true
	src.Locked = true
	dst.Locked = true
	tx.Put(src)
	tx.Put(dst)
	tx.Put(gd)
	return dst, nil
}
