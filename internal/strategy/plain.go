package strategy

import (
	"market_go/internal/domain"
	"market_go/internal/ledger"

	"github.com/gagliardetto/solana-go"
)

// Plain moves ordinary tokens through a delegate approval.
type Plain struct {
	authority solana.PublicKey
}

func (p *Plain) Class() domain.AssetClass { return domain.ClassPlain }

func (p *Plain) AssertTransferable(_ *ledger.Tx, owner solana.PublicKey, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error {
	return wrap(p.Class(), asset.Mint, checkHolding(owner, ta, asset, quantity))
}

// List approves the program authority for quantity units. An existing
// approval is replaced.
func (p *Plain) List(tx *ledger.Tx, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error {
	if err := checkHolding(ta.Owner, ta, asset, quantity); err != nil {
		return wrap(p.Class(), asset.Mint, err)
	}
	ta.Delegate = p.authority
	ta.DelegatedAmount = quantity
	tx.Put(ta)
	return nil
}

func (p *Plain) Delist(tx *ledger.Tx, ta *domain.TokenAccount, _ *domain.Asset) error {
	if ta.Delegate.Equals(p.authority) {
		ta.ClearDelegate()
		tx.Put(ta)
	}
	return nil
}

func (p *Plain) Transfer(tx *ledger.Tx, req Transfer) (*domain.TokenAccount, error) {
	src := req.Source
	if err := checkDelegate(p.authority, src, req.Quantity); err != nil {
		return nil, wrap(p.Class(), req.Asset.Mint, err)
	}
	dst, err := destination(tx, req.Recipient, req.Asset.Mint)
	if err != nil {
		return nil, wrap(p.Class(), req.Asset.Mint, err)
	}
	src.DelegatedAmount -= req.Quantity
	if src.DelegatedAmount == 0 {
		src.ClearDelegate()
	}
	if err := move(tx, src, dst, req.Quantity); err != nil {
		return nil, wrap(p.Class(), req.Asset.Mint, err)
	}
	return dst, nil
}
