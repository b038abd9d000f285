package strategy

import (
	"fmt"

	"market_go/internal/domain"
	"market_go/internal/ledger"
	"market_go/internal/pda"

	"github.com/gagliardetto/solana-go"
)

// Transfer is a request to move Quantity units out of Source into the
// recipient's token account, signed by the program authority.
type Transfer struct {
	Asset     *domain.Asset
	Source    *domain.TokenAccount
	Recipient solana.PublicKey
	Quantity  uint64
}

// Strategy is the contract every asset class implements.
// All methods stage their writes in tx; on error the caller discards tx,
// so a failed call never leaves a partial move behind.
type Strategy interface {
	Class() domain.AssetClass

	// AssertTransferable checks that owner controls quantity units in ta
	// and that nothing else holds the asset.
	AssertTransferable(tx *ledger.Tx, owner solana.PublicKey, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error

	// List hands control of quantity units to the program authority.
	List(tx *ledger.Tx, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error

	// Delist returns control to the owner.
	Delist(tx *ledger.Tx, ta *domain.TokenAccount, asset *domain.Asset) error

	// Transfer moves the units and returns the destination token account.
	Transfer(tx *ledger.Tx, req Transfer) (*domain.TokenAccount, error)
}

// Registry selects a strategy by asset class.
type Registry struct {
	strategies map[domain.AssetClass]Strategy
}

// NewRegistry builds the three strategies around the program authority.
func NewRegistry(authority solana.PublicKey, rules *RuleEngine) *Registry {
	if rules == nil {
		rules = NewRuleEngine()
	}
	return &Registry{strategies: map[domain.AssetClass]Strategy{
		domain.ClassPlain:   &Plain{authority: authority},
		domain.ClassRules:   &Rules{authority: authority, engine: rules},
		domain.ClassGuarded: &Guarded{authority: authority},
	}}
}

// Select returns the strategy for class.
func (r *Registry) Select(class domain.AssetClass) (Strategy, error) {
	s, ok := r.strategies[class]
	if !ok {
		return nil, fmt.Errorf("%w: no transfer strategy for %s", domain.ErrInvalidAccountState, class)
	}
	return s, nil
}

func wrap(class domain.AssetClass, mint solana.PublicKey, err error) error {
	if err == nil {
		return nil
	}
	return &domain.TransferError{Class: class, Mint: mint, Err: err}
}

// checkHolding is the balance check shared by every class.
func checkHolding(owner solana.PublicKey, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error {
	if quantity == 0 {
		return domain.ErrInvalidQuantity
	}
	if !ta.Mint.Equals(asset.Mint) {
		return fmt.Errorf("%w: token account %s holds %s", domain.ErrInvalidAccountState, ta.Address, ta.Mint)
	}
	if !ta.Owner.Equals(owner) {
		return fmt.Errorf("%w: token account %s is owned by %s", domain.ErrUnauthorized, ta.Address, ta.Owner)
	}
	if ta.Amount < quantity {
		return fmt.Errorf("%w: holds %d, need %d", domain.ErrInsufficientAssetBalance, ta.Amount, quantity)
	}
	return nil
}

// checkDelegate verifies the program authority may move quantity units.
func checkDelegate(authority solana.PublicKey, ta *domain.TokenAccount, quantity uint64) error {
	if !ta.Delegate.Equals(authority) || ta.DelegatedAmount < quantity {
		return fmt.Errorf("%w: program authority is not delegate of %s", domain.ErrUnauthorized, ta.Address)
	}
	if ta.Amount < quantity {
		return fmt.Errorf("%w: holds %d, need %d", domain.ErrInsufficientAssetBalance, ta.Amount, quantity)
	}
	return nil
}

// destination loads or opens the recipient's associated token account.
func destination(tx *ledger.Tx, recipient, mint solana.PublicKey) (*domain.TokenAccount, error) {
	addr, err := pda.TokenAccount(recipient, mint)
	if err != nil {
		return nil, err
	}
	if !tx.Exists(addr) {
		return &domain.TokenAccount{Address: addr, Mint: mint, Owner: recipient}, nil
	}
	dst, err := tx.TokenAccount(addr)
	if err != nil {
		return nil, err
	}
	if !dst.Owner.Equals(recipient) || !dst.Mint.Equals(mint) {
		return nil, fmt.Errorf("%w: destination %s", domain.ErrInvalidAccountState, addr)
	}
	return dst, nil
}

// move shifts units between two token accounts and stages both.
func move(tx *ledger.Tx, src, dst *domain.TokenAccount, quantity uint64) error {
	if src.Address.Equals(dst.Address) {
		return fmt.Errorf("%w: source and destination are the same account", domain.ErrInvalidAccountState)
	}
	if dst.Amount+quantity < dst.Amount {
		return domain.ErrNumericalOverflow
	}
	src.Amount -= quantity
	dst.Amount += quantity
	tx.Put(src)
	tx.Put(dst)
	return nil
}
