package strategy

import (
	"fmt"
	"sync"

	"market_go/internal/domain"
	"market_go/internal/ledger"

	"github.com/gagliardetto/solana-go"
)

// Operation is what a rule set is asked to approve.
type Operation string

const (
	OpDelegate Operation = "delegate"
	OpTransfer Operation = "transfer"
)

// RuleSet is a named transfer policy attached to rule-enforced assets.
// Empty lists allow everything.
type RuleSet struct {
	Name               string
	AllowedDelegates   []solana.PublicKey
	DeniedDestinations []solana.PublicKey
}

// Payload is the context of a rule evaluation.
type Payload struct {
	Authority   solana.PublicKey
	Source      solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
}

// RuleEngine evaluates rule sets by name.
type RuleEngine struct {
	mu   sync.RWMutex
	sets map[string]RuleSet
}

func NewRuleEngine(sets ...RuleSet) *RuleEngine {
	e := &RuleEngine{sets: make(map[string]RuleSet, len(sets))}
	for _, s := range sets {
		e.sets[s.Name] = s
	}
	return e
}

// Register adds or replaces a rule set.
func (e *RuleEngine) Register(s RuleSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sets[s.Name] = s
}

// Validate returns ErrRuleRejected unless the named rule set allows op.
// An asset without a rule set is unrestricted.
func (e *RuleEngine) Validate(op Operation, name string, p Payload) error {
	if name == "" {
		return nil
	}
	e.mu.RLock()
	rs, ok := e.sets[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: unknown rule set %q", domain.ErrRuleRejected, name)
	}
	if p.Amount != 1 {
		return fmt.Errorf("%w: %s of %d units", domain.ErrRuleRejected, op, p.Amount)
	}
	if len(rs.AllowedDelegates) > 0 && !contains(rs.AllowedDelegates, p.Authority) {
		return fmt.Errorf("%w: %s not an allowed delegate in %q", domain.ErrRuleRejected, p.Authority, name)
	}
	if op == OpTransfer && contains(rs.DeniedDestinations, p.Destination) {
		return fmt.Errorf("%w: destination %s denied by %q", domain.ErrRuleRejected, p.Destination, name)
	}
	return nil
}

func contains(keys []solana.PublicKey, k solana.PublicKey) bool {
	for _, c := range keys {
		if c.Equals(k) {
			return true
		}
	}
	return false
}

// Rules moves non-fungible tokens whose every move is checked by a rule
// set. While listed the token record is locked to the program authority.
type Rules struct {
	authority solana.PublicKey
	engine    *RuleEngine
}

func (r *Rules) Class() domain.AssetClass { return domain.ClassRules }

func (r *Rules) AssertTransferable(_ *ledger.Tx, owner solana.PublicKey, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error {
	if quantity != 1 {
		return wrap(r.Class(), asset.Mint, fmt.Errorf("%w: rule-enforced assets move one unit", domain.ErrInvalidQuantity))
	}
	if err := checkHolding(owner, ta, asset, quantity); err != nil {
		return wrap(r.Class(), asset.Mint, err)
	}
	if ta.Locked && !ta.Delegate.Equals(r.authority) {
		return wrap(r.Class(), asset.Mint, fmt.Errorf("%w: token record locked by %s", domain.ErrRuleRejected, ta.Delegate))
	}
	return nil
}

// List approves the program as locked sale delegate once the rule set
// accepts it.
func (r *Rules) List(tx *ledger.Tx, ta *domain.TokenAccount, asset *domain.Asset, quantity uint64) error {
	if err := r.AssertTransferable(tx, ta.Owner, ta, asset, quantity); err != nil {
		return err
	}
	err := r.engine.Validate(OpDelegate, asset.RuleSet, Payload{
		Authority: r.authority,
		Source:    ta.Owner,
		Amount:    quantity,
	})
	if err != nil {
		return wrap(r.Class(), asset.Mint, err)
	}
	ta.Delegate = r.authority
	ta.DelegatedAmount = quantity
	ta.Locked = true
	tx.Put(ta)
	return nil
}

func (r *Rules) Delist(tx *ledger.Tx, ta *domain.TokenAccount, _ *domain.Asset) error {
	if ta.Delegate.Equals(r.authority) {
		ta.ClearDelegate()
		tx.Put(ta)
	}
	return nil
}

func (r *Rules) Transfer(tx *ledger.Tx, req Transfer) (*domain.TokenAccount, error) {
	src := req.Source
	if req.Quantity != 1 {
		return nil, wrap(r.Class(), req.Asset.Mint, fmt.Errorf("%w: rule-enforced assets move one unit", domain.ErrInvalidQuantity))
	}
	if !src.Locked {
		return nil, wrap(r.Class(), req.Asset.Mint, fmt.Errorf("%w: token record is not locked for sale", domain.ErrUnauthorized))
	}
	if err := checkDelegate(r.authority, src, req.Quantity); err != nil {
		return nil, wrap(r.Class(), req.Asset.Mint, err)
	}
	err := r.engine.Validate(OpTransfer, req.Asset.RuleSet, Payload{
		Authority:   r.authority,
		Source:      src.Owner,
		Destination: req.Recipient,
		Amount:      req.Quantity,
	})
	if err != nil {
		return nil, wrap(r.Class(), req.Asset.Mint, err)
	}
	dst, err := destination(tx, req.Recipient, req.Asset.Mint)
	if err != nil {
		return nil, wrap(r.Class(), req.Asset.Mint, err)
	}
	src.ClearDelegate()
	if err := move(tx, src, dst, req.Quantity); err != nil {
		return nil, wrap(r.Class(), req.Asset.Mint, err)
	}
	return dst, nil
}
