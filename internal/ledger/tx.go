package ledger

import (
	"fmt"

	"market_go/internal/domain"
	"market_go/pkg/safe"

	"github.com/gagliardetto/solana-go"
)

// ChangeSet is the net effect of a committed transaction.
type ChangeSet struct {
	Accounts []domain.Account
	Deleted  []solana.PublicKey
	Balances map[BalanceKey]uint64
}

// Empty reports whether the change set writes nothing.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Accounts) == 0 && len(cs.Deleted) == 0 && len(cs.Balances) == 0
}

// Tx stages account and balance writes over a base state. Reads see staged
// writes first. Nothing reaches the base until Commit.
type Tx struct {
	base     *MemState
	accounts map[solana.PublicKey]domain.Account // nil value = deleted
	order    []solana.PublicKey
	balances map[BalanceKey]uint64
	done     bool
}

func newTx(base *MemState) *Tx {
	return &Tx{
		base:     base,
		accounts: make(map[solana.PublicKey]domain.Account),
		balances: make(map[BalanceKey]uint64),
	}
}

// Account returns a private copy of the account at key.
func (tx *Tx) Account(key solana.PublicKey) (domain.Account, bool) {
	if a, ok := tx.accounts[key]; ok {
		if a == nil {
			return nil, false
		}
		return a.Clone(), true
	}
	a, ok := tx.base.Account(key)
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Exists reports whether an account is stored at key.
func (tx *Tx) Exists(key solana.PublicKey) bool {
	if a, ok := tx.accounts[key]; ok {
		return a != nil
	}
	_, ok := tx.base.Account(key)
	return ok
}

// Put stages a write of a.
func (tx *Tx) Put(a domain.Account) {
	tx.touch(a.Key())
	tx.accounts[a.Key()] = a.Clone()
}

// Delete stages removal of the account at key.
func (tx *Tx) Delete(key solana.PublicKey) {
	tx.touch(key)
	tx.accounts[key] = nil
}

func (tx *Tx) touch(key solana.PublicKey) {
	if _, ok := tx.accounts[key]; !ok {
		tx.order = append(tx.order, key)
	}
}

func (tx *Tx) Balance(owner, mint solana.PublicKey) uint64 {
	if v, ok := tx.balances[BalanceKey{Owner: owner, Mint: mint}]; ok {
		return v
	}
	return tx.base.Balance(owner, mint)
}

func (tx *Tx) setBalance(owner, mint solana.PublicKey, amount uint64) {
	tx.balances[BalanceKey{Owner: owner, Mint: mint}] = amount
}

// Credit adds amount to owner's balance of mint.
func (tx *Tx) Credit(owner, mint solana.PublicKey, amount uint64) error {
	next, err := safe.Add(tx.Balance(owner, mint), amount)
	if err != nil {
		return domain.ErrNumericalOverflow
	}
	tx.setBalance(owner, mint, next)
	return nil
}

// Debit removes amount from owner's balance of mint.
func (tx *Tx) Debit(owner, mint solana.PublicKey, amount uint64) error {
	bal := tx.Balance(owner, mint)
	if amount > bal {
		return fmt.Errorf("%w: %s holds %d, need %d", domain.ErrInsufficientFunds, owner, bal, amount)
	}
	tx.setBalance(owner, mint, bal-amount)
	return nil
}

// Transfer moves amount of mint between two balances.
func (tx *Tx) Transfer(mint, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := tx.Debit(from, mint, amount); err != nil {
		return err
	}
	return tx.Credit(to, mint, amount)
}

// Changes returns the staged writes without committing them.
func (tx *Tx) Changes() *ChangeSet {
	cs := &ChangeSet{Balances: make(map[BalanceKey]uint64, len(tx.balances))}
	for _, k := range tx.order {
		if a := tx.accounts[k]; a != nil {
			cs.Accounts = append(cs.Accounts, a)
		} else {
			cs.Deleted = append(cs.Deleted, k)
		}
	}
	for k, v := range tx.balances {
		cs.Balances[k] = v
	}
	return cs
}

// Commit applies the staged writes to the base state and returns them.
// A transaction can be committed once.
func (tx *Tx) Commit() (*ChangeSet, error) {
	if tx.done {
		return nil, fmt.Errorf("%w: transaction already finished", domain.ErrInvalidAccountState)
	}
	cs := tx.Changes()
	tx.base.Apply(cs)
	tx.done = true
	return cs, nil
}

// Rollback discards the staged writes.
func (tx *Tx) Rollback() {
	tx.accounts = nil
	tx.balances = nil
	tx.order = nil
	tx.done = true
}
