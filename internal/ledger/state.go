// Package ledger holds the account state the instruction handlers operate on.
//
// MemState is the committed state owned by the sequencer goroutine. Handlers
// never touch it directly: they stage every read and write in a Tx, which is
// committed only when the whole instruction succeeds.
package ledger

import (
	"bytes"
	"sort"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
)

// BalanceKey addresses a settlement balance: units of Mint held by Owner.
type BalanceKey struct {
	Owner solana.PublicKey
	Mint  solana.PublicKey
}

// State is read access to accounts and settlement balances.
type State interface {
	Account(key solana.PublicKey) (domain.Account, bool)
	Balance(owner, mint solana.PublicKey) uint64
}

// MemState is the in-memory committed state. It is not safe for concurrent
// use; the sequencer is its only writer.
type MemState struct {
	accounts map[solana.PublicKey]domain.Account
	balances map[BalanceKey]uint64
}

// NewMemState creates an empty state.
func NewMemState() *MemState {
	return &MemState{
		accounts: make(map[solana.PublicKey]domain.Account),
		balances: make(map[BalanceKey]uint64),
	}
}

// Account returns the committed account at key. The result must not be mutated.
func (s *MemState) Account(key solana.PublicKey) (domain.Account, bool) {
	a, ok := s.accounts[key]
	return a, ok
}

func (s *MemState) Balance(owner, mint solana.PublicKey) uint64 {
	return s.balances[BalanceKey{Owner: owner, Mint: mint}]
}

// Put stores a copy of a. Used when restoring and seeding state.
func (s *MemState) Put(a domain.Account) {
	s.accounts[a.Key()] = a.Clone()
}

// SetBalance overwrites a balance. Zero removes the entry.
func (s *MemState) SetBalance(owner, mint solana.PublicKey, amount uint64) {
	k := BalanceKey{Owner: owner, Mint: mint}
	if amount == 0 {
		delete(s.balances, k)
		return
	}
	s.balances[k] = amount
}

// Len returns the number of stored accounts.
func (s *MemState) Len() int {
	return len(s.accounts)
}

// Accounts returns all accounts ordered by address.
func (s *MemState) Accounts() []domain.Account {
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key(), out[j].Key()
		return bytes.Compare(ki[:], kj[:]) < 0
	})
	return out
}

// Balances returns a copy of all non-zero balances.
func (s *MemState) Balances() map[BalanceKey]uint64 {
	out := make(map[BalanceKey]uint64, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out
}

// Begin starts a transaction over s.
func (s *MemState) Begin() *Tx {
	return newTx(s)
}

// Apply writes a change set into the committed state.
func (s *MemState) Apply(cs *ChangeSet) {
	for _, a := range cs.Accounts {
		s.accounts[a.Key()] = a
	}
	for _, k := range cs.Deleted {
		delete(s.accounts, k)
	}
	for k, v := range cs.Balances {
		s.SetBalance(k.Owner, k.Mint, v)
	}
}
