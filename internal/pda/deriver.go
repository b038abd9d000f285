// Package pda derives the authority-less accounts of the marketplace.
//
// Every address is a program-derived address: the seed tuple is hashed
// with the program id and bumped until the result falls off the ed25519
// curve, so no private key exists for it. Each role carries its own tag
// seed, which keeps roles from colliding even when they share
// participants.
package pda

import (
	"encoding/binary"
	"fmt"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
)

// DefaultPrefix is the domain prefix of every seed tuple.
const DefaultPrefix = "m2"

// Role tags.
const (
	RoleMarket           = "market"
	RoleEscrow           = "escrow"
	RoleTreasury         = "treasury"
	RoleBuyTradeState    = "bid"
	RoleSellTradeState   = "ask"
	RoleProgramAuthority = "signer"
	RoleGuard            = "mint_state"
)

// Address is a derived key plus the bump that pushed it off the curve.
type Address struct {
	Key  solana.PublicKey
	Bump uint8
}

// Deriver derives and verifies addresses for one program id.
type Deriver struct {
	programID solana.PublicKey
	prefix    []byte
}

// NewDeriver creates a deriver. An empty prefix selects DefaultPrefix.
func NewDeriver(programID solana.PublicKey, prefix string) *Deriver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Deriver{programID: programID, prefix: []byte(prefix)}
}

// ProgramID returns the program the addresses belong to.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

func (d *Deriver) find(role string, parts ...[]byte) (Address, error) {
	seeds := make([][]byte, 0, len(parts)+2)
	seeds = append(seeds, d.prefix, []byte(role))
	seeds = append(seeds, parts...)
	key, bump, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return Address{}, fmt.Errorf("derive %s: %w", role, err)
	}
	return Address{Key: key, Bump: bump}, nil
}

func u64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// Market derives the market record of creator.
func (d *Deriver) Market(creator solana.PublicKey) (Address, error) {
	return d.find(RoleMarket, creator.Bytes())
}

// Escrow derives the escrow of buyer in market.
func (d *Deriver) Escrow(market, buyer solana.PublicKey) (Address, error) {
	return d.find(RoleEscrow, market.Bytes(), buyer.Bytes())
}

// Treasury derives the fee account of market.
func (d *Deriver) Treasury(market solana.PublicKey) (Address, error) {
	return d.find(RoleTreasury, market.Bytes())
}

// BuyTradeState derives the bid address. Price and quantity are part of
// the fingerprint, so bids that differ in any term get distinct addresses.
func (d *Deriver) BuyTradeState(buyer, market, mint solana.PublicKey, price, quantity uint64) (Address, error) {
	return d.find(RoleBuyTradeState, buyer.Bytes(), market.Bytes(), mint.Bytes(), u64(price), u64(quantity))
}

// SellTradeState derives the listing address. Price is not a seed, so a
// re-listing at a new price lands on the same address.
func (d *Deriver) SellTradeState(seller, market, tokenAccount, mint solana.PublicKey) (Address, error) {
	return d.find(RoleSellTradeState, seller.Bytes(), market.Bytes(), tokenAccount.Bytes(), mint.Bytes())
}

// ProgramAuthority derives the signer-of-record for program-initiated moves.
func (d *Deriver) ProgramAuthority() (Address, error) {
	return d.find(RoleProgramAuthority)
}

// Guard derives the custody record of a wrapped mint under guardProgram.
// Guards live outside this program, so the domain prefix is not used.
func Guard(guardProgram, mint solana.PublicKey) (Address, error) {
	key, bump, err := solana.FindProgramAddress([][]byte{[]byte(RoleGuard), mint.Bytes()}, guardProgram)
	if err != nil {
		return Address{}, fmt.Errorf("derive %s: %w", RoleGuard, err)
	}
	return Address{Key: key, Bump: bump}, nil
}

// TokenAccount derives the associated token account of owner for mint.
func TokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	key, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account: %w", err)
	}
	return key, nil
}

// Verify compares a supplied address with the derived one.
func Verify(role string, supplied solana.PublicKey, derived Address) error {
	if !supplied.Equals(derived.Key) {
		return &domain.AddressMismatchError{Role: role, Supplied: supplied, Derived: derived.Key}
	}
	return nil
}

// VerifyBump re-creates the address from its stored bump and checks that it
// is still off-curve and equal to key.
func (d *Deriver) VerifyBump(role string, key solana.PublicKey, bump uint8, parts ...[]byte) error {
	seeds := make([][]byte, 0, len(parts)+3)
	seeds = append(seeds, d.prefix, []byte(role))
	seeds = append(seeds, parts...)
	seeds = append(seeds, []byte{bump})
	derived, err := solana.CreateProgramAddress(seeds, d.programID)
	if err != nil {
		return fmt.Errorf("%w: %s bump %d: %v", domain.ErrAddressMismatch, role, bump, err)
	}
	return Verify(role, key, Address{Key: derived, Bump: bump})
}
