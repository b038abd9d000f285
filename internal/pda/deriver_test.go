package pda

import (
	"errors"
	"testing"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
)

func newTestDeriver() *Deriver {
	return NewDeriver(solana.NewWallet().PublicKey(), "")
}

func TestDeriver_Deterministic(t *testing.T) {
	d := newTestDeriver()
	market := solana.NewWallet().PublicKey()
	buyer := solana.NewWallet().PublicKey()

	a, err := d.Escrow(market, buyer)
	if err != nil {
		t.Fatalf("Escrow failed: %v", err)
	}
	b, _ := d.Escrow(market, buyer)
	if a != b {
		t.Errorf("Expected identical derivation, got %s and %s", a.Key, b.Key)
	}
	if a.Key.IsOnCurve() {
		t.Error("Derived address must be off-curve")
	}
}

func TestDeriver_EveryTermMatters(t *testing.T) {
	d := newTestDeriver()
	buyer := solana.NewWallet().PublicKey()
	market := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	base, _ := d.BuyTradeState(buyer, market, mint, 1000, 1)
	variants := map[string]func() (Address, error){
		"buyer":    func() (Address, error) { return d.BuyTradeState(solana.NewWallet().PublicKey(), market, mint, 1000, 1) },
		"market":   func() (Address, error) { return d.BuyTradeState(buyer, solana.NewWallet().PublicKey(), mint, 1000, 1) },
		"mint":     func() (Address, error) { return d.BuyTradeState(buyer, market, solana.NewWallet().PublicKey(), 1000, 1) },
		"price":    func() (Address, error) { return d.BuyTradeState(buyer, market, mint, 1001, 1) },
		"quantity": func() (Address, error) { return d.BuyTradeState(buyer, market, mint, 1000, 2) },
	}
	for name, fn := range variants {
		t.Run(name, func(t *testing.T) {
			got, err := fn()
			if err != nil {
				t.Fatalf("derive failed: %v", err)
			}
			if got.Key.Equals(base.Key) {
				t.Errorf("Changing %s should change the address", name)
			}
		})
	}
}

func TestDeriver_RolesDoNotCollide(t *testing.T) {
	d := newTestDeriver()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	escrow, _ := d.Escrow(a, b)
	treasury, _ := d.Treasury(a)
	market, _ := d.Market(a)
	signer, _ := d.ProgramAuthority()

	seen := map[solana.PublicKey]string{}
	for name, addr := range map[string]Address{"escrow": escrow, "treasury": treasury, "market": market, "signer": signer} {
		if prev, ok := seen[addr.Key]; ok {
			t.Errorf("%s collides with %s", name, prev)
		}
		seen[addr.Key] = name
	}
}

func TestDeriver_ProgramScoped(t *testing.T) {
	a := newTestDeriver()
	b := newTestDeriver()
	sa, _ := a.ProgramAuthority()
	sb, _ := b.ProgramAuthority()
	if sa.Key.Equals(sb.Key) {
		t.Error("Different programs must derive different authorities")
	}
}

func TestVerify(t *testing.T) {
	d := newTestDeriver()
	market := solana.NewWallet().PublicKey()
	buyer := solana.NewWallet().PublicKey()
	derived, _ := d.Escrow(market, buyer)

	if err := Verify(RoleEscrow, derived.Key, derived); err != nil {
		t.Errorf("Expected match, got %v", err)
	}

	err := Verify(RoleEscrow, solana.NewWallet().PublicKey(), derived)
	if !errors.Is(err, domain.ErrAddressMismatch) {
		t.Errorf("Expected ErrAddressMismatch, got %v", err)
	}
	var me *domain.AddressMismatchError
	if !errors.As(err, &me) || me.Role != RoleEscrow {
		t.Errorf("Expected AddressMismatchError for escrow, got %v", err)
	}
}

func TestVerifyBump(t *testing.T) {
	d := newTestDeriver()
	market := solana.NewWallet().PublicKey()
	addr, _ := d.Treasury(market)

	if err := d.VerifyBump(RoleTreasury, addr.Key, addr.Bump, market.Bytes()); err != nil {
		t.Errorf("Expected stored bump to verify, got %v", err)
	}
	if err := d.VerifyBump(RoleTreasury, solana.NewWallet().PublicKey(), addr.Bump, market.Bytes()); !errors.Is(err, domain.ErrAddressMismatch) {
		t.Errorf("Expected ErrAddressMismatch, got %v", err)
	}
}

func TestTokenAccount(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	a, err := TokenAccount(owner, mint)
	if err != nil {
		t.Fatalf("TokenAccount failed: %v", err)
	}
	b, _ := TokenAccount(owner, mint)
	if !a.Equals(b) {
		t.Error("Associated token address must be deterministic")
	}
}
