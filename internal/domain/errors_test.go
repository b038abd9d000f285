package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestInstructionError(t *testing.T) {
	acct := solana.NewWallet().PublicKey()

	t.Run("wraps sentinel", func(t *testing.T) {
		err := NewInstructionError("withdraw", ErrInsufficientFunds, acct)

		if !errors.Is(err, ErrInsufficientFunds) {
			t.Error("Expected error to wrap ErrInsufficientFunds")
		}
		if !strings.Contains(err.Error(), acct.String()) {
			t.Errorf("Error message %q should name the failing account", err.Error())
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		if NewInstructionError("deposit", nil) != nil {
			t.Error("Expected nil for nil error")
		}
	})

	t.Run("rewrap keeps accounts", func(t *testing.T) {
		other := solana.NewWallet().PublicKey()
		inner := NewInstructionError("open_buy", ErrAlreadyOpen, acct)
		outer := NewInstructionError("buy", inner, other)

		var ie *InstructionError
		if !errors.As(outer, &ie) {
			t.Fatal("Expected InstructionError")
		}
		if ie.Op != "buy" {
			t.Errorf("Expected op buy, got %s", ie.Op)
		}
		if len(ie.Accounts) != 2 {
			t.Errorf("Expected 2 accounts, got %d", len(ie.Accounts))
		}
	})
}

func TestAddressMismatchError(t *testing.T) {
	err := &AddressMismatchError{
		Role:     "escrow",
		Supplied: solana.NewWallet().PublicKey(),
		Derived:  solana.NewWallet().PublicKey(),
	}
	if !errors.Is(err, ErrAddressMismatch) {
		t.Error("Expected AddressMismatchError to unwrap to ErrAddressMismatch")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "program.id", Err: baseErr}

	expected := "config error [program.id]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, baseErr) {
		t.Error("Expected ConfigError to wrap base error")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{nil, CategoryNone},
		{ErrNotFound, CategoryRace},
		{fmt.Errorf("close: %w", ErrNotFound), CategoryRace},
		{ErrUnauthorized, CategoryPolicy},
		{ErrSelfTrade, CategoryPolicy},
		{&TransferError{Class: ClassRules, Err: ErrRuleRejected}, CategoryExternal},
		{ErrGuardMismatch, CategoryExternal},
		{ErrInsufficientFunds, CategoryValidation},
		{&AddressMismatchError{Role: "escrow"}, CategoryValidation},
		{errors.New("disk on fire"), CategoryInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
