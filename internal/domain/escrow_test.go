package domain

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestEscrow_DepositWithdraw(t *testing.T) {
	e := &Escrow{}

	if err := e.Credit(1000); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := e.Withdraw(400); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if e.Amount != 600 {
		t.Errorf("Expected 600, got %d", e.Amount)
	}

	t.Run("over balance", func(t *testing.T) {
		err := e.Withdraw(601)
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Errorf("Expected ErrInsufficientFunds, got %v", err)
		}
		if e.Amount != 600 {
			t.Errorf("Balance should be unchanged, got %d", e.Amount)
		}
	})
}

func TestEscrow_Commitments(t *testing.T) {
	e := &Escrow{Amount: 1000}

	if err := e.Reserve(700); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if e.Available() != 300 {
		t.Errorf("Expected 300 available, got %d", e.Available())
	}

	t.Run("withdraw cannot touch committed funds", func(t *testing.T) {
		if err := e.Withdraw(301); !errors.Is(err, ErrInsufficientFunds) {
			t.Errorf("Expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("second reserve beyond available", func(t *testing.T) {
		if err := e.Reserve(301); !errors.Is(err, ErrInsufficientFunds) {
			t.Errorf("Expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("release then debit", func(t *testing.T) {
		if err := e.Release(700); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if err := e.Debit(700); err != nil {
			t.Fatalf("Debit failed: %v", err)
		}
		if e.Amount != 300 || e.Committed != 0 {
			t.Errorf("Expected amount 300 committed 0, got %d/%d", e.Amount, e.Committed)
		}
	})

	t.Run("release more than committed", func(t *testing.T) {
		if err := e.Release(1); !errors.Is(err, ErrInvalidAccountState) {
			t.Errorf("Expected ErrInvalidAccountState, got %v", err)
		}
	})

	if err := e.VerifyInvariant(); err != nil {
		t.Errorf("Invariant violated: %v", err)
	}
}

func TestEscrow_DebitChecksOtherCommitments(t *testing.T) {
	e := &Escrow{Amount: 1000, Committed: 800}
	if err := e.Debit(300); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	if e.Amount != 1000 {
		t.Errorf("Balance should be unchanged, got %d", e.Amount)
	}
}

func TestEscrow_DepositWithdrawProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Uint64Range(0, MaxPrice).Draw(t, "deposit")
		b := rapid.Uint64Range(0, MaxPrice).Draw(t, "withdraw")

		e := &Escrow{}
		if err := e.Credit(a); err != nil {
			t.Fatalf("Credit failed: %v", err)
		}
		err := e.Withdraw(b)
		if b <= a {
			if err != nil {
				t.Fatalf("Withdraw(%d) after Deposit(%d) failed: %v", b, a, err)
			}
			if e.Amount != a-b {
				t.Fatalf("Expected %d, got %d", a-b, e.Amount)
			}
			return
		}
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
		}
		if e.Amount != a {
			t.Fatalf("Balance changed on failed withdraw: %d", e.Amount)
		}
	})
}
