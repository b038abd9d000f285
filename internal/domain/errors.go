package domain

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAddressMismatch is returned when a supplied account address differs
	// from the address derived for its role. Always checked first.
	ErrAddressMismatch = errors.New("account address mismatch")

	// ErrUnauthorized is returned when the required signer for a role is absent.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSignOffRequired is returned when the market requires its authority to co-sign.
	ErrSignOffRequired = errors.New("market authority sign-off required")

	// ErrInsufficientFunds is returned when an escrow or wallet cannot cover an amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyOpen is returned when a trade state already exists at the derived address.
	ErrAlreadyOpen = errors.New("trade state already open")

	// ErrNotFound is returned when a trade state does not exist. Usually a benign race.
	ErrNotFound = errors.New("trade state not found")

	// ErrPriceMismatch is returned when the buy price is below the listing price.
	ErrPriceMismatch = errors.New("price mismatch")

	// ErrQuantityMismatch is returned when buy and sell quantities differ.
	ErrQuantityMismatch = errors.New("quantity mismatch")

	// ErrSelfTrade is returned when buyer and seller are the same identity.
	ErrSelfTrade = errors.New("self trade not allowed")

	// ErrRuleRejected is returned when an external transfer rule set rejects a move.
	ErrRuleRejected = errors.New("transfer rule rejected")

	// ErrGuardMismatch is returned when a guard account does not belong to the asset.
	ErrGuardMismatch = errors.New("guard mismatch")

	// ErrInsufficientAssetBalance is returned when a token account holds too few units.
	ErrInsufficientAssetBalance = errors.New("insufficient asset balance")

	// ErrInvalidPrice is returned for a zero price or a price above MaxPrice.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidQuantity is returned for a zero quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidBasisPoints is returned for basis points above 10000.
	ErrInvalidBasisPoints = errors.New("invalid basis points")

	// ErrExpired is returned when a trade state has passed its expiry.
	ErrExpired = errors.New("trade state expired")

	// ErrInvalidAccountState is returned when an account holds data inconsistent with the request.
	ErrInvalidAccountState = errors.New("invalid account state")

	// ErrAccountNotFound is returned when a required non-order account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNumericalOverflow is returned when an amount calculation overflows.
	ErrNumericalOverflow = errors.New("numerical overflow")
)

// InstructionError carries the failing operation and the accounts that
// failed validation.
type InstructionError struct {
	Op       string
	Accounts []solana.PublicKey
	Err      error
}

func (e *InstructionError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	if len(e.Accounts) > 0 {
		sb.WriteString(" [")
		for i, a := range e.Accounts {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String())
		}
		sb.WriteString("]")
	}
	return sb.String()
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// NewInstructionError wraps err for op, recording the offending accounts.
// If err already is an InstructionError its accounts are kept.
func NewInstructionError(op string, err error, accounts ...solana.PublicKey) error {
	if err == nil {
		return nil
	}
	var ie *InstructionError
	if errors.As(err, &ie) {
		if ie.Op == op {
			return ie
		}
		accounts = append(accounts, ie.Accounts...)
		err = ie.Err
	}
	return &InstructionError{Op: op, Accounts: accounts, Err: err}
}

// AddressMismatchError describes a supplied address that did not match
// the derived one.
type AddressMismatchError struct {
	Role     string
	Supplied solana.PublicKey
	Derived  solana.PublicKey
}

func (e *AddressMismatchError) Error() string {
	return "address mismatch for " + e.Role + ": supplied " + e.Supplied.String() + ", derived " + e.Derived.String()
}

func (e *AddressMismatchError) Unwrap() error {
	return ErrAddressMismatch
}

// TransferError is returned by asset transfer strategies.
type TransferError struct {
	Class AssetClass
	Mint  solana.PublicKey
	Err   error
}

func (e *TransferError) Error() string {
	return e.Class.String() + " transfer of " + e.Mint.String() + ": " + e.Err.Error()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Category groups errors by what the caller should do about them.
type Category uint8

const (
	CategoryNone Category = iota
	// CategoryRace means the order changed underneath the caller (benign).
	CategoryRace
	// CategoryPolicy means the caller is not allowed to do this.
	CategoryPolicy
	// CategoryExternal means an external rule or guard refused the transfer.
	CategoryExternal
	// CategoryValidation means the request itself was wrong.
	CategoryValidation
	// CategoryInternal means anything else.
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryRace:
		return "race"
	case CategoryPolicy:
		return "policy"
	case CategoryExternal:
		return "external"
	case CategoryValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Classify maps an error onto a Category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		return CategoryRace
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSignOffRequired), errors.Is(err, ErrSelfTrade):
		return CategoryPolicy
	case errors.Is(err, ErrRuleRejected), errors.Is(err, ErrGuardMismatch):
		return CategoryExternal
	case errors.Is(err, ErrAddressMismatch),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAlreadyOpen),
		errors.Is(err, ErrPriceMismatch),
		errors.Is(err, ErrQuantityMismatch),
		errors.Is(err, ErrInsufficientAssetBalance),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidBasisPoints),
		errors.Is(err, ErrInvalidAccountState),
		errors.Is(err, ErrAccountNotFound):
		return CategoryValidation
	default:
		return CategoryInternal
	}
}
