package domain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AssetClass selects the transfer strategy of an asset.
type AssetClass uint8

const (
	// ClassPlain is a token moved by plain ownership transfer.
	ClassPlain AssetClass = iota + 1
	// ClassRules is a non-fungible token whose moves are validated by an
	// external rule set.
	ClassRules
	// ClassGuarded is a token wrapped by a custody guard that must be
	// unlocked to move.
	ClassGuarded
)

func (c AssetClass) String() string {
	switch c {
	case ClassPlain:
		return "plain"
	case ClassRules:
		return "rules"
	case ClassGuarded:
		return "guarded"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// ParseAssetClass parses the textual class name.
func ParseAssetClass(s string) (AssetClass, error) {
	switch s {
	case "plain":
		return ClassPlain, nil
	case "rules":
		return ClassRules, nil
	case "guarded":
		return ClassGuarded, nil
	default:
		return 0, fmt.Errorf("unknown asset class %q", s)
	}
}

func (c AssetClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *AssetClass) UnmarshalText(b []byte) error {
	v, err := ParseAssetClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Creator receives Share percent of the royalty paid on a sale.
type Creator struct {
	Address solana.PublicKey `json:"address"`
	Share   uint8            `json:"share"`
}

// Asset describes a listed token. This system never mints or edits it;
// it is supplied by an external collaborator.
type Asset struct {
	Mint         solana.PublicKey `json:"mint"`
	Class        AssetClass       `json:"class"`
	Supply       uint64           `json:"supply"`
	Decimals     uint8            `json:"decimals"`
	SellerFeeBps uint16           `json:"seller_fee_bps"`
	Creators     []Creator        `json:"creators,omitempty"`
	RuleSet      string           `json:"rule_set,omitempty"`
	GuardProgram solana.PublicKey `json:"guard_program"`
}

func (a *Asset) Kind() Kind            { return KindAsset }
func (a *Asset) Key() solana.PublicKey { return a.Mint }

func (a *Asset) Clone() Account {
	c := *a
	c.Creators = append([]Creator(nil), a.Creators...)
	return &c
}

// IsNonFungible reports whether the asset is a single indivisible unit.
func (a *Asset) IsNonFungible() bool {
	return a.Supply == 1 && a.Decimals == 0
}

// Validate checks royalty and creator share bounds.
func (a *Asset) Validate() error {
	if a.SellerFeeBps > MaxBasisPoints {
		return ErrInvalidBasisPoints
	}
	if len(a.Creators) > 0 {
		var total int
		for _, c := range a.Creators {
			total += int(c.Share)
		}
		if total != 100 {
			return fmt.Errorf("%w: creator shares sum to %d", ErrInvalidAccountState, total)
		}
	}
	switch a.Class {
	case ClassPlain, ClassGuarded:
	case ClassRules:
		if !a.IsNonFungible() {
			return fmt.Errorf("%w: rule-enforced asset must be non-fungible", ErrInvalidAccountState)
		}
	default:
		return fmt.Errorf("%w: unknown class %d", ErrInvalidAccountState, a.Class)
	}
	return nil
}

// TokenAccount holds Amount units of Mint for Owner. Delegate may move up
// to DelegatedAmount; Locked freezes the account while a sale delegate holds it.
type TokenAccount struct {
	Address         solana.PublicKey `json:"address"`
	Mint            solana.PublicKey `json:"mint"`
	Owner           solana.PublicKey `json:"owner"`
	Amount          uint64           `json:"amount"`
	Delegate        solana.PublicKey `json:"delegate"`
	DelegatedAmount uint64           `json:"delegated_amount"`
	Locked          bool             `json:"locked"`
}

func (t *TokenAccount) Kind() Kind            { return KindTokenAccount }
func (t *TokenAccount) Key() solana.PublicKey { return t.Address }
func (t *TokenAccount) Clone() Account        { c := *t; return &c }

// HasDelegate reports whether any delegate is set.
func (t *TokenAccount) HasDelegate() bool {
	return !t.Delegate.IsZero()
}

// ClearDelegate revokes the delegate and unlocks the account.
func (t *TokenAccount) ClearDelegate() {
	t.Delegate = solana.PublicKey{}
	t.DelegatedAmount = 0
	t.Locked = false
}

// Guard is the custody record of a wrapped asset.
type Guard struct {
	Address  solana.PublicKey `json:"address"`
	Mint     solana.PublicKey `json:"mint"`
	LockedBy solana.PublicKey `json:"locked_by"`
	Frozen   bool             `json:"frozen"`
}

func (g *Guard) Kind() Kind            { return KindGuard }
func (g *Guard) Key() solana.PublicKey { return g.Address }
func (g *Guard) Clone() Account        { c := *g; return &c }

// IsLocked reports whether some party holds the unlock credential.
func (g *Guard) IsLocked() bool {
	return !g.LockedBy.IsZero()
}
