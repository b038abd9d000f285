package domain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MaxBasisPoints is 100% expressed in basis points.
const MaxBasisPoints = 10_000

// Market is the per-marketplace configuration record.
// It is read by every handler and written only by its authority.
type Market struct {
	Address               solana.PublicKey `json:"address"`
	Creator               solana.PublicKey `json:"creator"`
	Authority             solana.PublicKey `json:"authority"`
	SettlementMint        solana.PublicKey `json:"settlement_mint"`
	SettlementDecimals    int32            `json:"settlement_decimals"`
	FeeAccount            solana.PublicKey `json:"fee_account"`
	WithdrawalDestination solana.PublicKey `json:"withdrawal_destination"`
	FeeBps                uint16           `json:"fee_bps"`
	BuyerReferralBps      uint16           `json:"buyer_referral_bps"`
	SellerReferralBps     uint16           `json:"seller_referral_bps"`
	RequiresSignOff       bool             `json:"requires_sign_off"`
	Bump                  uint8            `json:"bump"`
	TreasuryBump          uint8            `json:"treasury_bump"`
}

func (m *Market) Kind() Kind            { return KindMarket }
func (m *Market) Key() solana.PublicKey { return m.Address }
func (m *Market) Clone() Account        { c := *m; return &c }

// IsAuthority reports whether k is the market authority.
func (m *Market) IsAuthority(k solana.PublicKey) bool {
	return m.Authority.Equals(k)
}

// Validate checks the fee bounds. Referral shares are paid out of the fee,
// so together they may not exceed it.
func (m *Market) Validate() error {
	if m.FeeBps > MaxBasisPoints {
		return ErrInvalidBasisPoints
	}
	if uint32(m.BuyerReferralBps)+uint32(m.SellerReferralBps) > uint32(m.FeeBps) {
		return fmt.Errorf("%w: referral %d+%d exceeds fee %d",
			ErrInvalidBasisPoints, m.BuyerReferralBps, m.SellerReferralBps, m.FeeBps)
	}
	return nil
}

// MarketUpdate holds optional changes applied by the market authority.
type MarketUpdate struct {
	FeeBps                *uint16
	BuyerReferralBps      *uint16
	SellerReferralBps     *uint16
	RequiresSignOff       *bool
	NewAuthority          *solana.PublicKey
	WithdrawalDestination *solana.PublicKey
}

// Apply validates and applies u to m. On error m is unchanged.
func (m *Market) Apply(u MarketUpdate) error {
	next := *m
	if u.FeeBps != nil {
		next.FeeBps = *u.FeeBps
	}
	if u.BuyerReferralBps != nil {
		next.BuyerReferralBps = *u.BuyerReferralBps
	}
	if u.SellerReferralBps != nil {
		next.SellerReferralBps = *u.SellerReferralBps
	}
	if u.RequiresSignOff != nil {
		next.RequiresSignOff = *u.RequiresSignOff
	}
	if u.NewAuthority != nil {
		next.Authority = *u.NewAuthority
	}
	if u.WithdrawalDestination != nil {
		next.WithdrawalDestination = *u.WithdrawalDestination
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*m = next
	return nil
}
