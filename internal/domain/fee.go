package domain

import (
	"market_go/pkg/safe"

	"github.com/gagliardetto/solana-go"
)

// Split is the division of a settlement amount between the market and the seller.
// Fee + SellerProceeds == Total always holds. The referral shares are carved
// out of Fee; the treasury keeps the rest.
type Split struct {
	Total          uint64
	Fee            uint64
	BuyerReferral  uint64
	SellerReferral uint64
	SellerProceeds uint64
}

// Treasury returns the part of the fee not paid to referrers.
func (s Split) Treasury() uint64 {
	return s.Fee - s.BuyerReferral - s.SellerReferral
}

// SplitFee computes fee = floor(total*feeBps/10000) and gives the
// remainder to the seller.
func SplitFee(total uint64, feeBps uint16) (Split, error) {
	return SplitFeeWithReferrals(total, feeBps, 0, 0)
}

// SplitFeeWithReferrals is SplitFee with floor(total*bps/10000) of the fee
// set aside for the buyer's and the seller's referrer.
func SplitFeeWithReferrals(total uint64, feeBps, buyerReferralBps, sellerReferralBps uint16) (Split, error) {
	if feeBps > MaxBasisPoints || uint32(buyerReferralBps)+uint32(sellerReferralBps) > uint32(feeBps) {
		return Split{}, ErrInvalidBasisPoints
	}
	fee, err := safe.MulDiv(total, uint64(feeBps), MaxBasisPoints)
	if err != nil {
		return Split{}, ErrNumericalOverflow
	}
	buyerRef, err := safe.MulDiv(total, uint64(buyerReferralBps), MaxBasisPoints)
	if err != nil {
		return Split{}, ErrNumericalOverflow
	}
	sellerRef, err := safe.MulDiv(total, uint64(sellerReferralBps), MaxBasisPoints)
	if err != nil {
		return Split{}, ErrNumericalOverflow
	}
	if buyerRef+sellerRef > fee {
		return Split{}, ErrNumericalOverflow
	}
	return Split{
		Total:          total,
		Fee:            fee,
		BuyerReferral:  buyerRef,
		SellerReferral: sellerRef,
		SellerProceeds: total - fee,
	}, nil
}

// SettlementAmount returns price*quantity.
func SettlementAmount(price, quantity uint64) (uint64, error) {
	v, err := safe.Mul(price, quantity)
	if err != nil {
		return 0, ErrNumericalOverflow
	}
	return v, nil
}

// Royalty is the creator royalty a buyer pays on top of total: the asset's
// royalty rate scaled by the share the buyer agreed to.
func Royalty(total uint64, sellerFeeBps, buyerRoyaltyBps uint16) (uint64, error) {
	if sellerFeeBps > MaxBasisPoints || buyerRoyaltyBps > MaxBasisPoints {
		return 0, ErrInvalidBasisPoints
	}
	full, err := safe.MulDiv(total, uint64(sellerFeeBps), MaxBasisPoints)
	if err != nil {
		return 0, ErrNumericalOverflow
	}
	v, err := safe.MulDiv(full, uint64(buyerRoyaltyBps), MaxBasisPoints)
	if err != nil {
		return 0, ErrNumericalOverflow
	}
	return v, nil
}

// Payout is an amount owed to one address.
type Payout struct {
	To     solana.PublicKey
	Amount uint64
}

// CreatorPayouts divides royalty by creator share. Rounding dust is not
// distributed; paid is the sum of all payouts.
func CreatorPayouts(royalty uint64, creators []Creator) (payouts []Payout, paid uint64, err error) {
	if royalty == 0 {
		return nil, 0, nil
	}
	for _, c := range creators {
		amt, err := safe.MulDiv(royalty, uint64(c.Share), 100)
		if err != nil {
			return nil, 0, ErrNumericalOverflow
		}
		if amt == 0 {
			continue
		}
		payouts = append(payouts, Payout{To: c.Address, Amount: amt})
		paid += amt
	}
	return payouts, paid, nil
}
