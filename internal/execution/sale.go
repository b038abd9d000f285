package execution

import (
	"fmt"

	"market_go/internal/domain"
	"market_go/internal/ledger"
	"market_go/internal/pda"
	"market_go/internal/strategy"
)

// executeSale settles a bid against a listing. Effects in order: settlement
// amount, escrow debit, fee and royalty split, asset transfer, closing both
// trade states. Any failure discards all of them.
func (p *Processor) executeSale(tx *ledger.Tx, in *ExecuteSale) (*Sale, error) {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return nil, err
	}
	if _, err := verifyAll(op,
		check{pda.RoleEscrow, in.Escrow, func() (pda.Address, error) { return p.deriver.Escrow(m.Address, in.Buyer) }},
		check{pda.RoleTreasury, in.Treasury, func() (pda.Address, error) { return p.deriver.Treasury(m.Address) }},
		check{pda.RoleBuyTradeState, in.BuyTradeState, func() (pda.Address, error) {
			return p.deriver.BuyTradeState(in.Buyer, m.Address, in.Mint, in.Price, in.Quantity)
		}},
		check{pda.RoleSellTradeState, in.SellTradeState, func() (pda.Address, error) {
			return p.deriver.SellTradeState(in.Seller, m.Address, in.TokenAccount, in.Mint)
		}},
		check{pda.RoleProgramAuthority, in.ProgramAuthority, p.programAuthority},
	); err != nil {
		return nil, err
	}
	if !in.Treasury.Equals(m.FeeAccount) {
		return nil, fail(op, &domain.AddressMismatchError{Role: pda.RoleTreasury, Supplied: in.Treasury, Derived: m.FeeAccount}, in.Treasury)
	}
	if !in.signedBy(in.Buyer) && !in.signedBy(in.Seller) && !in.signedBy(m.Authority) {
		return nil, fail(op, fmt.Errorf("%w: buyer, seller or market authority must sign", domain.ErrUnauthorized))
	}
	if err := requireSignOff(op, in.Signed, m); err != nil {
		return nil, err
	}

	bid, err := tx.BuyTradeState(in.BuyTradeState)
	if err != nil {
		return nil, fail(op, err, in.BuyTradeState)
	}
	ask, err := tx.SellTradeState(in.SellTradeState)
	if err != nil {
		return nil, fail(op, err, in.SellTradeState)
	}
	if bid.Buyer.Equals(ask.Seller) {
		return nil, fail(op, domain.ErrSelfTrade, bid.Buyer)
	}
	if bid.Quantity != ask.Quantity {
		return nil, fail(op, fmt.Errorf("%w: bid %d, listing %d", domain.ErrQuantityMismatch, bid.Quantity, ask.Quantity),
			in.BuyTradeState, in.SellTradeState)
	}
	if !ask.Accepts(bid.Price) {
		return nil, fail(op, fmt.Errorf("%w: bid %d below listing %d", domain.ErrPriceMismatch, bid.Price, ask.Price),
			in.BuyTradeState, in.SellTradeState)
	}
	if err := p.checkExpiry(op, bid.Expiry, bid.Address); err != nil {
		return nil, err
	}
	if err := p.checkExpiry(op, ask.Expiry, ask.Address); err != nil {
		return nil, err
	}

	asset, strat, err := p.loadAsset(tx, op, in.Mint)
	if err != nil {
		return nil, err
	}
	source, err := tx.TokenAccount(ask.TokenAccount)
	if err != nil {
		return nil, fail(op, err, ask.TokenAccount)
	}

	// 1. The bid's price decides the amount, also for wildcard listings.
	total, err := domain.SettlementAmount(bid.Price, bid.Quantity)
	if err != nil {
		return nil, fail(op, err)
	}
	// A referral share with no referrer on the order stays with the treasury.
	var buyerRefBps, sellerRefBps uint16
	if !bid.Referral.IsZero() {
		buyerRefBps = m.BuyerReferralBps
	}
	if !ask.Referral.IsZero() {
		sellerRefBps = m.SellerReferralBps
	}
	split, err := domain.SplitFeeWithReferrals(total, m.FeeBps, buyerRefBps, sellerRefBps)
	if err != nil {
		return nil, fail(op, err, m.Address)
	}
	royalty, err := domain.Royalty(total, asset.SellerFeeBps, bid.CreatorRoyaltyBps)
	if err != nil {
		return nil, fail(op, err, asset.Mint)
	}
	payouts, paid, err := domain.CreatorPayouts(royalty, asset.Creators)
	if err != nil {
		return nil, fail(op, err, asset.Mint)
	}

	// 2. Escrow debit.
	if _, err := ledger.DebitForSettlement(tx, bid, total+paid); err != nil {
		return nil, fail(op, err, in.Escrow)
	}

	// 3. Fee, referral shares, seller proceeds and creator royalties.
	if err := tx.Credit(m.FeeAccount, m.SettlementMint, split.Treasury()); err != nil {
		return nil, fail(op, err, m.FeeAccount)
	}
	if split.BuyerReferral > 0 {
		if err := tx.Credit(bid.Referral, m.SettlementMint, split.BuyerReferral); err != nil {
			return nil, fail(op, err, bid.Referral)
		}
	}
	if split.SellerReferral > 0 {
		if err := tx.Credit(ask.Referral, m.SettlementMint, split.SellerReferral); err != nil {
			return nil, fail(op, err, ask.Referral)
		}
	}
	if err := tx.Credit(ask.Seller, m.SettlementMint, split.SellerProceeds); err != nil {
		return nil, fail(op, err, ask.Seller)
	}
	for _, po := range payouts {
		if err := tx.Credit(po.To, m.SettlementMint, po.Amount); err != nil {
			return nil, fail(op, err, po.To)
		}
	}

	// 4. Asset transfer.
	dst, err := strat.Transfer(tx, strategy.Transfer{
		Asset:     asset,
		Source:    source,
		Recipient: bid.Buyer,
		Quantity:  bid.Quantity,
	})
	if err != nil {
		return nil, fail(op, err, ask.TokenAccount)
	}

	// 5. Close both trade states.
	if _, err := ledger.CloseBuy(tx, m, bid.Address); err != nil {
		return nil, fail(op, err, bid.Address)
	}
	if _, err := ledger.CloseSell(tx, m, ask.Address); err != nil {
		return nil, fail(op, err, ask.Address)
	}

	return &Sale{
		Market:         m.Address,
		Mint:           asset.Mint,
		Buyer:          bid.Buyer,
		Seller:         ask.Seller,
		BuyTradeState:  bid.Address,
		SellTradeState: ask.Address,
		Destination:    dst.Address,
		Price:          bid.Price,
		Quantity:       bid.Quantity,
		Total:          total,
		Fee:            split.Fee,
		BuyerReferral:  split.BuyerReferral,
		SellerReferral: split.SellerReferral,
		SellerProceeds: split.SellerProceeds,
		Royalty:        paid,
		Payouts:        payouts,
	}, nil
}
