package execution

import (
	"fmt"

	"market_go/internal/domain"
	"market_go/internal/ledger"
	"market_go/internal/pda"
	"market_go/internal/strategy"

	"github.com/gagliardetto/solana-go"
)

func (p *Processor) loadAsset(tx *ledger.Tx, op Kind, mint solana.PublicKey) (*domain.Asset, strategy.Strategy, error) {
	asset, err := tx.Asset(mint)
	if err != nil {
		return nil, nil, fail(op, err, mint)
	}
	s, err := p.registry.Select(asset.Class)
	if err != nil {
		return nil, nil, fail(op, err, mint)
	}
	return asset, s, nil
}

func (p *Processor) checkExpiry(op Kind, expiry int64, key solana.PublicKey) error {
	if domain.Expired(expiry, p.now()) {
		return fail(op, domain.ErrExpired, key)
	}
	return nil
}

func (p *Processor) sell(tx *ledger.Tx, in *Sell) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	addrs, err := verifyAll(op,
		check{pda.RoleSellTradeState, in.SellTradeState, func() (pda.Address, error) {
			return p.deriver.SellTradeState(in.Seller, m.Address, in.TokenAccount, in.Mint)
		}},
		check{pda.RoleProgramAuthority, in.ProgramAuthority, p.programAuthority},
	)
	if err != nil {
		return err
	}
	if err := requireSigner(op, in.Signed, in.Seller); err != nil {
		return err
	}
	if err := requireSignOff(op, in.Signed, m); err != nil {
		return err
	}
	if err := domain.ValidatePrice(in.Price, true); err != nil {
		return fail(op, err)
	}
	if in.Quantity == 0 {
		return fail(op, domain.ErrInvalidQuantity)
	}
	if err := p.checkExpiry(op, in.Expiry, in.SellTradeState); err != nil {
		return err
	}

	asset, strat, err := p.loadAsset(tx, op, in.Mint)
	if err != nil {
		return err
	}
	ta, err := tx.TokenAccount(in.TokenAccount)
	if err != nil {
		return fail(op, err, in.TokenAccount)
	}

	// A token delegated to the program with no listing here is listed in
	// another market. Opening a second listing would let either cancel
	// revoke the delegation the other one relies on.
	if !tx.Exists(in.SellTradeState) && ta.Delegate.Equals(p.Authority()) {
		return fail(op, fmt.Errorf("%w: token account %s is listed in another market", domain.ErrAlreadyOpen, ta.Address),
			in.TokenAccount)
	}

	// A listing with different terms at the same address is replaced in place.
	if tx.Exists(in.SellTradeState) {
		prev, err := tx.SellTradeState(in.SellTradeState)
		if err != nil {
			return fail(op, err, in.SellTradeState)
		}
		if prev.Price == in.Price && prev.Quantity == in.Quantity && prev.Expiry == in.Expiry {
			return fail(op, domain.ErrAlreadyOpen, in.SellTradeState)
		}
		if _, err := ledger.CloseSell(tx, m, in.SellTradeState); err != nil {
			return fail(op, err, in.SellTradeState)
		}
	}

	ask := &domain.SellTradeState{
		Address:      in.SellTradeState,
		Market:       m.Address,
		Seller:       in.Seller,
		TokenAccount: in.TokenAccount,
		Mint:         in.Mint,
		Price:        in.Price,
		Quantity:     in.Quantity,
		Expiry:       in.Expiry,
		Referral:     in.Referral,
		Payer:        in.Seller,
		Bump:         addrs[pda.RoleSellTradeState].Bump,
	}
	if err := ledger.OpenSell(tx, m, ask, ta, asset, strat, p.cfg.RentPerByte); err != nil {
		return fail(op, err, in.SellTradeState, in.TokenAccount)
	}
	if err := strat.List(tx, ta, asset, in.Quantity); err != nil {
		return fail(op, err, in.TokenAccount)
	}
	return nil
}

func (p *Processor) cancelSell(tx *ledger.Tx, in *CancelSell) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	if _, err := verifyAll(op,
		check{pda.RoleSellTradeState, in.SellTradeState, func() (pda.Address, error) {
			return p.deriver.SellTradeState(in.Seller, m.Address, in.TokenAccount, in.Mint)
		}},
		check{pda.RoleProgramAuthority, in.ProgramAuthority, p.programAuthority},
	); err != nil {
		return err
	}
	if !in.signedBy(in.Seller) && !in.signedBy(m.Authority) {
		return fail(op, fmt.Errorf("%w: seller or market authority must sign", domain.ErrUnauthorized), in.Seller)
	}

	ask, err := ledger.CloseSell(tx, m, in.SellTradeState)
	if err != nil {
		return fail(op, err, in.SellTradeState)
	}
	asset, strat, err := p.loadAsset(tx, op, ask.Mint)
	if err != nil {
		return err
	}
	ta, err := tx.TokenAccount(ask.TokenAccount)
	if err != nil {
		return fail(op, err, ask.TokenAccount)
	}
	if err := strat.Delist(tx, ta, asset); err != nil {
		return fail(op, err, ask.TokenAccount)
	}
	return nil
}

func (p *Processor) buy(tx *ledger.Tx, in *Buy) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	addrs, err := verifyAll(op,
		check{pda.RoleEscrow, in.Escrow, func() (pda.Address, error) { return p.deriver.Escrow(m.Address, in.Buyer) }},
		check{pda.RoleBuyTradeState, in.BuyTradeState, func() (pda.Address, error) {
			return p.deriver.BuyTradeState(in.Buyer, m.Address, in.Mint, in.Price, in.Quantity)
		}},
	)
	if err != nil {
		return err
	}
	if err := requireSigner(op, in.Signed, in.Buyer); err != nil {
		return err
	}
	if err := domain.ValidatePrice(in.Price, false); err != nil {
		return fail(op, err)
	}
	if in.Quantity == 0 {
		return fail(op, domain.ErrInvalidQuantity)
	}
	if in.CreatorRoyaltyBps > domain.MaxBasisPoints {
		return fail(op, domain.ErrInvalidBasisPoints)
	}
	expiry := in.Expiry
	if expiry == 0 && p.cfg.DefaultBidExpiry > 0 {
		expiry = p.now().Add(p.cfg.DefaultBidExpiry).Unix()
	}
	if err := p.checkExpiry(op, expiry, in.BuyTradeState); err != nil {
		return err
	}

	asset, err := tx.Asset(in.Mint)
	if err != nil {
		return fail(op, err, in.Mint)
	}
	committed, err := commitment(in.Price, in.Quantity, asset.SellerFeeBps, in.CreatorRoyaltyBps)
	if err != nil {
		return fail(op, err)
	}

	if in.TopUp {
		if err := topUp(tx, m, in.Buyer, addrs[pda.RoleEscrow], committed); err != nil {
			return fail(op, err, in.Escrow)
		}
	}

	bid := &domain.BuyTradeState{
		Address:           in.BuyTradeState,
		Market:            m.Address,
		Buyer:             in.Buyer,
		Mint:              in.Mint,
		Escrow:            in.Escrow,
		Price:             in.Price,
		Quantity:          in.Quantity,
		CreatorRoyaltyBps: in.CreatorRoyaltyBps,
		Referral:          in.Referral,
		Committed:         committed,
		Expiry:            expiry,
		Payer:             in.Buyer,
		Bump:              addrs[pda.RoleBuyTradeState].Bump,
	}
	if err := ledger.OpenBuy(tx, m, bid, p.cfg.RentPerByte); err != nil {
		return fail(op, err, in.BuyTradeState, in.Escrow)
	}
	return nil
}

// topUp deposits into the buyer's escrow whatever it lacks to reserve
// committed on top of its other open bids.
func topUp(tx *ledger.Tx, m *domain.Market, buyer solana.PublicKey, escrow pda.Address, committed uint64) error {
	var available uint64
	e, err := tx.Escrow(escrow.Key)
	switch {
	case err == nil:
		available = e.Available()
	case tx.Exists(escrow.Key):
		return err
	}
	if available >= committed {
		return nil
	}
	_, err = ledger.Deposit(tx, m, buyer, escrow.Key, escrow.Bump, committed-available)
	return err
}

// commitment is what a bid reserves: the settlement amount plus the
// royalty the buyer agreed to pay on top.
func commitment(price, quantity uint64, sellerFeeBps, royaltyBps uint16) (uint64, error) {
	total, err := domain.SettlementAmount(price, quantity)
	if err != nil {
		return 0, err
	}
	royalty, err := domain.Royalty(total, sellerFeeBps, royaltyBps)
	if err != nil {
		return 0, err
	}
	if total+royalty < total {
		return 0, domain.ErrNumericalOverflow
	}
	return total + royalty, nil
}

func (p *Processor) cancelBuy(tx *ledger.Tx, in *CancelBuy) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	if _, err := verifyAll(op,
		check{pda.RoleBuyTradeState, in.BuyTradeState, func() (pda.Address, error) {
			return p.deriver.BuyTradeState(in.Buyer, m.Address, in.Mint, in.Price, in.Quantity)
		}},
	); err != nil {
		return err
	}
	if err := requireSigner(op, in.Signed, in.Buyer); err != nil {
		return err
	}
	if _, err := ledger.CloseBuy(tx, m, in.BuyTradeState); err != nil {
		return fail(op, err, in.BuyTradeState)
	}
	return nil
}
