package execution

import (
	"fmt"

	"market_go/internal/domain"
	"market_go/internal/ledger"
	"market_go/internal/pda"

	"github.com/gagliardetto/solana-go"
)

func (p *Processor) createMarket(tx *ledger.Tx, in *CreateMarket) error {
	op := in.Kind()
	addrs, err := verifyAll(op,
		check{pda.RoleMarket, in.Market, func() (pda.Address, error) { return p.deriver.Market(in.Creator) }},
		check{pda.RoleTreasury, in.Treasury, func() (pda.Address, error) { return p.deriver.Treasury(in.Market) }},
	)
	if err != nil {
		return err
	}
	if err := requireSigner(op, in.Signed, in.Creator); err != nil {
		return err
	}
	if tx.Exists(in.Market) {
		return fail(op, fmt.Errorf("%w: market already exists", domain.ErrInvalidAccountState), in.Market)
	}
	if in.SettlementMint.IsZero() {
		return fail(op, fmt.Errorf("%w: settlement mint required", domain.ErrInvalidAccountState))
	}

	authority := in.Authority
	if authority.IsZero() {
		authority = in.Creator
	}
	dest := in.WithdrawalDestination
	if dest.IsZero() {
		dest = authority
	}
	m := &domain.Market{
		Address:               in.Market,
		Creator:               in.Creator,
		Authority:             authority,
		SettlementMint:        in.SettlementMint,
		SettlementDecimals:    in.SettlementDecimals,
		FeeAccount:            in.Treasury,
		WithdrawalDestination: dest,
		FeeBps:                in.FeeBps,
		BuyerReferralBps:      in.BuyerReferralBps,
		SellerReferralBps:     in.SellerReferralBps,
		RequiresSignOff:       in.RequiresSignOff,
		Bump:                  addrs[pda.RoleMarket].Bump,
		TreasuryBump:          addrs[pda.RoleTreasury].Bump,
	}
	if err := m.Validate(); err != nil {
		return fail(op, err, in.Market)
	}
	tx.Put(m)
	return nil
}

func (p *Processor) updateMarket(tx *ledger.Tx, in *UpdateMarket) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	if err := requireSigner(op, in.Signed, m.Authority); err != nil {
		return err
	}
	err = m.Apply(domain.MarketUpdate{
		FeeBps:                in.FeeBps,
		BuyerReferralBps:      in.BuyerReferralBps,
		SellerReferralBps:     in.SellerReferralBps,
		RequiresSignOff:       in.RequiresSignOff,
		NewAuthority:          in.NewAuthority,
		WithdrawalDestination: in.WithdrawalDestination,
	})
	if err != nil {
		return fail(op, err, in.Market)
	}
	tx.Put(m)
	return nil
}

func (p *Processor) withdrawFromTreasury(tx *ledger.Tx, in *WithdrawFromTreasury) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	if _, err := verifyAll(op,
		check{pda.RoleTreasury, in.Treasury, func() (pda.Address, error) { return p.deriver.Treasury(m.Address) }},
	); err != nil {
		return err
	}
	if in.Amount == 0 {
		return fail(op, fmt.Errorf("%w: zero withdrawal", domain.ErrInvalidQuantity))
	}

	leftover, err := domain.ParseAmount(p.cfg.TreasuryMinLeftover, m.SettlementDecimals)
	if err != nil {
		return fail(op, err)
	}
	bal := tx.Balance(in.Treasury, m.SettlementMint)
	if in.Amount > bal || bal-in.Amount < leftover {
		return fail(op, fmt.Errorf("%w: treasury holds %d, must keep %d", domain.ErrInsufficientFunds, bal, leftover), in.Treasury)
	}
	return tx.Transfer(m.SettlementMint, in.Treasury, m.WithdrawalDestination, in.Amount)
}

func (p *Processor) escrowChecks(op Kind, market, buyer, escrow solana.PublicKey) (pda.Address, error) {
	addrs, err := verifyAll(op,
		check{pda.RoleEscrow, escrow, func() (pda.Address, error) { return p.deriver.Escrow(market, buyer) }},
	)
	if err != nil {
		return pda.Address{}, err
	}
	return addrs[pda.RoleEscrow], nil
}

func (p *Processor) deposit(tx *ledger.Tx, in *Deposit) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	addr, err := p.escrowChecks(op, m.Address, in.Buyer, in.Escrow)
	if err != nil {
		return err
	}
	if err := requireSigner(op, in.Signed, in.Buyer); err != nil {
		return err
	}
	if _, err := ledger.Deposit(tx, m, in.Buyer, addr.Key, addr.Bump, in.Amount); err != nil {
		return fail(op, err, in.Escrow)
	}
	return nil
}

func (p *Processor) withdraw(tx *ledger.Tx, in *Withdraw) error {
	op := in.Kind()
	m, err := p.verified(tx, op, in.Market)
	if err != nil {
		return err
	}
	if _, err := p.escrowChecks(op, m.Address, in.Buyer, in.Escrow); err != nil {
		return err
	}
	if err := requireSigner(op, in.Signed, in.Buyer); err != nil {
		return err
	}
	if _, err := ledger.Withdraw(tx, m, in.Buyer, in.Escrow, in.Amount); err != nil {
		return fail(op, err, in.Escrow)
	}
	return nil
}
