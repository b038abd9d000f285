package app

import (
	"errors"
	"strconv"

	"market_go/internal/domain"
	"market_go/internal/infra"
	"market_go/internal/ledger"
	"market_go/internal/pda"
	"market_go/pkg/safe"
)

// Genesis builds the initial state from the genesis section: registered
// assets with their holders' token accounts, guard records for wrapped
// mints, and wallet balances.
func Genesis(cfg *infra.Config) (*ledger.MemState, error) {
	st := ledger.NewMemState()

	for i, ac := range cfg.Genesis.Assets {
		field := "genesis.assets[" + strconv.Itoa(i) + "]"
		if err := seedAsset(st, field, ac); err != nil {
			return nil, err
		}
	}

	for i, bc := range cfg.Genesis.Balances {
		field := "genesis.balances[" + strconv.Itoa(i) + "]"
		owner, err := infra.ParseKey(field+".owner", bc.Owner)
		if err != nil {
			return nil, err
		}
		mint, err := infra.ParseKey(field+".mint", bc.Mint)
		if err != nil {
			return nil, err
		}
		amount, err := domain.ParseAmount(bc.Amount, bc.Decimals)
		if err != nil {
			return nil, &domain.ConfigError{Field: field + ".amount", Err: err}
		}
		total, err := safe.Add(st.Balance(owner, mint), amount)
		if err != nil {
			return nil, &domain.ConfigError{Field: field + ".amount", Err: err}
		}
		st.SetBalance(owner, mint, total)
	}

	return st, nil
}

func seedAsset(st *ledger.MemState, field string, ac infra.AssetConfig) error {
	mint, err := infra.ParseKey(field+".mint", ac.Mint)
	if err != nil {
		return err
	}
	holder, err := infra.ParseKey(field+".holder", ac.Holder)
	if err != nil {
		return err
	}
	guardProgram, err := infra.ParseOptionalKey(field+".guard_program", ac.GuardProgram)
	if err != nil {
		return err
	}
	class, err := domain.ParseAssetClass(ac.Class)
	if err != nil {
		return &domain.ConfigError{Field: field + ".class", Err: err}
	}
	if _, exists := st.Account(mint); exists {
		return &domain.ConfigError{Field: field + ".mint", Err: errors.New("duplicate asset")}
	}

	asset := &domain.Asset{
		Mint:         mint,
		Class:        class,
		Supply:       ac.Supply,
		Decimals:     ac.Decimals,
		SellerFeeBps: ac.SellerFeeBps,
		RuleSet:      ac.RuleSet,
		GuardProgram: guardProgram,
	}
	for j, cc := range ac.Creators {
		addr, err := infra.ParseKey(field+".creators["+strconv.Itoa(j)+"]", cc.Address)
		if err != nil {
			return err
		}
		asset.Creators = append(asset.Creators, domain.Creator{Address: addr, Share: cc.Share})
	}

	locked := false
	if class == domain.ClassGuarded {
		if guardProgram.IsZero() {
			return &domain.ConfigError{Field: field + ".guard_program", Err: errors.New("required for guarded assets")}
		}
		g, err := pda.Guard(guardProgram, mint)
		if err != nil {
			return &domain.ConfigError{Field: field + ".guard_program", Err: err}
		}
		st.Put(&domain.Guard{Address: g.Key, Mint: mint, Frozen: true})
		locked = true
	}

	ta, err := pda.TokenAccount(holder, mint)
	if err != nil {
		return &domain.ConfigError{Field: field + ".holder", Err: err}
	}
	st.Put(asset)
	st.Put(&domain.TokenAccount{
		Address: ta,
		Mint:    mint,
		Owner:   holder,
		Amount:  ac.Supply,
		Locked:  locked,
	})
	return nil
}
