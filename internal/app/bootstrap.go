package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"market_go/internal/engine"
	"market_go/internal/event"
	"market_go/internal/execution"
	"market_go/internal/infra"
	"market_go/internal/infra/storage"
	"market_go/internal/ledger"
	"market_go/internal/pda"
	"market_go/internal/service"
	"market_go/internal/strategy"

	"github.com/gagliardetto/solana-go"
)

// Bootstrap orchestrates the node startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Metrics   *infra.Metrics
	Processor *execution.Processor
	State     *ledger.MemState
	Book      *service.BookService

	lastSeq uint64
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration, opens the database and restores the
// committed state (or seeds it from genesis on first start).
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	slog.Info("🚀 Bootstrapping marketplace node...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.DBPath))

	// 4. Processor
	proc, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	b.Processor = proc
	b.Metrics = infra.NewMetrics()
	slog.Info("✅ Processor ready",
		slog.String("program", cfg.Program.ID),
		slog.Int("rule_sets", len(cfg.RuleSets)),
	)

	// 5. Committed state
	if err := b.restore(ctx); err != nil {
		return err
	}

	// 6. Read model
	b.Book = service.NewBookService(service.DefaultTapeSize)
	b.Book.Seed(b.State.Accounts())

	return nil
}

func newProcessor(cfg *infra.Config) (*execution.Processor, error) {
	programID, err := infra.ParseKey("program.id", cfg.Program.ID)
	if err != nil {
		return nil, err
	}
	rules := strategy.NewRuleEngine()
	for i, rc := range cfg.RuleSets {
		field := fmt.Sprintf("rule_sets[%d]", i)
		allowed, err := infra.ParseKeys(field+".allowed_delegates", rc.AllowedDelegates)
		if err != nil {
			return nil, err
		}
		denied, err := infra.ParseKeys(field+".denied_destinations", rc.DeniedDestinations)
		if err != nil {
			return nil, err
		}
		rules.Register(strategy.RuleSet{
			Name:               rc.Name,
			AllowedDelegates:   allowed,
			DeniedDestinations: denied,
		})
	}
	return execution.NewProcessor(pda.NewDeriver(programID, cfg.Program.Prefix), rules, execution.Config{
		RentPerByte:         cfg.Runtime.RentPerByte,
		TreasuryMinLeftover: cfg.Runtime.TreasuryMinLeftover,
		DefaultBidExpiry:    cfg.Runtime.DefaultBidExpiry,
	})
}

func (b *Bootstrap) restore(ctx context.Context) error {
	st, err := b.Storage.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	last, err := b.Storage.LastApplied(ctx)
	if err != nil {
		return fmt.Errorf("last applied: %w", err)
	}

	if st.Len() == 0 && last == 0 {
		st, err = Genesis(b.Config)
		if err != nil {
			return err
		}
		if err := b.Storage.SaveState(ctx, st); err != nil {
			return fmt.Errorf("save genesis: %w", err)
		}
		slog.Info("🌱 Genesis state seeded", slog.Int("accounts", st.Len()))
	} else {
		slog.Info("✅ State restored", slog.Int("accounts", st.Len()), slog.Uint64("last_seq", last))
	}

	b.State = st
	b.lastSeq = last
	return nil
}

// NewSequencer creates the sequencer over the restored state and replays
// logged instructions that never got an outcome. Call before Run.
func (b *Bootstrap) NewSequencer(ctx context.Context, onUpdate func(execution.Receipt, *ledger.ChangeSet)) (*engine.Sequencer, error) {
	seq := engine.NewSequencer(b.Config.Server.InboxSize, b.State, b.Processor, b.Storage, onUpdate)
	seq.SetMetrics(b.Metrics)
	seq.SetDumpPath(filepath.Join(b.Config.Logging.Dir, "panic_dump.json"))
	seq.Resume(b.lastSeq)

	pending, err := b.Storage.LoadEvents(ctx, b.lastSeq)
	if err != nil {
		return nil, fmt.Errorf("load pending events: %w", err)
	}
	for _, ev := range pending {
		r := seq.ReplayEvent(ev)
		slog.Info("🔁 Replayed pending instruction",
			slog.Uint64("seq", r.Seq),
			slog.String("kind", string(r.Kind)),
			slog.String("status", r.Status),
		)
		event.ReleaseInstructionEvent(ev)
	}
	return seq, nil
}

// SeedMarkets creates every configured market that does not exist yet.
// The sequencer must be running.
func (b *Bootstrap) SeedMarkets(ctx context.Context, seq *engine.Sequencer) error {
	d := b.Processor.Deriver()
	for i, mc := range b.Config.Markets {
		field := fmt.Sprintf("markets[%d]", i)
		ins, err := createMarket(d, field, mc)
		if err != nil {
			return err
		}
		if _, exists := seq.Account(ins.Market); exists {
			continue
		}

		r, err := seq.Submit(ctx, ins)
		if err != nil {
			return err
		}
		if !r.Applied() {
			return fmt.Errorf("create %s: %s", field, r.Error)
		}
		slog.Info("🏪 Market created",
			slog.String("market", ins.Market.String()),
			slog.Uint64("seq", r.Seq),
			slog.Int("fee_bps", int(ins.FeeBps)),
		)
	}
	return nil
}

func createMarket(d *pda.Deriver, field string, mc infra.MarketConfig) (*execution.CreateMarket, error) {
	creator, err := infra.ParseKey(field+".creator", mc.Creator)
	if err != nil {
		return nil, err
	}
	authority, err := infra.ParseKey(field+".authority", mc.Authority)
	if err != nil {
		return nil, err
	}
	mint, err := infra.ParseKey(field+".settlement_mint", mc.SettlementMint)
	if err != nil {
		return nil, err
	}
	dest, err := infra.ParseOptionalKey(field+".withdrawal_destination", mc.WithdrawalDestination)
	if err != nil {
		return nil, err
	}
	market, err := d.Market(creator)
	if err != nil {
		return nil, err
	}
	treasury, err := d.Treasury(market.Key)
	if err != nil {
		return nil, err
	}
	return &execution.CreateMarket{
		Signed:                execution.Signed{By: []solana.PublicKey{creator}},
		Creator:               creator,
		Market:                market.Key,
		Treasury:              treasury.Key,
		Authority:             authority,
		SettlementMint:        mint,
		SettlementDecimals:    mc.SettlementDecimals,
		WithdrawalDestination: dest,
		FeeBps:                mc.FeeBps,
		BuyerReferralBps:      mc.BuyerReferralBps,
		SellerReferralBps:     mc.SellerReferralBps,
		RequiresSignOff:       mc.RequiresSignOff,
	}, nil
}

// Close releases the database.
func (b *Bootstrap) Close() error {
	if b.Storage == nil {
		return nil
	}
	return b.Storage.Close()
}
