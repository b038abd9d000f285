// Package storage persists the ledger and the instruction log in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"market_go/internal/domain"
	"market_go/internal/event"
	"market_go/internal/execution"
	"market_go/internal/ledger"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists accounts, balances and the instruction log.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (and migrates) the SQLite database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&AccountRecord{}, &BalanceRecord{}, &EventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Instruction log
// ======================================================================================

// AppendEvent writes ev to the log as pending. It must succeed before the
// instruction is applied.
func (s *Storage) AppendEvent(ctx context.Context, ev *event.InstructionEvent) error {
	payload, err := event.Marshal(ev)
	if err != nil {
		return err
	}
	rec := EventRecord{
		Seq:     ev.Seq,
		ID:      ev.ID.String(),
		Kind:    string(ev.Kind()),
		Ts:      ev.Ts,
		Payload: payload,
		Status:  StatusPending,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// CommitEvent records the outcome of a logged instruction together with
// the state it changed, atomically.
func (s *Storage) CommitEvent(ctx context.Context, r execution.Receipt, cs *ledger.ChangeSet) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cs != nil {
			if err := saveChanges(tx, r.Seq, cs); err != nil {
				return err
			}
		}
		res := tx.Model(&EventRecord{}).Where("seq = ?", r.Seq).
			Updates(map[string]any{"status": r.Status, "error": r.Error})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("event %d not in log", r.Seq)
		}
		return nil
	})
}

// SaveState writes every account and balance of st, e.g. a seeded genesis.
func (s *Storage) SaveState(ctx context.Context, st *ledger.MemState) error {
	cs := &ledger.ChangeSet{Accounts: st.Accounts(), Balances: st.Balances()}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveChanges(tx, 0, cs)
	})
}

func saveChanges(tx *gorm.DB, seq uint64, cs *ledger.ChangeSet) error {
	now := time.Now()
	for _, a := range cs.Accounts {
		data, err := EncodeAccount(a)
		if err != nil {
			return err
		}
		rec := AccountRecord{
			Address:   a.Key().String(),
			Kind:      uint8(a.Kind()),
			Data:      data,
			Seq:       seq,
			UpdatedAt: now,
		}
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("failed to save account %s: %w", rec.Address, err)
		}
	}
	for _, k := range cs.Deleted {
		if err := tx.Where("address = ?", k.String()).Delete(&AccountRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete account %s: %w", k, err)
		}
	}
	for k, v := range cs.Balances {
		owner, mint := k.Owner.String(), k.Mint.String()
		if v == 0 {
			if err := tx.Where("owner = ? AND mint = ?", owner, mint).Delete(&BalanceRecord{}).Error; err != nil {
				return err
			}
			continue
		}
		rec := BalanceRecord{
			Owner:     owner,
			Mint:      mint,
			Amount:    strconv.FormatUint(v, 10),
			Seq:       seq,
			UpdatedAt: now,
		}
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("failed to save balance %s/%s: %w", owner, mint, err)
		}
	}
	return nil
}

// LastApplied returns the highest sequence number whose outcome is recorded,
// 0 for an empty log.
func (s *Storage) LastApplied(ctx context.Context) (uint64, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).
		Where("status <> ?", StatusPending).
		Order("seq DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil // Empty log is not an error
	}
	if err != nil {
		return 0, err
	}
	return rec.Seq, nil
}

// LoadEvents returns logged events with seq > after in order. Callers
// release the returned events.
func (s *Storage) LoadEvents(ctx context.Context, after uint64) ([]*event.InstructionEvent, error) {
	var recs []EventRecord
	if err := s.db.WithContext(ctx).Where("seq > ?", after).Order("seq ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*event.InstructionEvent, 0, len(recs))
	for _, r := range recs {
		ev, err := event.Unmarshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", r.Seq, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// EventStatus returns the recorded status and error of one event.
func (s *Storage) EventStatus(ctx context.Context, seq uint64) (string, string, error) {
	var rec EventRecord
	if err := s.db.WithContext(ctx).First(&rec, "seq = ?", seq).Error; err != nil {
		return "", "", err
	}
	return rec.Status, rec.Error, nil
}

// LoadState rebuilds the persisted account snapshot.
func (s *Storage) LoadState(ctx context.Context) (*ledger.MemState, error) {
	st := ledger.NewMemState()

	var accs []AccountRecord
	if err := s.db.WithContext(ctx).Find(&accs).Error; err != nil {
		return nil, err
	}
	for _, r := range accs {
		a, err := DecodeAccount(domain.Kind(r.Kind), r.Data)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", r.Address, err)
		}
		st.Put(a)
	}

	var bals []BalanceRecord
	if err := s.db.WithContext(ctx).Find(&bals).Error; err != nil {
		return nil, err
	}
	for _, r := range bals {
		owner, err := solana.PublicKeyFromBase58(r.Owner)
		if err != nil {
			return nil, fmt.Errorf("balance owner %q: %w", r.Owner, err)
		}
		mint, err := solana.PublicKeyFromBase58(r.Mint)
		if err != nil {
			return nil, fmt.Errorf("balance mint %q: %w", r.Mint, err)
		}
		v, err := strconv.ParseUint(r.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("balance %s/%s: %w", r.Owner, r.Mint, err)
		}
		st.SetBalance(owner, mint, v)
	}
	return st, nil
}
