package storage

import "time"

// AccountRecord stores one account, CBOR encoded.
type AccountRecord struct {
	Address   string `gorm:"primaryKey"`
	Kind      uint8  `gorm:"index"`
	Data      []byte
	Seq       uint64
	UpdatedAt time.Time
}

// BalanceRecord stores a settlement balance. Amount is a decimal string so
// the full uint64 range survives SQLite's signed integers.
type BalanceRecord struct {
	Owner     string `gorm:"primaryKey"`
	Mint      string `gorm:"primaryKey"`
	Amount    string
	Seq       uint64
	UpdatedAt time.Time
}

// EventRecord is one entry of the instruction log.
type EventRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false"`
	ID        string `gorm:"uniqueIndex"`
	Kind      string `gorm:"index"`
	Ts        int64
	Payload   []byte
	Status    string `gorm:"index"`
	Error     string
	CreatedAt time.Time
}

// Event statuses. Pending entries were logged but not yet applied.
const (
	StatusPending = "pending"
)
