package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPrefix      = "m2"
	DefaultDBPath      = "data/market.db"
	DefaultListenAddr  = "127.0.0.1:8090"
	DefaultMetricsAddr = "127.0.0.1:9090"
	DefaultInboxSize   = 1024
	DefaultLogDir      = "logs"
)

// Config는 노드의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수로 배포별 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Program struct {
		ID     string `yaml:"id"`
		Prefix string `yaml:"prefix"`
	} `yaml:"program"`

	Runtime struct {
		RentPerByte         uint64          `yaml:"rent_per_byte"`
		TreasuryMinLeftover decimal.Decimal `yaml:"treasury_min_leftover"`
		DefaultBidExpiry    time.Duration   `yaml:"default_bid_expiry"`
	} `yaml:"runtime"`

	Markets  []MarketConfig  `yaml:"markets"`
	RuleSets []RuleSetConfig `yaml:"rule_sets"`
	Genesis  GenesisConfig   `yaml:"genesis"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Server struct {
		ListenAddr  string `yaml:"listen_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
		InboxSize   int    `yaml:"inbox_size"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// MarketConfig describes a market created at startup.
type MarketConfig struct {
	Creator               string `yaml:"creator"`
	Authority             string `yaml:"authority"`
	SettlementMint        string `yaml:"settlement_mint"`
	SettlementDecimals    int32  `yaml:"settlement_decimals"`
	FeeBps                uint16 `yaml:"fee_bps"`
	BuyerReferralBps      uint16 `yaml:"buyer_referral_bps"`
	SellerReferralBps     uint16 `yaml:"seller_referral_bps"`
	RequiresSignOff       bool   `yaml:"requires_sign_off"`
	WithdrawalDestination string `yaml:"withdrawal_destination"`
}

// RuleSetConfig is a named transfer policy for rule-enforced assets.
type RuleSetConfig struct {
	Name               string   `yaml:"name"`
	AllowedDelegates   []string `yaml:"allowed_delegates"`
	DeniedDestinations []string `yaml:"denied_destinations"`
}

// GenesisConfig seeds an empty state with assets and wallet balances.
type GenesisConfig struct {
	Assets   []AssetConfig   `yaml:"assets"`
	Balances []BalanceConfig `yaml:"balances"`
}

type AssetConfig struct {
	Mint         string          `yaml:"mint"`
	Class        string          `yaml:"class"`
	Supply       uint64          `yaml:"supply"`
	Decimals     uint8           `yaml:"decimals"`
	SellerFeeBps uint16          `yaml:"seller_fee_bps"`
	Creators     []CreatorConfig `yaml:"creators"`
	RuleSet      string          `yaml:"rule_set"`
	GuardProgram string          `yaml:"guard_program"`
	Holder       string          `yaml:"holder"`
}

type CreatorConfig struct {
	Address string `yaml:"address"`
	Share   uint8  `yaml:"share"`
}

// BalanceConfig credits Amount (in human units) of Mint to Owner.
type BalanceConfig struct {
	Owner    string          `yaml:"owner"`
	Mint     string          `yaml:"mint"`
	Decimals int32           `yaml:"decimals"`
	Amount   decimal.Decimal `yaml:"amount"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML, applies env overrides and defaults, and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// 환경 변수 오버라이드 지원
	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Program.Prefix == "" {
		c.Program.Prefix = DefaultPrefix
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = DefaultDBPath
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = DefaultMetricsAddr
	}
	if c.Server.InboxSize == 0 {
		c.Server.InboxSize = DefaultInboxSize
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if _, err := ParseKey("program.id", c.Program.ID); err != nil {
		return err
	}
	if len(c.Program.Prefix) > solana.MaxSeedLength {
		return &domain.ConfigError{Field: "program.prefix", Err: fmt.Errorf("longer than %d bytes", solana.MaxSeedLength)}
	}
	if c.Runtime.TreasuryMinLeftover.IsNegative() {
		return &domain.ConfigError{Field: "runtime.treasury_min_leftover", Err: errors.New("must not be negative")}
	}
	if c.Runtime.DefaultBidExpiry < 0 {
		return &domain.ConfigError{Field: "runtime.default_bid_expiry", Err: errors.New("must not be negative")}
	}
	if c.Server.InboxSize < 0 {
		return &domain.ConfigError{Field: "server.inbox_size", Err: errors.New("must be positive")}
	}

	for i, m := range c.Markets {
		field := "markets[" + strconv.Itoa(i) + "]"
		for name, v := range map[string]string{
			"creator":         m.Creator,
			"authority":       m.Authority,
			"settlement_mint": m.SettlementMint,
		} {
			if _, err := ParseKey(field+"."+name, v); err != nil {
				return err
			}
		}
		if _, err := ParseOptionalKey(field+".withdrawal_destination", m.WithdrawalDestination); err != nil {
			return err
		}
		if m.FeeBps > domain.MaxBasisPoints {
			return &domain.ConfigError{Field: field + ".fee_bps", Err: domain.ErrInvalidBasisPoints}
		}
		if uint32(m.BuyerReferralBps)+uint32(m.SellerReferralBps) > uint32(m.FeeBps) {
			return &domain.ConfigError{Field: field + ".buyer_referral_bps", Err: fmt.Errorf("%w: referral shares exceed fee_bps", domain.ErrInvalidBasisPoints)}
		}
		if m.SettlementDecimals < 0 || m.SettlementDecimals > 18 {
			return &domain.ConfigError{Field: field + ".settlement_decimals", Err: fmt.Errorf("%d out of range", m.SettlementDecimals)}
		}
	}

	seen := make(map[string]bool, len(c.RuleSets))
	for i, rs := range c.RuleSets {
		field := "rule_sets[" + strconv.Itoa(i) + "]"
		if rs.Name == "" {
			return &domain.ConfigError{Field: field + ".name", Err: errors.New("required")}
		}
		if seen[rs.Name] {
			return &domain.ConfigError{Field: field + ".name", Err: fmt.Errorf("duplicate rule set %q", rs.Name)}
		}
		seen[rs.Name] = true
		if _, err := ParseKeys(field+".allowed_delegates", rs.AllowedDelegates); err != nil {
			return err
		}
		if _, err := ParseKeys(field+".denied_destinations", rs.DeniedDestinations); err != nil {
			return err
		}
	}

	for i, a := range c.Genesis.Assets {
		field := "genesis.assets[" + strconv.Itoa(i) + "]"
		if _, err := ParseKey(field+".mint", a.Mint); err != nil {
			return err
		}
		if _, err := ParseKey(field+".holder", a.Holder); err != nil {
			return err
		}
		if _, err := ParseOptionalKey(field+".guard_program", a.GuardProgram); err != nil {
			return err
		}
		if _, err := domain.ParseAssetClass(a.Class); err != nil {
			return &domain.ConfigError{Field: field + ".class", Err: err}
		}
		if a.RuleSet != "" && !seen[a.RuleSet] {
			return &domain.ConfigError{Field: field + ".rule_set", Err: fmt.Errorf("unknown rule set %q", a.RuleSet)}
		}
		for j, cr := range a.Creators {
			if _, err := ParseKey(field+".creators["+strconv.Itoa(j)+"]", cr.Address); err != nil {
				return err
			}
		}
	}
	for i, b := range c.Genesis.Balances {
		field := "genesis.balances[" + strconv.Itoa(i) + "]"
		if _, err := ParseKey(field+".owner", b.Owner); err != nil {
			return err
		}
		if _, err := ParseKey(field+".mint", b.Mint); err != nil {
			return err
		}
		if _, err := domain.ParseAmount(b.Amount, b.Decimals); err != nil {
			return &domain.ConfigError{Field: field + ".amount", Err: err}
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// ParseKey decodes a required base58 public key.
func ParseKey(field, s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, &domain.ConfigError{Field: field, Err: errors.New("required")}
	}
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, &domain.ConfigError{Field: field, Err: err}
	}
	return k, nil
}

// ParseOptionalKey is ParseKey but returns the zero key for "".
func ParseOptionalKey(field, s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, nil
	}
	return ParseKey(field, s)
}

// ParseKeys decodes a list of keys.
func ParseKeys(field string, ss []string) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, 0, len(ss))
	for i, s := range ss {
		k, err := ParseKey(field+"["+strconv.Itoa(i)+"]", s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if id := os.Getenv("MARKET_PROGRAM_ID"); id != "" {
		cfg.Program.ID = id
	}
	if path := os.Getenv("MARKET_DB_PATH"); path != "" {
		cfg.Storage.DBPath = path
	}
	if addr := os.Getenv("MARKET_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if level := os.Getenv("MARKET_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
