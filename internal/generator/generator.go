// Package generator produces synthetic transfers for seeding a ledger.
package generator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"transfer-stats/internal/domain"
)

// Address styles.
const (
	StyleHex    = "hex"
	StyleBase58 = "base58"
)

var (
	// ErrInvalidRange is returned when a configured minimum exceeds its maximum.
	ErrInvalidRange = errors.New("invalid range")
	// ErrInvalidConfig is returned for any other unusable configuration.
	ErrInvalidConfig = errors.New("invalid generator config")
)

// Generator produces transfers.
type Generator interface {
	Generate(count int) ([]*domain.Transfer, error)
}

// Config bounds the generated values.
type Config struct {
	MinAmount    float64       `yaml:"min_amount"`
	MaxAmount    float64       `yaml:"max_amount"`
	MinPrice     float64       `yaml:"min_price"`
	MaxPrice     float64       `yaml:"max_price"`
	MaxAge       time.Duration `yaml:"max_age"`
	AddressStyle string        `yaml:"address_style"`
}

// DefaultConfig returns amounts in [1, 1000), prices in [0.1, 2.0),
// timestamps up to 30 days old and hex addresses.
func DefaultConfig() Config {
	return Config{
		MinAmount:    1.0,
		MaxAmount:    1000.0,
		MinPrice:     0.1,
		MaxPrice:     2.0,
		MaxAge:       30 * 24 * time.Hour,
		AddressStyle: StyleHex,
	}
}

// Validate checks the ranges and address style.
func (c Config) Validate() error {
	if c.MinAmount > c.MaxAmount {
		return fmt.Errorf("%w: amount [%g, %g]", ErrInvalidRange, c.MinAmount, c.MaxAmount)
	}
	if c.MinPrice > c.MaxPrice {
		return fmt.Errorf("%w: price [%g, %g]", ErrInvalidRange, c.MinPrice, c.MaxPrice)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("%w: negative max age %s", ErrInvalidRange, c.MaxAge)
	}
	switch c.AddressStyle {
	case StyleHex, StyleBase58:
	default:
		return fmt.Errorf("%w: unknown address style %q", ErrInvalidConfig, c.AddressStyle)
	}
	return nil
}

// Option configures DefaultGenerator.
type Option func(*DefaultGenerator)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *DefaultGenerator) {
		g.now = now
	}
}

// WithSeed makes the generator deterministic.
func WithSeed(seed uint64) Option {
	return func(g *DefaultGenerator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// DefaultGenerator draws every field uniformly from its configured range.
// Safe for concurrent use.
type DefaultGenerator struct {
	cfg Config
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Compile-time interface check
var _ Generator = (*DefaultGenerator)(nil)

// New creates a generator after validating cfg.
func New(cfg Config, opts ...Option) (*DefaultGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &DefaultGenerator{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate returns count transfers with timestamps in (now - MaxAge, now] seconds.
func (g *DefaultGenerator) Generate(count int) ([]*domain.Transfer, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrInvalidConfig, count)
	}

	now := g.now().Unix()
	if now < 0 {
		return nil, fmt.Errorf("%w: clock before unix epoch", ErrInvalidConfig)
	}
	maxAge := int64(g.cfg.MaxAge / time.Second)

	g.mu.Lock()
	defer g.mu.Unlock()

	transfers := make([]*domain.Transfer, 0, count)
	for i := 0; i < count; i++ {
		from, err := g.address()
		if err != nil {
			return nil, err
		}
		to, err := g.address()
		if err != nil {
			return nil, err
		}

		var age int64
		if maxAge > 0 {
			age = g.rng.Int64N(maxAge)
		}
		ts := now - age
		if ts < 0 {
			ts = 0
		}

		transfers = append(transfers, &domain.Transfer{
			TS:          uint64(ts),
			AddressFrom: from,
			AddressTo:   to,
			Amount:      g.uniform(g.cfg.MinAmount, g.cfg.MaxAmount),
			USDPrice:    g.uniform(g.cfg.MinPrice, g.cfg.MaxPrice),
		})
	}
	return transfers, nil
}

// uniform draws from [lo, hi); lo == hi yields lo.
func (g *DefaultGenerator) uniform(lo, hi float64) float64 {
	if lo == hi {
		return lo
	}
	v := lo + g.rng.Float64()*(hi-lo)
	if v >= hi {
		// rounding at the top of the interval
		return lo
	}
	return v
}

func (g *DefaultGenerator) address() (string, error) {
	if g.cfg.AddressStyle == StyleBase58 {
		return base58Address(g.rng)
	}
	return hexAddress(g.rng), nil
}
