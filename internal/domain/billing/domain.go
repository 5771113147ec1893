package billing

import (
	"time"

	"github.com/pixelmint/server/internal/port/outbound"
	"github.com/pixelmint/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// Config holds ledger domain configuration.
type Config struct {
	// TaskExpiryWindow bounds how long a pending task may wait for a terminal
	// signal before the sweeper expires it.
	TaskExpiryWindow time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int
}

// DefaultConfig returns the default domain configuration.
func DefaultConfig() *Config {
	return &Config{
		TaskExpiryWindow: 24 * time.Hour,
		SweepInterval:    5 * time.Minute,
		SweepBatchSize:   100,
	}
}

// Domain implements the usage-credit ledger: the access gate, the idempotent
// task billing recorder, cost correction, refunds and expiry.
type Domain struct {
	catalog *Catalog
	repo    outbound.BillingRepositoryPort
	dedup   outbound.CompletionDedupPort
	metrics *metrics.Metrics
	config  *Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewDomain creates the ledger domain. dedup and m may be nil.
func NewDomain(
	catalog *Catalog,
	repo outbound.BillingRepositoryPort,
	dedup outbound.CompletionDedupPort,
	m *metrics.Metrics,
	config *Config,
	logger *zap.Logger,
) *Domain {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Domain{
		catalog: catalog,
		repo:    repo,
		dedup:   dedup,
		metrics: m,
		config:  config,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Catalog returns the feature catalog.
func (d *Domain) Catalog() *Catalog {
	return d.catalog
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
