package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/obmonitor/pkg/app/core/instruction"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
	"github.com/uhyunpark/obmonitor/pkg/crypto"
)

// FeederConfig controls synthetic event generation
type FeederConfig struct {
	BatchSize int           // envelopes generated per tick
	Interval  time.Duration // how often to generate a batch
	NumOwners int           // simulated account owners, one account each
	Capacity  uint64        // capacity of each simulated account
	Markets   []string
}

// DefaultFeederConfig returns reasonable defaults for testing
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		BatchSize: 10,
		Interval:  100 * time.Millisecond, // ~100 events/sec
		NumOwners: 20,
		Capacity:  10_000,
		Markets:   []string{"SOL/USDC", "BTC/USDC", "ETH/USDC"},
	}
}

// HighLoadConfig returns config for stress testing
func HighLoadConfig() FeederConfig {
	cfg := DefaultFeederConfig()
	cfg.BatchSize = 100
	cfg.NumOwners = 200
	cfg.Capacity = 100_000
	return cfg
}

type simOwner struct {
	signer  *crypto.Signer
	account common.Address
	nonce   uint64
	ready   bool
}

// Generator produces signed envelopes for a fixed set of simulated owners.
// Each owner's first envelope initializes its account.
type Generator struct {
	owners   []*simOwner
	markets  []string
	capacity uint64
	rng      *rand.Rand
	clock    func() time.Time
}

func NewGenerator(cfg FeederConfig, seed int64) (*Generator, error) {
	if cfg.NumOwners <= 0 {
		return nil, fmt.Errorf("feeder: NumOwners must be positive")
	}
	if len(cfg.Markets) == 0 {
		cfg.Markets = DefaultFeederConfig().Markets
	}
	owners := make([]*simOwner, cfg.NumOwners)
	for i := range owners {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		owners[i] = &simOwner{signer: s, account: DeriveAccount(s.Address(), "feeder")}
	}
	return &Generator{
		owners:   owners,
		markets:  cfg.Markets,
		capacity: cfg.Capacity,
		rng:      rand.New(rand.NewSource(seed)),
		clock:    time.Now,
	}, nil
}

// Next returns one signed envelope from a random owner
func (g *Generator) Next() (*instruction.Envelope, error) {
	o := g.owners[g.rng.Intn(len(g.owners))]
	o.nonce++

	if !o.ready {
		o.ready = true
		return instruction.NewEnvelope(o.signer, o.account, o.nonce, &instruction.Initialize{Capacity: g.capacity})
	}

	// 60% placed, 25% cancelled, 15% filled
	et := record.OrderPlaced
	switch r := g.rng.Intn(100); {
	case r >= 85:
		et = record.OrderFilled
	case r >= 60:
		et = record.OrderCancelled
	}
	dir := record.Bid
	if g.rng.Intn(2) == 1 {
		dir = record.Ask
	}

	// price around 50,000 (±5%)
	price := uint64(47_500 + g.rng.Intn(5_000))
	ev := &instruction.RecordEvent{Record: record.Record{
		EventType: et,
		Market:    g.markets[g.rng.Intn(len(g.markets))],
		Price:     price,
		Size:      uint64(1 + g.rng.Intn(100)),
		Direction: dir,
		Timestamp: g.clock().Unix(),
	}}
	return instruction.NewEnvelope(o.signer, o.account, o.nonce, ev)
}

// GenerateBatch returns n serialized envelopes ready for PushTx
func (g *Generator) GenerateBatch(n int) ([][]byte, error) {
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		env, err := g.Next()
		if err != nil {
			return nil, err
		}
		raw, err := env.Serialize()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// StartFeeder continuously pushes synthetic envelopes into the app mempool.
// Returns a cancel function to stop the feeder.
func StartFeeder(ctx context.Context, app *App, cfg FeederConfig, logger *zap.SugaredLogger) (context.CancelFunc, error) {
	gen, err := NewGenerator(cfg, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultFeederConfig().Interval
	}

	feedCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		start := time.Now()
		total := 0
		logger.Infow("feeder_started", "batch", cfg.BatchSize, "interval", interval, "owners", cfg.NumOwners)

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(start)
				logger.Infow("feeder_stopped", "total", total, "rate_per_sec", float64(total)/elapsed.Seconds())
				return
			case <-ticker.C:
				batch, err := gen.GenerateBatch(cfg.BatchSize)
				if err != nil {
					logger.Errorw("feeder_generate_failed", "err", err)
					continue
				}
				for _, tx := range batch {
					app.PushTx(tx)
				}
				total += len(batch)
			}
		}
	}()
	return cancel, nil
}
