package monitor

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/obmonitor/pkg/app/core/account"
	"github.com/uhyunpark/obmonitor/pkg/app/core/instruction"
	"github.com/uhyunpark/obmonitor/pkg/app/core/mempool"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
	"github.com/uhyunpark/obmonitor/pkg/crypto"
	"github.com/uhyunpark/obmonitor/pkg/id"
	"github.com/uhyunpark/obmonitor/pkg/metrics"
	"github.com/uhyunpark/obmonitor/pkg/storage"
	"github.com/uhyunpark/obmonitor/pkg/util"
)

type Config struct {
	// MaxCapacity bounds Initialize so one call cannot allocate an arbitrary region.
	MaxCapacity uint64
	// MaxBatchBytes limits how much mempool data one batch drains (0 = no limit).
	MaxBatchBytes int64
	// BatchInterval is how often Run drains the mempool.
	BatchInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxCapacity:   100_000,
		MaxBatchBytes: 1 << 20,
		BatchInterval: 200 * time.Millisecond,
	}
}

// Receipt is the outcome of one envelope.
type Receipt struct {
	ID        string         `json:"id"`
	TxHash    common.Hash    `json:"txHash"`
	Account   common.Address `json:"account"`
	Signer    common.Address `json:"signer"`
	Nonce     uint64         `json:"nonce"`
	Kind      string         `json:"kind"`
	Code      uint32         `json:"code"`
	Result    string         `json:"result"`
	Error     string         `json:"error,omitempty"`
	Count     uint64         `json:"count"`
	Height    uint64         `json:"height"`
	Timestamp int64          `json:"timestamp"`
}

func (r Receipt) OK() bool { return r.Code == CodeOK }

// BatchResult is one committed batch.
type BatchResult struct {
	storage.Head
	Receipts []Receipt `json:"receipts"`
}

// App hosts monitor accounts: it authenticates envelopes, runs them through
// the Processor and commits successful effects to Pebble one batch at a time.
type App struct {
	mu      sync.Mutex
	store   *storage.PebbleStore
	proc    *Processor
	mempool *mempool.Mempool
	clock   util.Clock
	wal     storage.WAL
	logger  *zap.SugaredLogger
	cfg     Config
	head    storage.Head

	subMu   sync.RWMutex
	subs    map[int]func(Receipt)
	nextSub int
}

func NewApp(store *storage.PebbleStore, clock util.Clock, wal storage.WAL, logger *zap.SugaredLogger, cfg Config) (*App, error) {
	if clock == nil {
		clock = util.RealClock{}
	}
	if wal == nil {
		wal = storage.NewNopWAL()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	head, err := store.Head()
	if err != nil {
		return nil, fmt.Errorf("load head: %w", err)
	}
	metrics.BatchHeight.Set(float64(head.Height))

	return &App{
		store:   store,
		proc:    NewProcessor(clock),
		mempool: mempool.NewMempool(),
		clock:   clock,
		wal:     wal,
		logger:  logger,
		cfg:     cfg,
		head:    head,
		subs:    make(map[int]func(Receipt)),
	}, nil
}

// PushTx queues a JSON envelope for the next batch.
func (a *App) PushTx(b []byte) {
	a.mempool.PushRaw(b)
	metrics.MempoolPending.Set(float64(a.mempool.Len()))
}

func (a *App) Pending() int { return a.mempool.Len() }

// Execute runs a single envelope as its own batch.
func (a *App) Execute(env *instruction.Envelope) (Receipt, error) {
	res, err := a.ExecuteBatch([]*instruction.Envelope{env})
	if err != nil {
		return Receipt{}, err
	}
	return res.Receipts[0], nil
}

// ExecuteBatch applies envelopes in order. Each envelope is atomic on its own;
// the effects of all successful ones are committed together. The returned
// error is only for storage failures, in which case nothing is committed.
func (a *App) ExecuteBatch(envs []*instruction.Envelope) (*BatchResult, error) {
	items := make([]batchItem, len(envs))
	for i, env := range envs {
		items[i] = batchItem{env: env}
	}
	return a.execute(items)
}

// ExecuteRaw parses JSON envelopes and executes them as one batch.
// Unparseable entries get a malformed receipt.
func (a *App) ExecuteRaw(raws [][]byte) (*BatchResult, error) {
	return a.execute(parseRaw(raws))
}

func parseRaw(raws [][]byte) []batchItem {
	items := make([]batchItem, len(raws))
	for i, raw := range raws {
		env, err := instruction.Deserialize(raw)
		if err != nil {
			items[i] = batchItem{parseErr: fmt.Errorf("%w: %v", record.ErrMalformed, err)}
			continue
		}
		items[i] = batchItem{env: env}
	}
	return items
}

// orderByNonce sorts each signer's envelopes by nonce in place, keeping the
// slots the mempool gave that signer. Envelopes from different signers keep
// their relative order; unrecoverable ones stay where they are.
func orderByNonce(items []batchItem) {
	slots := make(map[common.Address][]int)
	var signers []common.Address
	for i, it := range items {
		if it.env == nil {
			continue
		}
		signer, err := it.env.Signer()
		if err != nil {
			continue
		}
		if _, seen := slots[signer]; !seen {
			signers = append(signers, signer)
		}
		slots[signer] = append(slots[signer], i)
	}
	for _, signer := range signers {
		idx := slots[signer]
		if len(idx) < 2 {
			continue
		}
		group := make([]batchItem, len(idx))
		for j, i := range idx {
			group[j] = items[i]
		}
		sort.SliceStable(group, func(x, y int) bool { return group[x].env.Nonce < group[y].env.Nonce })
		for j, i := range idx {
			items[i] = group[j]
		}
	}
}

// FinalizePending drains the mempool into one batch. It returns nil when
// nothing was pending. Initialize envelopes go first unless that would run a
// signer's nonces out of order.
func (a *App) FinalizePending() (*BatchResult, error) {
	txs := a.mempool.SelectBatch(a.cfg.MaxBatchBytes)
	metrics.MempoolPending.Set(float64(a.mempool.Len()))
	if len(txs) == 0 {
		return nil, nil
	}
	items := parseRaw(txs)
	orderByNonce(items)
	return a.execute(items)
}

// Run drains the mempool every BatchInterval until ctx is done.
func (a *App) Run(ctx context.Context) {
	interval := a.cfg.BatchInterval
	if interval <= 0 {
		interval = DefaultConfig().BatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := a.FinalizePending(); err != nil {
				a.logger.Errorw("final_batch_failed", "err", err)
			}
			return
		case <-ticker.C:
			if _, err := a.FinalizePending(); err != nil {
				a.logger.Errorw("batch_failed", "err", err)
			}
		}
	}
}

type batchItem struct {
	env      *instruction.Envelope
	parseErr error
}

// batchState overlays uncommitted writes on top of the store.
type batchState struct {
	store   *storage.PebbleStore
	regions map[common.Address][]byte
	nonces  map[common.Address]uint64
}

func (s *batchState) region(addr common.Address) ([]byte, bool, error) {
	if r, ok := s.regions[addr]; ok {
		return r, true, nil
	}
	return s.store.GetRegion(addr)
}

func (s *batchState) nonce(addr common.Address) (uint64, error) {
	if n, ok := s.nonces[addr]; ok {
		return n, nil
	}
	return s.store.GetNonce(addr)
}

func (a *App) execute(items []batchItem) (*BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := &batchState{
		store:   a.store,
		regions: make(map[common.Address][]byte),
		nonces:  make(map[common.Address]uint64),
	}
	now := a.clock.Now()
	receipts := make([]Receipt, 0, len(items))

	for _, it := range items {
		start := time.Now()
		rc, err := a.apply(st, it)
		if err != nil {
			return nil, err
		}
		metrics.InstructionLatency.Observe(time.Since(start).Seconds())
		receipts = append(receipts, rc)
	}
	if len(receipts) == 0 {
		return &BatchResult{Head: a.head}, nil
	}

	// a batch where nothing authenticated leaves state untouched, so the
	// head does not move; receipts carry the current height
	head := a.head
	committed := len(st.regions) > 0 || len(st.nonces) > 0
	if committed {
		head = storage.Head{
			Height: a.head.Height + 1,
			Time:   now.Unix(),
		}
		head.StateRoot = stateRoot(a.head.StateRoot, head, st)

		if err := a.store.Commit(&storage.Changeset{Regions: st.regions, Nonces: st.nonces, Head: &head}); err != nil {
			return nil, err
		}
		a.head = head
	}

	nFailed := 0
	for i := range receipts {
		rc := &receipts[i]
		rc.ID = id.NewAt(now)
		rc.Height = head.Height
		rc.Timestamp = now.Unix()
		metrics.InstructionsProcessed.WithLabelValues(rc.Kind, rc.Result).Inc()
		if !rc.OK() {
			nFailed++
		}
	}
	metrics.BatchSize.Observe(float64(len(receipts)))

	if committed {
		metrics.BatchHeight.Set(float64(head.Height))
		a.logger.Infow("batch_committed",
			"height", head.Height,
			"instructions", len(receipts),
			"failed", nFailed,
			"accounts_touched", len(st.regions),
			"state_root", head.StateRoot.Hex(),
		)
		if err := a.wal.Append(walEntry{Head: head, Instructions: len(receipts), Failed: nFailed}); err != nil {
			a.logger.Warnw("wal_append_failed", "height", head.Height, "err", err)
		}
	} else {
		a.logger.Debugw("batch_rejected", "height", head.Height, "instructions", len(receipts))
	}

	res := &BatchResult{Head: head, Receipts: receipts}
	a.publish(receipts)
	return res, nil
}

type walEntry struct {
	storage.Head
	Instructions int `json:"instructions"`
	Failed       int `json:"failed"`
}

// apply authenticates and executes one item against the overlay. Instruction
// failures become receipts; only storage errors are returned.
func (a *App) apply(st *batchState, it batchItem) (Receipt, error) {
	if it.parseErr != nil {
		return failed(Receipt{Kind: "invalid"}, it.parseErr), nil
	}
	env := it.env
	rc := Receipt{TxHash: env.Hash(), Account: env.Account, Nonce: env.Nonce, Kind: "invalid"}

	if err := env.Validate(); err != nil {
		return failed(rc, fmt.Errorf("%w: %v", record.ErrMalformed, err)), nil
	}
	signer, err := env.Signer()
	if err != nil {
		return failed(rc, fmt.Errorf("%w: %v", ErrBadSignature, err)), nil
	}
	rc.Signer = signer

	last, err := st.nonce(signer)
	if err != nil {
		return Receipt{}, err
	}
	if env.Nonce <= last {
		return failed(rc, fmt.Errorf("%w: nonce %d, last accepted %d", ErrStaleNonce, env.Nonce, last)), nil
	}
	// an authenticated, fresh envelope consumes its nonce even if the instruction fails
	st.nonces[signer] = env.Nonce

	ins, err := env.Instruction()
	if err != nil {
		return failed(rc, err), nil
	}
	rc.Kind = ins.Tag().String()

	cur, exists, err := st.region(env.Account)
	if err != nil {
		return Receipt{}, err
	}

	var work []byte
	switch ins := ins.(type) {
	case *instruction.Initialize:
		if exists {
			work = append([]byte(nil), cur...)
			break
		}
		if ins.Capacity > a.cfg.MaxCapacity {
			return failed(rc, fmt.Errorf("%w: %d > %d", ErrCapacityTooLarge, ins.Capacity, a.cfg.MaxCapacity)), nil
		}
		if ins.Capacity > 0 {
			work = make([]byte, account.Size(ins.Capacity))
		}
	default:
		if exists {
			work = append([]byte(nil), cur...)
		}
	}

	if err := a.proc.Apply(work, signer, ins); err != nil {
		return failed(rc, err), nil
	}
	st.regions[env.Account] = work

	acc, err := account.Load(work)
	if err != nil {
		return Receipt{}, fmt.Errorf("reload %s after apply: %w", env.Account.Hex(), err)
	}
	rc.Count = acc.Count()
	if ev, ok := ins.(*instruction.RecordEvent); ok {
		metrics.RecordsAppended.WithLabelValues(ev.Record.EventType.String(), ev.Record.Direction.String()).Inc()
	}
	rc.Result = CodeName(CodeOK)
	return rc, nil
}

func failed(rc Receipt, err error) Receipt {
	rc.Code = ErrorCode(err)
	rc.Result = CodeName(rc.Code)
	rc.Error = err.Error()
	return rc
}

// stateRoot chains the previous root with this batch's writes:
// keccak(prev || height || time || (addr || keccak(region))* || (signer || nonce)*),
// with addresses in ascending order.
func stateRoot(prev common.Hash, head storage.Head, st *batchState) common.Hash {
	h := crypto.NewKeccak256()
	var buf [8]byte

	h.Write(prev[:])
	binary.BigEndian.PutUint64(buf[:], head.Height)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(head.Time))
	h.Write(buf[:])

	for _, addr := range sortedAddrs(st.regions) {
		region := crypto.NewKeccak256()
		region.Write(st.regions[addr])
		sum := region.Sum()
		h.Write(addr[:])
		h.Write(sum[:])
	}
	for _, addr := range sortedAddrs(st.nonces) {
		binary.BigEndian.PutUint64(buf[:], st.nonces[addr])
		h.Write(addr[:])
		h.Write(buf[:])
	}
	return h.Sum()
}

func sortedAddrs[V any](m map[common.Address]V) []common.Address {
	out := make([]common.Address, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Subscribe registers fn for every committed receipt. Call the returned
// function to unsubscribe. fn must not block.
func (a *App) Subscribe(fn func(Receipt)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	n := a.nextSub
	a.nextSub++
	a.subs[n] = fn
	return func() {
		a.subMu.Lock()
		delete(a.subs, n)
		a.subMu.Unlock()
	}
}

func (a *App) publish(receipts []Receipt) {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	for _, fn := range a.subs {
		for _, rc := range receipts {
			fn(rc)
		}
	}
}
