package patternstore

import (
	"hash/fnv"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/LostLegendarySoftware/patternstore/cell"
	"github.com/LostLegendarySoftware/patternstore/config"
	"github.com/LostLegendarySoftware/patternstore/index"
	"github.com/LostLegendarySoftware/patternstore/policy"
	"github.com/LostLegendarySoftware/patternstore/tier"
)

// Store is the tiered semantic pattern store. It places algorithm manifests
// into storage cells spread across topical tiers, answers retrieval queries
// by scoring candidate cells against the resonance graph, and runs the
// maintenance pass that decays, compacts and rebalances the store.
//
// A Store is safe for concurrent use. Store and Retrieve lock at cell
// granularity plus a short shared lock on the association index; Optimize
// takes each tier exclusively, one tier at a time.
//
// Example:
//
//	store, err := patternstore.New(
//	    patternstore.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	cellID, err := store.Store(ctx, manifest)
//	result, err := store.Retrieve(ctx, "greet", "casual")
//	report, err := store.Optimize(ctx, 0.85)
type Store struct {
	id     string
	logger *slog.Logger
	cfg    config.Config

	// halfLife is the parsed tuning recency half-life.
	halfLife time.Duration

	tiers []*tier.Tier

	// passLocks serialize maintenance against live traffic per tier:
	// Store/Retrieve hold a tier's read lock for the duration of their cell
	// interaction, Optimize holds the write lock for one tier's chunk of
	// the pass. Operations on distinct tiers never contend.
	passLocks []sync.RWMutex

	idx *index.Index

	// cellsByID resolves cell ids from the index back to cells. Immutable
	// after construction; the cell pool is fixed for the store's lifetime.
	cellsByID map[string]*cell.Cell

	admission *policy.Policy
	metrics   *storeMetrics
	tracer    trace.Tracer

	rndMu sync.Mutex
	rnd   *rand.Rand

	// now is the store's clock; replaced in tests.
	now func() time.Time

	// maint gives Optimize its mutual exclusion: a second concurrent
	// caller is turned away with ErrMaintenanceInProgress, never queued.
	maint sync.Mutex

	closed     atomic.Bool
	algorithms atomic.Int64
}

// New constructs a store from the provided options. With no options the
// store uses the default six-tier topology and tuning constants.
func New(opts ...Option) (*Store, error) {
	const op = "Store.New"

	o := &storeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cfg, err := o.resolveConfig()
	if err != nil {
		return nil, newError(op, KindConfiguration, err)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	admission := o.admission
	if admission == nil && cfg.Policy != "" {
		admission, err = policy.Compile(cfg.Policy)
		if err != nil {
			return nil, newError(op, KindConfiguration, err)
		}
	}

	seed := o.seed
	if !o.seedSet {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	s := &Store{
		id:        uuid.NewString(),
		logger:    logger,
		cfg:       cfg,
		halfLife:  cfg.Tuning.GetRecencyHalfLife(),
		idx:       index.New(),
		cellsByID: make(map[string]*cell.Cell),
		admission: admission,
		tracer:    o.tracer,
		rnd:       rnd,
		now:       time.Now,
	}

	if o.meterProvider != nil {
		meter := o.meterProvider.Meter("github.com/LostLegendarySoftware/patternstore")
		s.metrics, err = newStoreMetrics(meter)
		if err != nil {
			return nil, newError(op, KindConfiguration, err)
		}
	}

	created := s.now()
	s.tiers = make([]*tier.Tier, len(cfg.Tiers))
	s.passLocks = make([]sync.RWMutex, len(cfg.Tiers))
	for i, tc := range cfg.Tiers {
		t := tier.New(i, tc.Label, tc.Cells, cfg.FieldSize, tc.CapacityBytes, tc.Linked, rnd, created)
		s.tiers[i] = t
		for _, c := range t.Cells {
			s.cellsByID[c.ID()] = c
		}
	}

	logger.Info("pattern store created",
		"store_id", s.id,
		"tiers", len(s.tiers),
		"cells", len(s.cellsByID),
	)
	return s, nil
}

// ID returns the store instance id.
func (s *Store) ID() string { return s.id }

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed. Idempotent.
func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Info("pattern store closed", "store_id", s.id)
	}
	return nil
}

// checkOpen returns the error every operation reports after Close.
func (s *Store) checkOpen(op string) error {
	if s.closed.Load() {
		return newError(op, KindBusy, ErrStoreClosed)
	}
	return nil
}

// tierFor maps a manifest signature onto its home tier. Stable: the same
// signature always hashes to the same tier, so re-submission never
// thrashes placements.
func (s *Store) tierFor(signature string) int {
	h := fnv.New64a()
	h.Write([]byte(signature))
	return int(h.Sum64() % uint64(len(s.tiers)))
}

// withRand runs fn with the store's seeded random source. The source is
// not safe for concurrent use on its own.
func (s *Store) withRand(fn func(*rand.Rand)) {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	fn(s.rnd)
}
