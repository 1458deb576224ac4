package tablebase

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hailam/endgamelab/internal/chess"
)

// EvaluationStore is an optional second cache tier that survives restarts.
// Load returns (nil, nil) when the key is unknown.
type EvaluationStore interface {
	Load(key string) (*Evaluation, error)
	Save(record *Evaluation) error
}

// ServiceConfig wires the service's collaborators and limits. Fetcher is
// required; everything else has defaults.
type ServiceConfig struct {
	Fetcher       Fetcher
	CacheCapacity int
	CacheTTL      time.Duration
	TopMoveLimit  int // default limit for GetTopMoves
	Store         EvaluationStore
	Logger        *logrus.Entry
}

// Service is the public entry point for position evaluation. It composes
// key normalization, the two cache tiers, request deduplication, the
// transport, the transformer, and the ranker.
type Service struct {
	fetcher Fetcher
	cache   *Cache
	store   EvaluationStore
	limit   int
	flights singleflight.Group
	log     *logrus.Entry
}

// NewService builds a Service from cfg. Panics if cfg.Fetcher is nil, since
// the service is nothing but an access layer over it.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Fetcher == nil {
		panic("tablebase: ServiceConfig.Fetcher is required")
	}
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = 4096
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.TopMoveLimit <= 0 {
		cfg.TopMoveLimit = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		fetcher: cfg.Fetcher,
		cache:   NewCache(cfg.CacheCapacity, cfg.CacheTTL),
		store:   cfg.Store,
		limit:   cfg.TopMoveLimit,
		log:     cfg.Logger.WithField("component", "evalservice"),
	}
}

// GetEvaluation returns the oracle's verdict for pos, from the side to
// move's perspective. Concurrent calls for the same position key share one
// oracle round trip; failures propagate to every waiter and are not cached.
func (s *Service) GetEvaluation(ctx context.Context, pos *chess.Position) (*Evaluation, error) {
	return s.Evaluate(ctx, pos.Key())
}

// Evaluate is GetEvaluation for callers that already hold a normalized key.
func (s *Service) Evaluate(ctx context.Context, key string) (*Evaluation, error) {
	if record := s.cache.Get(key); record != nil {
		return record, nil
	}
	if record := s.loadStored(key); record != nil {
		s.cache.Put(key, record)
		return record, nil
	}

	// The owning flight runs detached from any single caller's context so
	// that one canceled waiter cannot fail the shared result. The transport
	// still bounds each attempt with its own timeout.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := s.flights.Do(key, func() (any, error) {
		return s.lookup(fctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Evaluation), nil
}

// lookup is the owning path of a deduplicated miss: fetch, transform, rank,
// then publish to both cache tiers.
func (s *Service) lookup(ctx context.Context, key string) (*Evaluation, error) {
	started := time.Now()
	wire, err := s.fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	record, err := Transform(wire, key)
	if err != nil {
		return nil, err
	}
	record.Moves = Rank(record.Moves)

	s.cache.Put(key, record)
	if s.store != nil {
		if err := s.store.Save(record); err != nil {
			s.log.WithField("key", key).Warnf("persisting evaluation: %v", err)
		}
	}
	s.log.WithFields(logrus.Fields{
		"key":     key,
		"outcome": record.Outcome,
		"took":    time.Since(started),
	}).Debug("oracle lookup")
	return record, nil
}

func (s *Service) loadStored(key string) *Evaluation {
	if s.store == nil {
		return nil
	}
	record, err := s.store.Load(key)
	if err != nil {
		s.log.WithField("key", key).Warnf("reading stored evaluation: %v", err)
		return nil
	}
	return record
}

// GetTopMoves returns the best-equal replies for pos, truncated to limit.
// A non-positive limit uses the configured default.
func (s *Service) GetTopMoves(ctx context.Context, pos *chess.Position, limit int) ([]Candidate, error) {
	record, err := s.GetEvaluation(ctx, pos)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.limit
	}
	return BestMoves(record.Moves, limit), nil
}

// Stats exposes the in-memory cache counters.
func (s *Service) Stats() CacheStats {
	return s.cache.Stats()
}
