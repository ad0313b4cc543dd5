// Package resultstore persists frozen calculation results in BadgerDB. A
// result is stored as one summary record plus one record per realization,
// so a single curve can be read without loading the whole result.
package resultstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/dd0wney/cluso-hazard/pkg/aggregate"
	"github.com/dd0wney/cluso-hazard/pkg/codec"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
)

var (
	ErrNotFound      = errors.New("result not found")
	ErrExists        = errors.New("result already stored")
	ErrNoCalculation = errors.New("result has no calculation id")
	ErrOutOfRange    = errors.New("index out of range")
	ErrClosed        = errors.New("result store is closed")
)

// Config configures the underlying database
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     logging.Logger
}

// RealizationInfo is the header of a stored realization
type RealizationInfo struct {
	Ordinal int     `json:"ordinal"`
	Name    string  `json:"name"`
	Weight  float64 `json:"weight"`
}

// summary is everything of a result but the per-realization data
type summary struct {
	Result       aggregate.AggregateResult `json:"result"`
	Realizations []RealizationInfo         `json:"realizations"`
}

// Store is a BadgerDB-backed result store. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger logging.Logger
}

// badgerLogger forwards badger's internal logs to a structured logger
type badgerLogger struct {
	logger logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens or creates a result store
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent result store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With(logging.Component("resultstore"))

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens a store that lives only as long as the process
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

func summaryKey(calcID string) []byte {
	return []byte("calc/" + calcID + "/summary")
}

func realizationKey(calcID string, ordinal int) []byte {
	return []byte(fmt.Sprintf("calc/%s/rlz/%06d", calcID, ordinal))
}

// Save stores a frozen result. A result is written once; saving the same
// calculation again fails with ErrExists.
func (s *Store) Save(res *aggregate.AggregateResult) error {
	if res.CalculationID == "" {
		return ErrNoCalculation
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(summaryKey(res.CalculationID))
		return err
	})
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrExists, res.CalculationID)
	case !errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("check result %s: %w", res.CalculationID, err)
	}

	sum := summary{Result: *res}
	sum.Result.Realizations = nil
	for _, rlz := range res.Realizations {
		sum.Realizations = append(sum.Realizations, RealizationInfo{Ordinal: rlz.Ordinal, Name: rlz.Name, Weight: rlz.Weight})
	}

	// realizations first; the summary marks the result as complete
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range res.Realizations {
		data, err := codec.Encode(&res.Realizations[i])
		if err != nil {
			return fmt.Errorf("encode realization %d: %w", i, err)
		}
		if err := wb.Set(realizationKey(res.CalculationID, res.Realizations[i].Ordinal), data); err != nil {
			return fmt.Errorf("write realization %d: %w", i, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write realizations: %w", err)
	}

	data, err := codec.Encode(&sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(summaryKey(res.CalculationID), data)
	}); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	s.logger.Info("result saved",
		logging.CalculationID(res.CalculationID),
		logging.Count(len(res.Realizations)),
		logging.String("digest", res.Digest))
	return nil
}

func (s *Store) loadSummary(calcID string) (*summary, error) {
	var sum summary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(summaryKey(calcID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return codec.Decode(val, &sum)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, calcID)
	}
	if err != nil {
		return nil, fmt.Errorf("read result %s: %w", calcID, err)
	}
	return &sum, nil
}

func (s *Store) loadRealization(txn *badger.Txn, calcID string, ordinal int) (*aggregate.RealizationResult, error) {
	item, err := txn.Get(realizationKey(calcID, ordinal))
	if err != nil {
		return nil, fmt.Errorf("read realization %d of %s: %w", ordinal, calcID, err)
	}
	var rlz aggregate.RealizationResult
	if err := item.Value(func(val []byte) error {
		return codec.Decode(val, &rlz)
	}); err != nil {
		return nil, err
	}
	return &rlz, nil
}

// Load returns the whole result of a calculation
func (s *Store) Load(calcID string) (*aggregate.AggregateResult, error) {
	sum, err := s.loadSummary(calcID)
	if err != nil {
		return nil, err
	}
	res := sum.Result
	res.Realizations = make([]aggregate.RealizationResult, len(sum.Realizations))
	err = s.db.View(func(txn *badger.Txn) error {
		for i, info := range sum.Realizations {
			rlz, err := s.loadRealization(txn, calcID, info.Ordinal)
			if err != nil {
				return err
			}
			res.Realizations[i] = *rlz
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Realizations returns the realization headers of a calculation
func (s *Store) Realizations(calcID string) ([]RealizationInfo, error) {
	sum, err := s.loadSummary(calcID)
	if err != nil {
		return nil, err
	}
	return sum.Realizations, nil
}

// Curve returns the PoEs of one realization at one site, all IMTs
// concatenated in level order
func (s *Store) Curve(calcID string, ordinal, siteID int) ([]float64, error) {
	sum, err := s.loadSummary(calcID)
	if err != nil {
		return nil, err
	}
	if ordinal < 0 || ordinal >= len(sum.Realizations) {
		return nil, fmt.Errorf("%w: realization %d", ErrOutOfRange, ordinal)
	}
	pos := -1
	for i, id := range sum.Result.SiteIDs {
		if id == siteID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("%w: site %d", ErrOutOfRange, siteID)
	}

	var curve []float64
	err = s.db.View(func(txn *badger.Txn) error {
		rlz, err := s.loadRealization(txn, calcID, sum.Realizations[ordinal].Ordinal)
		if err != nil {
			return err
		}
		if pos >= len(rlz.Curves) {
			return fmt.Errorf("%w: realization %d has no curves", ErrOutOfRange, ordinal)
		}
		curve = rlz.Curves[pos]
		return nil
	})
	return curve, err
}

// List returns the ids of the stored calculations in key order
func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("calc/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if id, ok := strings.CutSuffix(strings.TrimPrefix(key, "calc/"), "/summary"); ok {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}
