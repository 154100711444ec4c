package segments

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/rtree"
	"go.uber.org/zap"

	"github.com/saferoads/server/internal/lib/geo"
)

// StoreConfig controls rating aggregation behaviour.
type StoreConfig struct {
	// TieFavorsBad flips the majority tie-break. The default (false) resolves
	// an even good/bad split to RatingGood.
	TieFavorsBad bool
}

// Store owns all RoadSegment records. It is the sole writer; every read
// returns a copied snapshot. Writes for the same key are serialized by the
// store mutex so concurrent ratings never lose updates.
type Store struct {
	mu       sync.RWMutex
	segments map[string]*RoadSegment
	index    rtree.RTreeG[string]

	// putMu serializes backend writes; persistedCount tracks the highest
	// rating count durably saved per key so a delayed older snapshot never
	// overwrites a newer one.
	putMu          sync.Mutex
	persistedCount map[string]int

	cfg     StoreConfig
	backend Backend
	logger  *zap.SugaredLogger
}

// NewStore creates a segment store. backend may be nil, in which case ratings
// live only in memory.
func NewStore(cfg StoreConfig, backend Backend, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		segments:       make(map[string]*RoadSegment),
		persistedCount: make(map[string]int),
		cfg:            cfg,
		backend:        backend,
		logger:         logger,
	}
}

// Query returns snapshots of all segments whose bounding area intersects b.
// No ordering guarantee. Reads may be briefly stale relative to in-flight
// writes, which is acceptable for scoring.
func (s *Store) Query(b geo.Bounds) []RoadSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RoadSegment
	s.index.Search(
		[2]float64{b.West, b.South},
		[2]float64{b.East, b.North},
		func(_, _ [2]float64, key string) bool {
			if seg, ok := s.segments[key]; ok {
				out = append(out, seg.clone())
			}
			return true
		},
	)
	return out
}

// Len returns the number of known segments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// SubmitRating records one user verdict for the segment identified by key,
// creating the segment on first rating. The consensus rating is recomputed
// atomically with the count increments. When the persistence backend fails the
// in-memory state is still updated and the returned error wraps
// ErrStorageUnavailable.
func (s *Store) SubmitRating(ctx context.Context, key string, coords SegmentCoords, verdict Rating) (RoadSegment, error) {
	if verdict != RatingGood && verdict != RatingBad {
		return RoadSegment{}, fmt.Errorf("%w: %q", ErrInvalidRating, verdict)
	}
	if !geo.Valid(coords.Start) || !geo.Valid(coords.End) {
		return RoadSegment{}, fmt.Errorf("%w: segment endpoints", ErrInvalidCoordinates)
	}
	if key == "" {
		key = SegmentKey(coords.Start, coords.End)
	}

	// For a key not yet in memory, consult the backend first so counts
	// accumulated in earlier process lifetimes carry into the consensus.
	persisted := s.lookupPersisted(ctx, key)

	s.mu.Lock()
	seg, ok := s.segments[key]
	if !ok {
		if persisted != nil {
			restored := persisted.clone()
			seg = &restored
		} else {
			seg = &RoadSegment{
				ID:           key,
				Coordinates:  coords,
				Points:       []geo.Point{coords.Start, coords.End},
				BoundingArea: boundingArea(coords.Start, coords.End),
				LengthKm:     geo.Haversine(coords.Start, coords.End),
			}
		}
		s.segments[key] = seg
		s.insertLocked(key, seg.BoundingArea)
	}

	seg.RatingCount++
	if verdict == RatingGood {
		seg.GoodRatingCount++
	} else {
		seg.BadRatingCount++
	}
	seg.Rating = s.consensus(seg.GoodRatingCount, seg.BadRatingCount)
	snapshot := seg.clone()
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.persist(ctx, key, snapshot); err != nil {
			s.logger.Warnw("rating not durably saved", "segment", key, "error", err)
			return snapshot, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	return snapshot, nil
}

// lookupPersisted fetches a previously persisted segment for a key absent from
// memory. Backend failures degrade to a fresh segment rather than failing the
// rating. Called without the store mutex since it may do I/O.
func (s *Store) lookupPersisted(ctx context.Context, key string) *RoadSegment {
	if s.backend == nil {
		return nil
	}
	s.mu.RLock()
	_, known := s.segments[key]
	s.mu.RUnlock()
	if known {
		return nil
	}

	persisted, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Warnw("persisted segment lookup failed, starting fresh", "segment", key, "error", err)
		return nil
	}
	return persisted
}

// persist writes a snapshot to the backend. Puts run outside the store mutex,
// so two concurrent ratings of one key may arrive here in either order; the
// rating-count guard drops the older snapshot instead of letting it overwrite
// the newer one.
func (s *Store) persist(ctx context.Context, key string, snapshot RoadSegment) error {
	s.putMu.Lock()
	defer s.putMu.Unlock()

	if snapshot.RatingCount <= s.persistedCount[key] {
		return nil
	}
	if err := s.backend.Put(ctx, key, snapshot); err != nil {
		return err
	}
	s.persistedCount[key] = snapshot.RatingCount
	return nil
}

// consensus applies the majority rule: Bad only on a strict majority of bad
// ratings, with ties resolved by configuration (Good by default).
func (s *Store) consensus(good, bad int) Rating {
	total := good + bad
	if total == 0 {
		return RatingUnknown
	}
	if bad*2 > total {
		return RatingBad
	}
	if bad*2 == total && s.cfg.TieFavorsBad {
		return RatingBad
	}
	return RatingGood
}

// Hydrate loads previously persisted segments for the given region into the
// in-memory index. A backend failure degrades to an empty-ratings world rather
// than failing startup.
func (s *Store) Hydrate(ctx context.Context, region geo.Bounds) error {
	if s.backend == nil {
		return nil
	}
	persisted, err := s.backend.QueryByBounds(ctx, region)
	if err != nil {
		s.logger.Warnw("segment hydration failed, starting with empty ratings", "error", err)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range persisted {
		seg := persisted[i].clone()
		if _, exists := s.segments[seg.ID]; exists {
			continue
		}
		s.segments[seg.ID] = &seg
		s.insertLocked(seg.ID, seg.BoundingArea)
	}
	s.logger.Infow("segment store hydrated", "segments", len(s.segments))
	return nil
}

// Delete removes a segment. Admin-only; normal operation never deletes.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.segments[key]
	if !ok {
		return false
	}
	b := seg.BoundingArea
	s.index.Delete(
		[2]float64{b.West, b.South},
		[2]float64{b.East, b.North},
		key,
	)
	delete(s.segments, key)
	return true
}

func (s *Store) insertLocked(key string, b geo.Bounds) {
	s.index.Insert(
		[2]float64{b.West, b.South},
		[2]float64{b.East, b.North},
		key,
	)
}
