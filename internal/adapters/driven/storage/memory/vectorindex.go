package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an exact, brute-force vector index held in memory.
type VectorIndex struct {
	mu      sync.RWMutex
	dims    int
	seq     uint64
	entries map[string]storedEntry
}

type storedEntry struct {
	entry domain.IndexEntry
	seq   uint64
}

// NewVectorIndex creates an empty index for vectors of the given size.
func NewVectorIndex(dimensions int) *VectorIndex {
	return &VectorIndex{
		dims:    dimensions,
		entries: make(map[string]storedEntry),
	}
}

// Upsert validates every entry before writing any of them.
func (v *VectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for i := range entries {
		if entries[i].ID == "" {
			return 0, fmt.Errorf("%w: entry %d has no id", domain.ErrInvalidInput, i)
		}
		if err := domain.ValidateVector(entries[i].Vector, v.dims); err != nil {
			return 0, fmt.Errorf("entry %s: %w", entries[i].ID, err)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range entries {
		v.seq++
		v.entries[entries[i].ID] = storedEntry{entry: cloneEntry(&entries[i]), seq: v.seq}
	}
	return len(entries), nil
}

// Query scores every entry matching filter.
func (v *VectorIndex) Query(
	ctx context.Context, vector domain.Vector, topK int, filter domain.MetadataFilter,
) ([]domain.ScoredEntry, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidInput, topK)
	}
	if err := domain.ValidateVector(vector, v.dims); err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	type candidate struct {
		scored domain.ScoredEntry
		seq    uint64
	}
	candidates := make([]candidate, 0, len(v.entries))
	for _, s := range v.entries {
		if !filter.Matches(s.entry.Metadata) {
			continue
		}
		candidates = append(candidates, candidate{
			scored: domain.ScoredEntry{
				IndexEntry: cloneEntry(&s.entry),
				Score:      domain.CosineSimilarity(vector, s.entry.Vector),
			},
			seq: s.seq,
		})
	}
	v.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].scored.Score != candidates[j].scored.Score {
			return candidates[i].scored.Score > candidates[j].scored.Score
		}
		return candidates[i].seq > candidates[j].seq
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]domain.ScoredEntry, len(candidates))
	for i := range candidates {
		results[i] = candidates[i].scored
	}
	return results, nil
}

// Delete removes entries by ID.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	removed := 0
	for _, id := range ids {
		if _, ok := v.entries[id]; ok {
			delete(v.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored entries.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries), nil
}

// Dimensions returns the configured vector size.
func (v *VectorIndex) Dimensions() int {
	return v.dims
}

// Close is a no-op.
func (v *VectorIndex) Close() error {
	return nil
}

func cloneEntry(e *domain.IndexEntry) domain.IndexEntry {
	out := *e
	out.Vector = append(domain.Vector(nil), e.Vector...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, val := range e.Metadata {
			out.Metadata[k] = val
		}
	}
	return out
}
