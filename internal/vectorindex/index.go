// Package vectorindex provides exhaustive nearest-neighbor search over
// ticket embeddings. At the expected corpus scale (hundreds to a few
// thousand tickets) a flat scan is exact and fast; callers depend on
// the search contract, not on the scan, so an approximate structure can
// replace this later.
package vectorindex

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// ErrDimensionMismatch is returned when a vector's length does not
// match the index dimension.
var ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")

// Record pairs an embedding vector with the ticket it represents.
type Record struct {
	Vector []float32
	Ticket protocol.Ticket
}

// Match is one search hit. Score is 1/(1+distance), in (0,1].
type Match struct {
	Ticket protocol.Ticket
	Score  float64
}

// Index is a flat L2 vector index with parallel ticket metadata.
// Vector count and metadata count are always equal; row order is
// insertion order. Safe for concurrent use: searches take a read lock,
// Add and Rebuild take the write lock (Rebuild only for the swap).
type Index struct {
	dim    int
	logger *slog.Logger

	mu      sync.RWMutex
	vectors [][]float32
	tickets []protocol.Ticket

	indexPath string
	metaPath  string
}

// New creates an empty index of the given dimension. indexPath and
// metaPath are the co-located file pair used by Persist and Load.
func New(dim int, indexPath, metaPath string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		dim:       dim,
		logger:    logger,
		indexPath: indexPath,
		metaPath:  metaPath,
	}
}

// Dimension returns the fixed vector length D.
func (ix *Index) Dimension() int { return ix.dim }

// Count returns the number of stored records.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Add appends records to the index. Vectors and metadata are appended
// in lock-step; a single bad dimension rejects the whole batch.
func (ix *Index) Add(records []Record) error {
	for i, r := range records {
		if len(r.Vector) != ix.dim {
			return fmt.Errorf("%w: record %d has dimension %d, want %d", ErrDimensionMismatch, i, len(r.Vector), ix.dim)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, r := range records {
		ix.vectors = append(ix.vectors, r.Vector)
		ix.tickets = append(ix.tickets, r.Ticket)
	}
	return nil
}

// Search returns at most k records ordered by descending similarity.
// threshold < 0 disables filtering; otherwise records scoring below it
// are excluded from the result, though every candidate score is still
// computed and logged for diagnostics. An empty index yields an empty
// result, not an error.
func (ix *Index) Search(query []float32, k int, threshold float64) ([]Match, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	candidates := make([]Match, len(ix.vectors))
	for i, v := range ix.vectors {
		candidates[i] = Match{
			Ticket: ix.tickets[i],
			Score:  1 / (1 + sqDistance(query, v)),
		}
	}
	ix.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	scores := make([]string, len(candidates))
	for i, c := range candidates {
		scores[i] = fmt.Sprintf("%s=%.4f", c.Ticket.Key, c.Score)
	}
	ix.logger.Debug("similarity candidates", "scores", scores, "threshold", threshold)

	if threshold < 0 {
		return candidates, nil
	}
	matches := candidates[:0:0]
	for _, c := range candidates {
		if c.Score >= threshold {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// Rebuild atomically replaces all records with the given set. The
// replacement is validated and assembled off to the side; readers never
// observe a partially replaced index, and any error leaves the previous
// contents untouched.
func (ix *Index) Rebuild(tickets []protocol.Ticket, vectors [][]float32) error {
	if len(tickets) != len(vectors) {
		return fmt.Errorf("vectorindex: rebuild: %d tickets but %d vectors", len(tickets), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(v), ix.dim)
		}
	}

	newVectors := make([][]float32, len(vectors))
	copy(newVectors, vectors)
	newTickets := make([]protocol.Ticket, len(tickets))
	copy(newTickets, tickets)

	ix.mu.Lock()
	ix.vectors = newVectors
	ix.tickets = newTickets
	ix.mu.Unlock()

	ix.logger.Info("index rebuilt", "records", len(newTickets))
	return nil
}

// sqDistance is squared Euclidean distance. The score transform
// 1/(1+d) only requires d to be monotonic in true distance.
func sqDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
