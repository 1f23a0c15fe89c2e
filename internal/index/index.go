// Package index holds embedded chunks and answers nearest-neighbour queries
// by cosine similarity.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dgallion1/docqa/internal/document"
)

var (
	// ErrNotBuilt is returned by Store.Current before any index exists.
	ErrNotBuilt = errors.New("index not built")
	// ErrNoEntries is returned when asked to build an index from nothing.
	ErrNoEntries = errors.New("no chunks to index")
)

// Entry is one embedded chunk.
type Entry struct {
	Chunk  document.Chunk
	Vector []float32
}

// Hit is a search result.
type Hit struct {
	Entry
	Score float32
}

// Index is an immutable set of entries sharing one embedding model and
// dimension. It is replaced wholesale on every build.
type Index struct {
	ID          string
	Model       string
	Dim         int
	ContentHash string
	CreatedAt   time.Time
	Entries     []Entry

	norms []float64
}

// New validates entries and precomputes their norms.
func New(id, model string, entries []Entry, createdAt time.Time) (*Index, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	dim := len(entries[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("entry 0 has an empty vector")
	}

	norms := make([]float64, len(entries))
	chunks := make([]document.Chunk, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("entry %d: dimension %d, want %d", i, len(e.Vector), dim)
		}
		norms[i] = norm(e.Vector)
		chunks[i] = e.Chunk
	}

	return &Index{
		ID:          id,
		Model:       model,
		Dim:         dim,
		ContentHash: ContentHash(chunks),
		CreatedAt:   createdAt,
		Entries:     entries,
		norms:       norms,
	}, nil
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.Entries) }

// Search returns the k entries most similar to query, best first. Equal
// scores keep insertion order.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.Dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.Dim)
	}
	if k <= 0 {
		return nil, nil
	}

	qn := norm(query)
	hits := make([]Hit, len(ix.Entries))
	for i, e := range ix.Entries {
		var score float64
		if qn > 0 && ix.norms[i] > 0 {
			score = dot(query, e.Vector) / (qn * ix.norms[i])
		}
		hits[i] = Hit{Entry: e, Score: float32(score)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// ContentHash fingerprints an ordered chunk list by source and text.
func ContentHash(chunks []document.Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		h.Write([]byte(c.Source.Name))
		h.Write([]byte{0})
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
