package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Hash is a local feature-hashing embedder. Texts sharing words get similar
// vectors. It needs no network and is fully deterministic, which makes it
// suitable for offline runs and tests.
type Hash struct {
	dim int
}

func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = 256
	}
	return &Hash{dim: dim}
}

func (h *Hash) Model() string { return fmt.Sprintf("hash-%d", h.dim) }

func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		sum := f.Sum32()
		idx := int(sum % uint32(h.dim))
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
