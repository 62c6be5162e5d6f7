package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrModelUnavailable is returned when the model cannot be loaded. It is
// distinct from per-item failures, which never fail a batch.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// DefaultBatchSize bounds how many texts go to the model per call.
const DefaultBatchSize = 32

// Model turns texts into fixed-length vectors.
type Model interface {
	Dimensions() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Loader produces the model on first use.
type Loader func(ctx context.Context) (Model, error)

// Vector is one embedding. Failed marks a zero vector standing in for an
// item the model could not embed.
type Vector struct {
	Values []float32
	Failed bool
}

// Generator embeds batches of text. The model is loaded lazily, once, on the
// first non-empty call; a failed load is remembered and reported on every
// later call.
type Generator struct {
	Load      Loader
	BatchSize int

	once    sync.Once
	model   Model
	loadErr error
}

func (g *Generator) load(ctx context.Context) (Model, error) {
	g.once.Do(func() {
		if g.Load == nil {
			g.loadErr = errors.New("no model configured")
			return
		}
		// the model outlives the request that happened to load it
		m, err := g.Load(context.WithoutCancel(ctx))
		if err == nil && (m == nil || m.Dimensions() <= 0) {
			err = errors.New("model reported no dimensions")
		}
		g.model, g.loadErr = m, err
		if err != nil {
			log.Error().Err(err).Msg("embedding model load failed")
			return
		}
		log.Info().Int("dimensions", m.Dimensions()).Msg("embedding model loaded")
	})
	if g.loadErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, g.loadErr)
	}
	return g.model, nil
}

// Embed returns one vector per input, in input order. Empty strings still get
// a vector.
func (g *Generator) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return []Vector{}, nil
	}
	m, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	size := g.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([]Vector, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, g.embedBatch(ctx, m, texts[start:end])...)
	}
	return out, nil
}

// embedBatch falls back to embedding items one at a time when the batch call
// fails, so one bad input only costs its own vector.
func (g *Generator) embedBatch(ctx context.Context, m Model, batch []string) []Vector {
	inputs := make([]string, len(batch))
	for i, t := range batch {
		inputs[i] = modelInput(t)
	}
	vecs, err := m.EmbedBatch(ctx, inputs)
	if err == nil && validBatch(vecs, len(inputs), m.Dimensions()) {
		out := make([]Vector, len(vecs))
		for i, v := range vecs {
			out[i] = Vector{Values: v}
		}
		return out
	}
	if err != nil {
		log.Warn().Err(err).Int("batch", len(batch)).Msg("embedding batch failed; retrying items")
	}
	out := make([]Vector, len(inputs))
	for i, in := range inputs {
		vs, err := m.EmbedBatch(ctx, []string{in})
		if err != nil || !validBatch(vs, 1, m.Dimensions()) {
			log.Warn().Err(err).Int("item", i).Msg("embedding item failed; using zero vector")
			out[i] = Vector{Values: make([]float32, m.Dimensions()), Failed: true}
			continue
		}
		out[i] = Vector{Values: vs[0]}
	}
	return out
}

func validBatch(vecs [][]float32, n, dims int) bool {
	if len(vecs) != n {
		return false
	}
	for _, v := range vecs {
		if len(v) != dims {
			return false
		}
	}
	return true
}

// modelInput replaces empty text with a single space; embedding APIs reject
// empty strings but every input must still yield a vector.
func modelInput(s string) string {
	if s == "" {
		return " "
	}
	return s
}
