package embed

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/serpgate/internal/llm"
)

// OpenAIModel embeds through an OpenAI-compatible /embeddings endpoint.
type OpenAIModel struct {
	Client llm.EmbeddingClient
	Name   string
	dims   int
	// requestDims is sent as the dimensions parameter when non-zero.
	requestDims int
}

func (m *OpenAIModel) Dimensions() int { return m.dims }

func (m *OpenAIModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := m.Client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(m.Name),
		Dimensions: m.requestDims,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("embeddings: bad index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// OpenAILoader returns a Loader that checks the model is served (when the
// client can list models) and measures its vector length. dims, when non-zero,
// is requested from the API.
func OpenAILoader(client llm.EmbeddingClient, name string, dims int) Loader {
	return func(ctx context.Context) (Model, error) {
		if client == nil || name == "" {
			return nil, errors.New("embedding client or model name missing")
		}
		if lister, ok := client.(llm.ModelLister); ok {
			found, err := llm.HasModel(ctx, lister, name)
			if err == nil && !found {
				return nil, fmt.Errorf("model %q not served", name)
			}
		}
		m := &OpenAIModel{Client: client, Name: name, requestDims: dims}
		sample, err := m.EmbedBatch(ctx, []string{"dimension check"})
		if err != nil {
			return nil, fmt.Errorf("embed sample %s: %w", name, err)
		}
		if len(sample) != 1 || len(sample[0]) == 0 {
			return nil, fmt.Errorf("embed sample %s: empty vector", name)
		}
		m.dims = len(sample[0])
		return m, nil
	}
}
