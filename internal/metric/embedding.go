package metric

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/daryltucker/tau-eval/internal/config"
)

// LUARModel is the authorship-representation model served for the "luar" metric.
const LUARModel = "gabrielloiseau/LUAR-MUD-sentence-transformers"

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder builds an Embedder from config. It fails at call time, not
// construction time, when no endpoint is configured, so that the metric
// reports the problem inside the affected records.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, model string) *OpenAIEmbedder {
	if model == "" {
		model = cfg.Model
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.URL != "" {
		c.BaseURL = strings.TrimRight(cfg.URL, "/")
	}
	var client *openai.Client
	if cfg.APIKey != "" || cfg.URL != "" {
		client = openai.NewClientWithConfig(c)
	}
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.client == nil {
		return nil, errors.New("no embeddings endpoint configured (set embeddings.url or embeddings.api_key)")
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// NewEmbeddingSimilarity returns a metric scoring each pair by the cosine
// similarity of the embeddings of the original and the rewrite.
func NewEmbeddingSimilarity(id, key string, emb Embedder) Metric {
	return New(id, []string{key}, func(ctx context.Context, originals, rewrites []string) (Scores, error) {
		if err := CheckLengths(originals, rewrites); err != nil {
			return nil, err
		}
		if len(originals) == 0 {
			return Scores{key: []float64{}}, nil
		}
		orig, err := emb.Embed(ctx, originals)
		if err != nil {
			return nil, err
		}
		rew, err := emb.Embed(ctx, rewrites)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(originals))
		for i := range originals {
			if out[i], err = cosine(orig[i], rew[i]); err != nil {
				return nil, fmt.Errorf("pair %d: %w", i, err)
			}
		}
		return Scores{key: out}, nil
	})
}

// Builtins returns a registry holding every built-in metric.
func Builtins(emb config.EmbeddingConfig) *Registry {
	r := NewRegistry()
	r.MustRegister(NewRouge())
	r.MustRegister(NewLexicalOverlap())
	r.MustRegister(NewLengthRatio())
	r.MustRegister(NewEmbeddingSimilarity("embedding-similarity", "embedding_similarity", NewOpenAIEmbedder(emb, "")))
	r.MustRegister(NewEmbeddingSimilarity("luar", "luar", NewOpenAIEmbedder(emb, LUARModel)))
	return r
}
