package anonymizer

import (
	"fmt"
	"strings"

	"github.com/daryltucker/tau-eval/internal/config"
)

// Backends lists the model types FromConfig understands.
var Backends = []string{"dummy", "identity", "ollama", "openai"}

// FromConfig builds the backend declared by mc. Run options that a backend
// understands (seed, device) are forwarded to it.
func FromConfig(mc config.ModelConfig, run config.RunConfig) (Anonymizer, error) {
	switch strings.ToLower(mc.Type) {
	case "dummy":
		return NewDummy(mc.Name), nil
	case "identity":
		return NewIdentity(mc.Name), nil
	case "ollama":
		opts := make(map[string]interface{}, len(mc.Options)+2)
		for k, v := range mc.Options {
			opts[k] = v
		}
		if _, ok := opts["seed"]; !ok {
			opts["seed"] = run.Seed
		}
		if strings.EqualFold(run.Device, "cpu") {
			opts["num_gpu"] = 0
		}
		if mc.Temperature != nil {
			opts["temperature"] = *mc.Temperature
		}
		return NewOllama(OllamaOptions{
			Name:       mc.Name,
			URL:        mc.URL,
			Model:      mc.Model,
			Prompt:     mc.Prompt,
			MaxRetries: mc.MaxRetries,
			RetryDelay: mc.RetryDelay,
			Timeout:    mc.Timeout,
			Options:    opts,
		}), nil
	case "openai":
		seed := int(run.Seed)
		return NewOpenAI(OpenAIOptions{
			Name:        mc.Name,
			URL:         mc.URL,
			APIKey:      mc.APIKey,
			Model:       mc.Model,
			Prompt:      mc.Prompt,
			Temperature: mc.Temperature,
			Seed:        &seed,
		})
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownBackend, mc.Type, strings.Join(Backends, ", "))
	}
}

// BuildAll builds every configured model, in order.
func BuildAll(models []config.ModelConfig, run config.RunConfig) ([]Anonymizer, error) {
	out := make([]Anonymizer, 0, len(models))
	for i, mc := range models {
		m, err := FromConfig(mc, run)
		if err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}
