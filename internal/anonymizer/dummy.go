package anonymizer

import "context"

// Dummy replaces every text with "...". Useful for smoke tests of a pipeline.
type Dummy struct {
	name string
}

// NewDummy returns a Dummy named name, or "Dummy Model" when name is empty.
func NewDummy(name string) *Dummy {
	if name == "" {
		name = "Dummy Model"
	}
	return &Dummy{name: name}
}

func (d *Dummy) Name() string { return d.name }

func (d *Dummy) Anonymize(_ context.Context, _ string) (string, error) {
	return "...", nil
}

func (d *Dummy) AnonymizeBatch(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i := range texts {
		out[i], _ = d.Anonymize(ctx, texts[i])
	}
	return out, nil
}

// Identity returns every text unchanged. It has no batch path.
type Identity struct {
	name string
}

// NewIdentity returns an Identity named name, or "Identity Model" when name is empty.
func NewIdentity(name string) *Identity {
	if name == "" {
		name = "Identity Model"
	}
	return &Identity{name: name}
}

func (m *Identity) Name() string { return m.name }

func (m *Identity) Anonymize(_ context.Context, text string) (string, error) {
	return text, nil
}
