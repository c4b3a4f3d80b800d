// Package anonymizer defines the model adapter contract and its backends.
//
// Every backend rewrites a single text. Backends that can process several
// texts in one call also implement BatchAnonymizer; the engine uses the batch
// path when it is available and falls back to one call per text otherwise.
package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLengthMismatch is returned when a batch result does not line up with its input.
	ErrLengthMismatch = errors.New("batch result length mismatch")
	// ErrUnknownBackend is returned by the factory for an unregistered model type.
	ErrUnknownBackend = errors.New("unknown model backend")
)

// DefaultPrompt is used by generative backends when the model config has no prompt.
// {{text}} is replaced by the text to rewrite.
const DefaultPrompt = `Rewrite the following text so that its author cannot be identified from its style or content, ` +
	`while keeping its meaning. Reply with the rewritten text only.

{{text}}`

// Anonymizer rewrites text to reduce identifying characteristics.
type Anonymizer interface {
	// Name is the display name used as the model key in reports.
	Name() string
	Anonymize(ctx context.Context, text string) (string, error)
}

// BatchAnonymizer rewrites an ordered list of texts in one call.
// The result must have the same length and order as the input.
type BatchAnonymizer interface {
	Anonymizer
	AnonymizeBatch(ctx context.Context, texts []string) ([]string, error)
}

// renderPrompt substitutes text into the prompt template.
func renderPrompt(tmpl, text string) string {
	if tmpl == "" {
		tmpl = DefaultPrompt
	}
	if !strings.Contains(tmpl, "{{text}}") {
		return tmpl + "\n\n" + text
	}
	return strings.ReplaceAll(tmpl, "{{text}}", text)
}

// CheckBatch verifies that a batch result lines up with its input.
func CheckBatch(in, out []string) error {
	if len(in) != len(out) {
		return fmt.Errorf("%w: sent %d texts, got %d", ErrLengthMismatch, len(in), len(out))
	}
	return nil
}
