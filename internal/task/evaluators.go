package task

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// evaluatorBuilders maps evaluator names usable in task config to constructors.
var evaluatorBuilders = map[string]func(t *DatasetTask) Evaluator{
	"entity-leakage": newEntityLeakage,
	"rewrite-rate":   newRewriteRate,
}

// EvaluatorNames lists the evaluators a task config may reference.
func EvaluatorNames() []string {
	names := make([]string, 0, len(evaluatorBuilders))
	for n := range evaluatorBuilders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func buildEvaluators(names []string, t *DatasetTask) (Evaluator, error) {
	if len(names) == 0 {
		return nil, nil
	}
	evals := make([]Evaluator, 0, len(names))
	for _, n := range names {
		b, ok := evaluatorBuilders[n]
		if !ok {
			return nil, fmt.Errorf("unknown evaluator %q (known: %s)", n, strings.Join(EvaluatorNames(), ", "))
		}
		evals = append(evals, b(t))
	}
	if len(evals) == 1 {
		return evals[0], nil
	}
	return Chain(evals...)
}

// Chain combines evaluators into one. Their keys must not overlap.
func Chain(evals ...Evaluator) (Evaluator, error) {
	seen := make(map[string]bool)
	var keys []string
	for _, e := range evals {
		for _, k := range e.Keys() {
			if seen[k] {
				return nil, fmt.Errorf("evaluators both produce %q", k)
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return EvaluatorFunc{
		Names: keys,
		Fn: func(ctx context.Context, rewrites []string) (map[string]float64, error) {
			out := make(map[string]float64, len(keys))
			for _, e := range evals {
				res, err := e.Evaluate(ctx, rewrites)
				if err != nil {
					return nil, err
				}
				for k, v := range res {
					out[k] = v
				}
			}
			return out, nil
		},
	}, nil
}

// newEntityLeakage scores how many of the sensitive entities listed on each
// record still appear, case-insensitively, in its rewrite.
func newEntityLeakage(t *DatasetTask) Evaluator {
	return EvaluatorFunc{
		Names: []string{"entity_leakage", "entities_checked"},
		Fn: func(_ context.Context, rewrites []string) (map[string]float64, error) {
			records, err := t.Records()
			if err != nil {
				return nil, err
			}
			if len(records) != len(rewrites) {
				return nil, fmt.Errorf("entity-leakage: %d records, %d rewrites", len(records), len(rewrites))
			}
			var total, leaked int
			for i, r := range records {
				lower := strings.ToLower(rewrites[i])
				for _, ent := range stringList(r[t.cfg.EntitiesField]) {
					if strings.TrimSpace(ent) == "" {
						continue
					}
					total++
					if strings.Contains(lower, strings.ToLower(ent)) {
						leaked++
					}
				}
			}
			leakage := 0.0
			if total > 0 {
				leakage = float64(leaked) / float64(total)
			}
			return map[string]float64{"entity_leakage": leakage, "entities_checked": float64(total)}, nil
		},
	}
}

// newRewriteRate scores the fraction of records whose rewrite differs from the original.
func newRewriteRate(t *DatasetTask) Evaluator {
	return EvaluatorFunc{
		Names: []string{"rewrite_rate"},
		Fn: func(ctx context.Context, rewrites []string) (map[string]float64, error) {
			texts, err := t.Texts(ctx)
			if err != nil {
				return nil, err
			}
			if len(texts) != len(rewrites) {
				return nil, fmt.Errorf("rewrite-rate: %d texts, %d rewrites", len(texts), len(rewrites))
			}
			changed := 0
			for i := range texts {
				if strings.TrimSpace(texts[i]) != strings.TrimSpace(rewrites[i]) {
					changed++
				}
			}
			return map[string]float64{"rewrite_rate": float64(changed) / float64(len(texts))}, nil
		},
	}
}

func stringList(v interface{}) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return x
	default:
		return nil
	}
}
