package metric

import (
	"context"
	"strings"
	"unicode"
)

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func ngrams(tokens []string, n int) map[string]int {
	out := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], " ")]++
	}
	return out
}

func fmeasure(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// rougeN is the F-measure of n-gram overlap between a reference and a candidate.
func rougeN(ref, cand []string, n int) float64 {
	r, c := ngrams(ref, n), ngrams(cand, n)
	var refTotal, candTotal, overlap int
	for _, v := range r {
		refTotal += v
	}
	for g, v := range c {
		candTotal += v
		overlap += min(v, r[g])
	}
	if refTotal == 0 || candTotal == 0 {
		return 0
	}
	return fmeasure(float64(overlap)/float64(candTotal), float64(overlap)/float64(refTotal))
}

// rougeL is the F-measure of the longest common subsequence.
func rougeL(ref, cand []string) float64 {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	prev := make([]int, len(cand)+1)
	cur := make([]int, len(cand)+1)
	for i := 1; i <= len(ref); i++ {
		for j := 1; j <= len(cand); j++ {
			if ref[i-1] == cand[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	lcs := float64(prev[len(cand)])
	return fmeasure(lcs/float64(len(cand)), lcs/float64(len(ref)))
}

// NewRouge returns the "rouge" metric: rouge1, rouge2 and rougeL F-measures
// with the original as reference.
func NewRouge() Metric {
	keys := []string{"rouge1", "rouge2", "rougeL"}
	return New("rouge", keys, func(_ context.Context, originals, rewrites []string) (Scores, error) {
		if err := CheckLengths(originals, rewrites); err != nil {
			return nil, err
		}
		out := Scores{
			"rouge1": make([]float64, len(originals)),
			"rouge2": make([]float64, len(originals)),
			"rougeL": make([]float64, len(originals)),
		}
		for i := range originals {
			ref, cand := tokenize(originals[i]), tokenize(rewrites[i])
			out["rouge1"][i] = rougeN(ref, cand, 1)
			out["rouge2"][i] = rougeN(ref, cand, 2)
			out["rougeL"][i] = rougeL(ref, cand)
		}
		return out, nil
	})
}

// jaccard is |A ∩ B| / |A ∪ B| over token sets. Two empty texts score 1.
func jaccard(a, b string) float64 {
	sa, sb := make(map[string]bool), make(map[string]bool)
	for _, t := range tokenize(a) {
		sa[t] = true
	}
	for _, t := range tokenize(b) {
		sb[t] = true
	}
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(sa)+len(sb)-inter)
}

// NewLexicalOverlap returns the "lexical-overlap" metric (token-set Jaccard).
func NewLexicalOverlap() Metric {
	return pairwise("lexical-overlap", "lexical-overlap", jaccard)
}

// lengthRatio is rewrite tokens over original tokens.
func lengthRatio(original, rewrite string) float64 {
	o, r := len(tokenize(original)), len(tokenize(rewrite))
	if o == 0 {
		if r == 0 {
			return 1
		}
		return 0
	}
	return float64(r) / float64(o)
}

// NewLengthRatio returns the "length-ratio" metric.
func NewLengthRatio() Metric {
	return pairwise("length-ratio", "length_ratio", lengthRatio)
}
