package bigram

import (
	"math"
	"math/rand/v2"
)

// generateOptions is used by Generate to configure default options.
type generateOptions struct {
	maxLength   int
	temperature float64
	topK        int
	rng         *rand.Rand
}

// GenerateOption is a function that configures generation parameters.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the maximum number of tokens to produce, seed included.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithTemperature adjusts the randomness of the successor selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 flatten the distribution, values < 1.0 sharpen it.
// A value of 0 or less always picks the most frequent successor.
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the selection pool to the `k` most frequent successors
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// WithRand sets the random source used for sampling. By default the global
// math/rand/v2 source is used.
func WithRand(r *rand.Rand) GenerateOption {
	return func(o *generateOptions) { o.rng = r }
}

func defaultGenerateOptions() *generateOptions {
	return &generateOptions{
		maxLength:   20,
		temperature: 1.0,
		topK:        0,
	}
}

// Predict returns the most frequent successor of word. Ties go to the
// lexically smallest word. The boolean is false when word has no successor.
func (m *Model) Predict(word string) (string, bool) {
	s := m.Successors(word)
	if len(s) == 0 {
		return "", false
	}
	return s[0].Word, true
}

// Generate produces a token sequence starting at seed by repeatedly sampling
// a successor of the last token. It stops after maxLength tokens or when the
// last token has no successor. The seed is lowercased; an unknown seed yields
// just the seed itself.
func (m *Model) Generate(seed string, opts ...GenerateOption) []string {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	// A Model never fails to list successors.
	out, _ := generateFrom(m, Tokenize(seed), options)
	return out
}

// successorSource abstracts where successors come from so generation works
// the same over a Model and over a Store.
type successorSource interface {
	successorsOf(word string) ([]Successor, error)
}

func (m *Model) successorsOf(word string) ([]Successor, error) {
	return m.Successors(word), nil
}

// generateFrom contains the main loop for extending a token sequence.
func generateFrom(src successorSource, seed []string, options *generateOptions) ([]string, error) {
	if len(seed) == 0 || options.maxLength <= 0 {
		return nil, nil
	}
	if len(seed) > options.maxLength {
		seed = seed[:options.maxLength]
	}
	out := append([]string(nil), seed...)
	for len(out) < options.maxLength {
		choices, err := src.successorsOf(out[len(out)-1])
		if err != nil {
			return out, err
		}
		if len(choices) == 0 { // Dead end
			break
		}
		out = append(out, chooseNext(choices, options))
	}
	return out, nil
}

// chooseNext picks one successor according to the topK and temperature
// options. choices must be non-empty.
func chooseNext(choices []Successor, options *generateOptions) string {
	if options.topK > 0 && options.topK < len(choices) {
		choices = append([]Successor(nil), choices...)
		sortSuccessors(choices)
		choices = choices[:options.topK]
	}

	totalFreq := 0
	for _, c := range choices {
		totalFreq += c.Count
	}

	intN := rand.IntN
	float64n := rand.Float64
	if options.rng != nil {
		intN = options.rng.IntN
		float64n = options.rng.Float64
	}

	if options.temperature <= 0 { // Deterministic
		best := choices[0]
		for _, c := range choices[1:] {
			if c.Count > best.Count || (c.Count == best.Count && c.Word < best.Word) {
				best = c
			}
		}
		return best.Word
	}

	if options.temperature == 1.0 { // Standard weighted random
		pick := intN(totalFreq)
		for _, c := range choices {
			pick -= c.Count
			if pick < 0 {
				return c.Word
			}
		}
		return choices[len(choices)-1].Word
	}

	// Temperature scaling in log space.
	logProbs := make([]float64, len(choices))
	maxLog := math.Inf(-1)
	for i, c := range choices {
		lp := math.Log(float64(c.Count)) / options.temperature
		logProbs[i] = lp
		if lp > maxLog {
			maxLog = lp
		}
	}
	weights := make([]float64, len(choices))
	var totalWeight float64
	for i, lp := range logProbs {
		weights[i] = math.Exp(lp - maxLog)
		totalWeight += weights[i]
	}
	pick := float64n() * totalWeight
	for i, c := range choices {
		pick -= weights[i]
		if pick < 0 {
			return c.Word
		}
	}
	return choices[len(choices)-1].Word
}
