package bigram

import (
	"maps"
	"slices"
	"sort"
)

// Bigram is an ordered pair of adjacent tokens. Second immediately follows
// First in the token sequence.
type Bigram struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// Successor is one entry of a next-word distribution.
type Successor struct {
	Word        string  `json:"word" yaml:"word"`
	Count       int     `json:"count" yaml:"count"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// Model holds the word and bigram frequency tables of a single corpus.
// The tables are written only by the constructors; every method is read-only,
// so a Model may be shared between goroutines without locking.
type Model struct {
	tokens  int
	words   map[string]int
	bigrams map[Bigram]int
	// successors indexes bigrams by their first token, mirroring bigrams.
	successors map[string]map[string]int
}

// NewModel tokenizes corpus with Tokenize and counts its words and bigrams.
// An empty corpus yields a Model with empty tables.
func NewModel(corpus string) *Model {
	return NewModelFromTokens(Tokenize(corpus))
}

// NewModelFromTokens builds a Model from an already tokenized sequence. The
// tokens are used as given; no case folding happens here.
func NewModelFromTokens(tokens []string) *Model {
	m := newEmptyModel()
	m.tokens = len(tokens)
	for _, tok := range tokens {
		m.words[tok]++
	}
	for i := 0; i+1 < len(tokens); i++ {
		m.addBigram(tokens[i], tokens[i+1], 1)
	}
	return m
}

// newModelFromCounts assembles a Model from precomputed tables, as read back
// from a Store.
func newModelFromCounts(tokens int, words map[string]int, bigrams map[Bigram]int) *Model {
	m := newEmptyModel()
	m.tokens = tokens
	for w, c := range words {
		m.words[w] = c
	}
	for b, c := range bigrams {
		m.addBigram(b.First, b.Second, c)
	}
	return m
}

func newEmptyModel() *Model {
	return &Model{
		words:      make(map[string]int),
		bigrams:    make(map[Bigram]int),
		successors: make(map[string]map[string]int),
	}
}

func (m *Model) addBigram(first, second string, count int) {
	m.bigrams[Bigram{First: first, Second: second}] += count
	next, ok := m.successors[first]
	if !ok {
		next = make(map[string]int)
		m.successors[first] = next
	}
	next[second] += count
}

// Tokens returns the length of the token sequence the Model was built from.
func (m *Model) Tokens() int {
	return m.tokens
}

// WordCounts returns a copy of the word frequency table.
func (m *Model) WordCounts() map[string]int {
	return maps.Clone(m.words)
}

// BigramCounts returns a copy of the bigram frequency table.
func (m *Model) BigramCounts() map[Bigram]int {
	return maps.Clone(m.bigrams)
}

// WordCount returns how many times word occurs in the corpus.
func (m *Model) WordCount(word string) int {
	return m.words[word]
}

// BigramCount returns how many times second immediately follows first.
func (m *Model) BigramCount(first, second string) int {
	return m.bigrams[Bigram{First: first, Second: second}]
}

// Vocabulary returns the distinct tokens of the corpus in lexical order.
func (m *Model) Vocabulary() []string {
	return slices.Sorted(maps.Keys(m.words))
}

// NextWords returns the empirical distribution over the words observed to
// follow word. The lookup is exact: word must already be lowercased to match.
// If word was never seen before another token the result is an empty map.
func (m *Model) NextWords(word string) map[string]float64 {
	next := m.successors[word]
	var total int
	for _, c := range next {
		total += c
	}
	dist := make(map[string]float64, len(next))
	if total == 0 {
		return dist
	}
	for w, c := range next {
		dist[w] = float64(c) / float64(total)
	}
	return dist
}

// Successors returns the same distribution as NextWords together with the
// raw counts, ordered by count descending and then by word.
func (m *Model) Successors(word string) []Successor {
	next := m.successors[word]
	var total int
	for _, c := range next {
		total += c
	}
	if total == 0 {
		return nil
	}
	out := make([]Successor, 0, len(next))
	for w, c := range next {
		out = append(out, Successor{Word: w, Count: c, Probability: float64(c) / float64(total)})
	}
	sortSuccessors(out)
	return out
}

// sortSuccessors orders by count descending, ties broken by word, so output
// never depends on map iteration order.
func sortSuccessors(s []Successor) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Word < s[j].Word
	})
}
