package bigram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetSuccessors retrieves every word observed to follow word in corpus,
// ordered by count descending, together with the sum of their counts. An
// unknown word returns a nil slice and a total of 0. The lookup is exact.
func (s *Store) GetSuccessors(ctx context.Context, corpus CorpusInfo, word string) ([]Successor, int, error) {
	var tokenID int
	err := s.stmtGetTokenID.QueryRowContext(ctx, word).Scan(&tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Never seen in any corpus, so there are no possible next words.
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("could not get token ID for '%s': %w", word, err)
	}

	rows, err := s.stmtGetSuccessors.QueryContext(ctx, corpus.Id, tokenID)
	if err != nil {
		return nil, 0, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var successors []Successor
	var total int
	for rows.Next() {
		var succ Successor
		if err = rows.Scan(&succ.Word, &succ.Count); err != nil {
			return nil, 0, err
		}
		successors = append(successors, succ)
		total += succ.Count
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}
	if total <= 0 {
		return nil, 0, nil
	}

	for i := range successors {
		successors[i].Probability = float64(successors[i].Count) / float64(total)
	}
	sortSuccessors(successors)
	return successors, total, nil
}

// NextWords returns the next-word distribution for word in corpus, with the
// same contract as Model.NextWords.
func (s *Store) NextWords(ctx context.Context, corpus CorpusInfo, word string) (map[string]float64, error) {
	successors, _, err := s.GetSuccessors(ctx, corpus, word)
	if err != nil {
		return nil, err
	}
	dist := make(map[string]float64, len(successors))
	for _, succ := range successors {
		dist[succ.Word] = succ.Probability
	}
	return dist, nil
}

// Load reads the tables of corpus into an in-memory Model.
func (s *Store) Load(ctx context.Context, corpus CorpusInfo) (*Model, error) {
	var tokens int
	err := s.db.QueryRowContext(ctx, "SELECT token_count FROM bigram_corpora WHERE corpus_id = ?", corpus.Id).Scan(&tokens)
	if err != nil {
		return nil, fmt.Errorf("could not read corpus %d: %w", corpus.Id, err)
	}
	words, err := s.loadWords(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("could not load words for corpus %d: %w", corpus.Id, err)
	}
	pairs, err := s.loadPairs(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("could not load bigrams for corpus %d: %w", corpus.Id, err)
	}
	return newModelFromCounts(tokens, words, pairs), nil
}

// Generate extends seed word by word using the stored counts of corpus. It
// accepts the same options as Model.Generate.
func (s *Store) Generate(ctx context.Context, corpus CorpusInfo, seed string, opts ...GenerateOption) ([]string, error) {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	src := storeSource{ctx: ctx, store: s, corpus: corpus}
	out, err := generateFrom(src, Tokenize(seed), options)
	if err != nil {
		return nil, fmt.Errorf("generation failed after %d tokens: %w", len(out), err)
	}
	return out, nil
}

// GenerateString joins the result of Generate with single spaces.
func (s *Store) GenerateString(ctx context.Context, corpus CorpusInfo, seed string, opts ...GenerateOption) (string, error) {
	out, err := s.Generate(ctx, corpus, seed, opts...)
	if err != nil {
		return "", err
	}
	return strings.Join(out, " "), nil
}

type storeSource struct {
	ctx    context.Context
	store  *Store
	corpus CorpusInfo
}

func (src storeSource) successorsOf(word string) ([]Successor, error) {
	successors, _, err := src.store.GetSuccessors(src.ctx, src.corpus, word)
	return successors, err
}

func (s *Store) loadWords(ctx context.Context, corpus CorpusInfo) (map[string]int, error) {
	rows, err := s.stmtGetWords.QueryContext(ctx, corpus.Id)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	words := make(map[string]int)
	for rows.Next() {
		var text string
		var freq int
		if err = rows.Scan(&text, &freq); err != nil {
			return nil, err
		}
		words[text] = freq
	}
	return words, rows.Err()
}

func (s *Store) loadPairs(ctx context.Context, corpus CorpusInfo) (map[Bigram]int, error) {
	rows, err := s.stmtGetPairs.QueryContext(ctx, corpus.Id)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	pairs := make(map[Bigram]int)
	for rows.Next() {
		var b Bigram
		var freq int
		if err = rows.Scan(&b.First, &b.Second, &freq); err != nil {
			return nil, err
		}
		pairs[b] = freq
	}
	return pairs, rows.Err()
}
