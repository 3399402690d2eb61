package bigram

import (
	"context"
)

// DBStats holds aggregated statistics for the entire store.
type DBStats struct {
	Corpora   []CorpusInfo        `json:"corpora" yaml:"corpora"`
	Stats     map[int]CorpusStats `json:"stats" yaml:"stats"`           // A mapping of corpus ids to their stats
	VocabSize int                 `json:"vocab_size" yaml:"vocab_size"` // The number of unique tokens across all corpora
}

// CorpusStats holds aggregated statistics for a single corpus.
type CorpusStats struct {
	Tokens        int `json:"tokens" yaml:"tokens"`                 // Total tokens trained.
	Documents     int `json:"documents" yaml:"documents"`           // Non-empty documents trained.
	UniqueWords   int `json:"unique_words" yaml:"unique_words"`     // Rows in the word frequency table.
	UniqueBigrams int `json:"unique_bigrams" yaml:"unique_bigrams"` // Rows in the bigram frequency table.
	TotalBigrams  int `json:"total_bigrams" yaml:"total_bigrams"`   // Sum of all bigram counts.
}

// GetCorpusStats returns the statistics of a single corpus.
func (s *Store) GetCorpusStats(ctx context.Context, corpus CorpusInfo) (CorpusStats, error) {
	var cs CorpusStats
	err := s.stmtCorpusStats.QueryRowContext(ctx, corpus.Id).Scan(
		&cs.Tokens, &cs.Documents, &cs.UniqueWords, &cs.UniqueBigrams, &cs.TotalBigrams)
	return cs, err
}

// GetStats returns a snapshot of statistics for the entire store.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	corpora, err := s.GetCorpusInfos(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	if err = s.stmtGetVocabLen.QueryRowContext(ctx).Scan(&vocabLen); err != nil {
		return nil, err
	}

	stats := make(map[int]CorpusStats, len(corpora))
	for _, c := range corpora {
		cs, err := s.GetCorpusStats(ctx, c)
		if err != nil {
			return nil, err
		}
		stats[c.Id] = cs
	}

	return &DBStats{
		Corpora:   corpora,
		Stats:     stats,
		VocabSize: vocabLen,
	}, nil
}
