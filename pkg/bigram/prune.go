package bigram

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// PruneCorpus removes every bigram of corpus whose frequency is less than or
// equal to minFreq. Word counts and totals are left untouched, so after a
// prune the bigram counts no longer add up to Tokens - Documents.
func (s *Store) PruneCorpus(ctx context.Context, corpus CorpusInfo, minFreq int) (int64, error) {
	res, err := s.stmtPruneCorpus.ExecContext(ctx, corpus.Id, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune corpus %d: %w", corpus.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Corpus pruned",
		slog.String("corpus_name", corpus.Name),
		slog.Int("corpus_id", corpus.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("bigrams_removed", rowsAffected),
	)
	return rowsAffected, nil
}

// VocabularyPrune removes vocabulary entries that no corpus references any
// more, which happens after RemoveCorpus. It returns the number of entries
// removed.
func (s *Store) VocabularyPrune(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction for pruning: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	res, err := tx.ExecContext(ctx, `
DELETE FROM bigram_vocabulary
WHERE token_id NOT IN (SELECT token_id FROM bigram_words)
  AND token_id NOT IN (SELECT first_id FROM bigram_pairs)
  AND token_id NOT IN (SELECT second_id FROM bigram_pairs);`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune vocabulary: %w", err)
	}
	removed, _ := res.RowsAffected()

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Vocabulary pruned",
		slog.Int64("tokens_removed", removed),
	)
	return removed, nil
}
