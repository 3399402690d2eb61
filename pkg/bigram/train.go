package bigram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// pairKey is a bigram by vocabulary id, used while batching counts.
type pairKey struct {
	first  int
	second int
}

// tableWriter accumulates count increments for one corpus inside a
// transaction. Word and pair rows are upserted so repeated writes add up.
type tableWriter struct {
	ctx             context.Context
	tx              *sql.Tx
	corpusID        int
	stmtInsertVocab *sql.Stmt
	stmtAddWord     *sql.Stmt
	stmtAddPair     *sql.Stmt
	stmtAddTotals   *sql.Stmt
	ids             map[string]int
}

func newTableWriter(ctx context.Context, tx *sql.Tx, insertVocab *sql.Stmt, corpusID int) *tableWriter {
	return &tableWriter{
		ctx:             ctx,
		tx:              tx,
		corpusID:        corpusID,
		stmtInsertVocab: tx.StmtContext(ctx, insertVocab),
		ids:             make(map[string]int),
	}
}

func (w *tableWriter) prepare() error {
	var err error
	w.stmtAddWord, err = w.tx.PrepareContext(w.ctx, `
		INSERT INTO bigram_words (corpus_id, token_id, frequency) VALUES (?, ?, ?)
		ON CONFLICT(corpus_id, token_id) DO UPDATE SET frequency = frequency + excluded.frequency;`)
	if err != nil {
		return fmt.Errorf("failed to prepare word insert statement: %w", err)
	}
	w.stmtAddPair, err = w.tx.PrepareContext(w.ctx, `
		INSERT INTO bigram_pairs (corpus_id, first_id, second_id, frequency) VALUES (?, ?, ?, ?)
		ON CONFLICT(corpus_id, first_id, second_id) DO UPDATE SET frequency = frequency + excluded.frequency;`)
	if err != nil {
		return fmt.Errorf("failed to prepare bigram insert statement: %w", err)
	}
	w.stmtAddTotals, err = w.tx.PrepareContext(w.ctx, `
		UPDATE bigram_corpora SET token_count = token_count + ?, document_count = document_count + ?
		WHERE corpus_id = ?;`)
	if err != nil {
		return fmt.Errorf("failed to prepare totals update statement: %w", err)
	}
	return nil
}

// close releases the transaction-scoped statements. Commit or Rollback would
// close them as well.
func (w *tableWriter) close() {
	for _, stmt := range []*sql.Stmt{w.stmtAddWord, w.stmtAddPair, w.stmtAddTotals} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// tokenID returns the vocabulary id of text, inserting it when new.
func (w *tableWriter) tokenID(text string) (int, error) {
	if id, ok := w.ids[text]; ok {
		return id, nil
	}
	var id int
	if err := w.stmtInsertVocab.QueryRowContext(w.ctx, text).Scan(&id); err != nil {
		return 0, fmt.Errorf("sql insert vocabulary error for token '%s': %w", text, err)
	}
	w.ids[text] = id
	return id, nil
}

func (w *tableWriter) addWordID(id, freq int) error {
	if _, err := w.stmtAddWord.ExecContext(w.ctx, w.corpusID, id, freq); err != nil {
		return fmt.Errorf("failed to add word %d: %w", id, err)
	}
	return nil
}

func (w *tableWriter) addPairID(first, second, freq int) error {
	if _, err := w.stmtAddPair.ExecContext(w.ctx, w.corpusID, first, second, freq); err != nil {
		return fmt.Errorf("failed to add bigram (%d -> %d): %w", first, second, err)
	}
	return nil
}

func (w *tableWriter) addWord(text string, freq int) error {
	id, err := w.tokenID(text)
	if err != nil {
		return err
	}
	return w.addWordID(id, freq)
}

func (w *tableWriter) addPair(first, second string, freq int) error {
	firstID, err := w.tokenID(first)
	if err != nil {
		return err
	}
	secondID, err := w.tokenID(second)
	if err != nil {
		return err
	}
	return w.addPairID(firstID, secondID, freq)
}

func (w *tableWriter) addTotals(tokens, documents int) error {
	res, err := w.stmtAddTotals.ExecContext(w.ctx, tokens, documents, w.corpusID)
	if err != nil {
		return fmt.Errorf("failed to update totals for corpus %d: %w", w.corpusID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update totals for corpus %d: %w", w.corpusID, err)
	}
	if n == 0 {
		return fmt.Errorf("corpus %d does not exist: %w", w.corpusID, sql.ErrNoRows)
	}
	return nil
}

// Train tokenizes data and adds its word and bigram counts to corpus. Each
// call is one document: a bigram never spans the end of one call and the
// start of the next. The whole call runs in a single transaction.
func (s *Store) Train(ctx context.Context, corpus CorpusInfo, data io.Reader) error {
	// tokenBatchSize determines how many tokens are aggregated in memory before
	// the counts are written to the database.
	const tokenBatchSize = 10000

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	w := newTableWriter(ctx, tx, s.stmtInsertVocab, corpus.Id)
	defer w.close()
	if err = w.prepare(); err != nil {
		return err
	}

	wordBatch := make(map[int]int)
	pairBatch := make(map[pairKey]int)
	pending := 0

	flush := func() error {
		for id, freq := range wordBatch {
			if err := w.addWordID(id, freq); err != nil {
				return err
			}
		}
		for p, freq := range pairBatch {
			if err := w.addPairID(p.first, p.second, freq); err != nil {
				return err
			}
		}
		clear(wordBatch)
		clear(pairBatch)
		pending = 0
		return nil
	}

	stream := s.tokenizer.NewStream(data)
	var tokens int
	prevID := -1

	for {
		text, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("tokenizer error: %w", err)
		}

		id, err := w.tokenID(text)
		if err != nil {
			return err
		}
		wordBatch[id]++
		if prevID >= 0 {
			pairBatch[pairKey{first: prevID, second: id}]++
		}
		prevID = id
		tokens++
		pending++

		if pending >= tokenBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err = flush(); err != nil {
		return err
	}

	documents := 0
	if tokens > 0 {
		documents = 1
	}
	if err = w.addTotals(tokens, documents); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Training completed",
		slog.String("corpus_name", corpus.Name),
		slog.Int("corpus_id", corpus.Id),
		slog.Int("tokens_processed", tokens),
		slog.Int("vocabulary_seen", len(w.ids)),
	)

	return tx.Commit()
}

// TrainString is a convenience wrapper around Train for in-memory text.
func (s *Store) TrainString(ctx context.Context, corpus CorpusInfo, text string) error {
	return s.Train(ctx, corpus, strings.NewReader(text))
}
