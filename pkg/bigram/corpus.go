package bigram

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// CorpusInfo identifies a named corpus in a Store.
type CorpusInfo struct {
	Id   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ExportedCorpus is the serializable representation of a stored corpus,
// used for JSON-based import and export.
type ExportedCorpus struct {
	Name      string           `json:"name"`
	Tokens    int              `json:"tokens"`
	Documents int              `json:"documents"`
	Words     map[string]int   `json:"words"`
	Bigrams   []ExportedBigram `json:"bigrams"`
}

// ExportedBigram is a single bigram table entry within an ExportedCorpus.
type ExportedBigram struct {
	First     string `json:"first"`
	Second    string `json:"second"`
	Frequency int    `json:"frequency"`
}

// GetCorpusInfos retrieves all corpora in the store, ordered by name.
func (s *Store) GetCorpusInfos(ctx context.Context) ([]CorpusInfo, error) {
	rows, err := s.stmtGetCorpora.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var corpora []CorpusInfo
	for rows.Next() {
		var c CorpusInfo
		if err = rows.Scan(&c.Id, &c.Name); err != nil {
			return nil, err
		}
		corpora = append(corpora, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return corpora, nil
}

// GetCorpusInfo retrieves a single corpus by name. It returns sql.ErrNoRows
// if no such corpus exists.
func (s *Store) GetCorpusInfo(ctx context.Context, name string) (CorpusInfo, error) {
	var id int
	if err := s.stmtGetCorpusInfo.QueryRowContext(ctx, name).Scan(&id); err != nil {
		return CorpusInfo{}, err
	}
	return CorpusInfo{Id: id, Name: name}, nil
}

// InsertCorpus creates a new, empty corpus. Names are unique.
func (s *Store) InsertCorpus(ctx context.Context, name string) (CorpusInfo, error) {
	res, err := s.stmtAddCorpus.ExecContext(ctx, name)
	if err != nil {
		return CorpusInfo{}, fmt.Errorf("could not insert corpus '%s': %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CorpusInfo{}, err
	}
	return CorpusInfo{Id: int(id), Name: name}, nil
}

// EnsureCorpus returns the corpus with the given name, creating it first if
// it does not exist yet.
func (s *Store) EnsureCorpus(ctx context.Context, name string) (CorpusInfo, error) {
	info, err := s.GetCorpusInfo(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return s.InsertCorpus(ctx, name)
	}
	return info, err
}

// RemoveCorpus deletes a corpus and all of its counts. Vocabulary entries are
// shared between corpora and are left for VocabularyPrune.
func (s *Store) RemoveCorpus(ctx context.Context, corpus CorpusInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM bigram_pairs WHERE corpus_id = ?", corpus.Id); err != nil {
		return fmt.Errorf("failed to remove bigrams for corpus %d: %w", corpus.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM bigram_words WHERE corpus_id = ?", corpus.Id); err != nil {
		return fmt.Errorf("failed to remove words for corpus %d: %w", corpus.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM bigram_corpora WHERE corpus_id = ?", corpus.Id); err != nil {
		return fmt.Errorf("failed to remove corpus %d: %w", corpus.Id, err)
	}

	s.logger.InfoContext(ctx, "Corpus removed successfully",
		slog.String("corpus_name", corpus.Name),
		slog.Int("corpus_id", corpus.Id),
	)

	return tx.Commit()
}

// ExportCorpus serializes a corpus into indented JSON and writes it to w.
// Bigrams are written in a stable order so exports of equal corpora are
// byte-identical.
func (s *Store) ExportCorpus(ctx context.Context, corpus CorpusInfo, w io.Writer) error {
	var tokens, documents int
	err := s.db.QueryRowContext(ctx,
		"SELECT token_count, document_count FROM bigram_corpora WHERE corpus_id = ?", corpus.Id).
		Scan(&tokens, &documents)
	if err != nil {
		return fmt.Errorf("could not read corpus %d for export: %w", corpus.Id, err)
	}

	words, err := s.loadWords(ctx, corpus)
	if err != nil {
		return fmt.Errorf("could not query words for export: %w", err)
	}
	pairs, err := s.loadPairs(ctx, corpus)
	if err != nil {
		return fmt.Errorf("could not query bigrams for export: %w", err)
	}

	exported := ExportedCorpus{
		Name:      corpus.Name,
		Tokens:    tokens,
		Documents: documents,
		Words:     words,
		Bigrams:   make([]ExportedBigram, 0, len(pairs)),
	}
	for b, freq := range pairs {
		exported.Bigrams = append(exported.Bigrams, ExportedBigram{First: b.First, Second: b.Second, Frequency: freq})
	}
	sort.Slice(exported.Bigrams, func(i, j int) bool {
		a, b := exported.Bigrams[i], exported.Bigrams[j]
		if a.First != b.First {
			return a.First < b.First
		}
		return a.Second < b.Second
	})

	s.logger.InfoContext(ctx, "Corpus exported",
		slog.String("corpus_name", corpus.Name),
		slog.Int("corpus_id", corpus.Id),
		slog.Int("words_exported", len(exported.Words)),
		slog.Int("bigrams_exported", len(exported.Bigrams)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ImportCorpus reads a JSON corpus from r and merges it into the store. If a
// corpus with the same name exists its counts are added to; otherwise it is
// created. The whole import runs in one transaction.
func (s *Store) ImportCorpus(ctx context.Context, r io.Reader) (CorpusInfo, error) {
	var imported ExportedCorpus
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return CorpusInfo{}, fmt.Errorf("failed to decode json corpus: %w", err)
	}
	if err := validateImport(&imported); err != nil {
		return CorpusInfo{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CorpusInfo{}, fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var corpusID int
	err = tx.QueryRowContext(ctx, "SELECT corpus_id FROM bigram_corpora WHERE corpus_name = ?", imported.Name).Scan(&corpusID)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := tx.ExecContext(ctx, "INSERT INTO bigram_corpora (corpus_name) VALUES (?)", imported.Name)
		if err != nil {
			return CorpusInfo{}, fmt.Errorf("failed to insert new corpus '%s': %w", imported.Name, err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return CorpusInfo{}, fmt.Errorf("failed to get id of new corpus '%s': %w", imported.Name, err)
		}
		corpusID = int(newID)
	} else if err != nil {
		return CorpusInfo{}, fmt.Errorf("failed to query for corpus '%s': %w", imported.Name, err)
	}

	w := newTableWriter(ctx, tx, s.stmtInsertVocab, corpusID)
	defer w.close()
	if err = w.prepare(); err != nil {
		return CorpusInfo{}, err
	}

	for word, freq := range imported.Words {
		if err = w.addWord(word, freq); err != nil {
			return CorpusInfo{}, err
		}
	}
	for _, b := range imported.Bigrams {
		if err = w.addPair(b.First, b.Second, b.Frequency); err != nil {
			return CorpusInfo{}, err
		}
	}
	if err = w.addTotals(imported.Tokens, imported.Documents); err != nil {
		return CorpusInfo{}, err
	}

	s.logger.InfoContext(ctx, "Corpus imported successfully",
		slog.String("corpus_name", imported.Name),
		slog.Int("target_corpus_id", corpusID),
		slog.Int("words_merged", len(imported.Words)),
		slog.Int("bigrams_merged", len(imported.Bigrams)),
	)

	if err = tx.Commit(); err != nil {
		return CorpusInfo{}, err
	}
	return CorpusInfo{Id: corpusID, Name: imported.Name}, nil
}

// validateImport rejects exports that would leave counts of zero or less in
// the store.
func validateImport(imported *ExportedCorpus) error {
	if imported.Name == "" {
		return errors.New("imported corpus has no name")
	}
	if imported.Tokens < 0 || imported.Documents < 0 {
		return fmt.Errorf("imported corpus '%s' has negative totals", imported.Name)
	}
	for word, freq := range imported.Words {
		if freq <= 0 {
			return fmt.Errorf("word '%s' has non-positive frequency %d", word, freq)
		}
	}
	for _, b := range imported.Bigrams {
		if b.Frequency <= 0 {
			return fmt.Errorf("bigram ('%s', '%s') has non-positive frequency %d", b.First, b.Second, b.Frequency)
		}
	}
	return nil
}
