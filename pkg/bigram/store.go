package bigram

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the tables used by a Store in the provided
// database. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS bigram_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_text TEXT NOT NULL UNIQUE
);
`
		schemaCorpora = `
CREATE TABLE IF NOT EXISTS bigram_corpora (
    corpus_id INTEGER PRIMARY KEY,
    corpus_name TEXT NOT NULL UNIQUE,
    token_count INTEGER NOT NULL DEFAULT 0,
    document_count INTEGER NOT NULL DEFAULT 0
);
`
		schemaWords = `
CREATE TABLE IF NOT EXISTS bigram_words (
    corpus_id INTEGER NOT NULL,
    token_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (corpus_id, token_id)
);
`
		schemaPairs = `
CREATE TABLE IF NOT EXISTS bigram_pairs (
    corpus_id INTEGER NOT NULL,
    first_id INTEGER NOT NULL,
    second_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (corpus_id, first_id, second_id)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaVocab); err != nil {
		return fmt.Errorf("could not create vocabulary schema: %w", err)
	}
	if _, err = tx.Exec(schemaCorpora); err != nil {
		return fmt.Errorf("could not create corpora schema: %w", err)
	}
	if _, err = tx.Exec(schemaWords); err != nil {
		return fmt.Errorf("could not create words schema: %w", err)
	}
	if _, err = tx.Exec(schemaPairs); err != nil {
		return fmt.Errorf("could not create pairs schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store persists the frequency tables of named corpora in SQLite. It holds
// the database connection, a tokenizer, and prepared statements.
type Store struct {
	db                *sql.DB
	tokenizer         Tokenizer
	stmtGetCorpusInfo *sql.Stmt
	stmtGetCorpora    *sql.Stmt
	stmtAddCorpus     *sql.Stmt
	stmtGetTokenID    *sql.Stmt
	stmtInsertVocab   *sql.Stmt
	stmtGetSuccessors *sql.Stmt
	stmtGetWords      *sql.Stmt
	stmtGetPairs      *sql.Stmt
	stmtPruneCorpus   *sql.Stmt
	stmtCorpusStats   *sql.Stmt
	stmtGetVocabLen   *sql.Stmt
	logger            *slog.Logger
}

// NewStore creates a Store over db, which must already have the schema from
// SetupSchema. A nil tokenizer selects NewWhitespaceTokenizer().
func NewStore(db *sql.DB, tokenizer Tokenizer) (*Store, error) {
	if tokenizer == nil {
		tokenizer = NewWhitespaceTokenizer()
	}
	s := &Store{
		db:        db,
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetCorpusInfo, `SELECT corpus_id FROM bigram_corpora WHERE corpus_name = ?;`},
		{&s.stmtGetCorpora, `SELECT corpus_id, corpus_name FROM bigram_corpora ORDER BY corpus_name;`},
		{&s.stmtAddCorpus, `INSERT INTO bigram_corpora (corpus_name) VALUES (?);`},
		{&s.stmtGetTokenID, `SELECT token_id FROM bigram_vocabulary WHERE token_text = ?;`},
		{&s.stmtInsertVocab, `INSERT INTO bigram_vocabulary (token_text) VALUES (?) ON CONFLICT(token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`},
		{&s.stmtGetSuccessors, `
SELECT v.token_text, p.frequency FROM bigram_pairs p
JOIN bigram_vocabulary v ON v.token_id = p.second_id
WHERE p.corpus_id = ? AND p.first_id = ?;`},
		{&s.stmtGetWords, `
SELECT v.token_text, w.frequency FROM bigram_words w
JOIN bigram_vocabulary v ON v.token_id = w.token_id
WHERE w.corpus_id = ?;`},
		{&s.stmtGetPairs, `
SELECT a.token_text, b.token_text, p.frequency FROM bigram_pairs p
JOIN bigram_vocabulary a ON a.token_id = p.first_id
JOIN bigram_vocabulary b ON b.token_id = p.second_id
WHERE p.corpus_id = ?;`},
		{&s.stmtPruneCorpus, `DELETE FROM bigram_pairs WHERE corpus_id = ? AND frequency <= ?;`},
		{&s.stmtCorpusStats, `
SELECT c.token_count, c.document_count,
    (SELECT COUNT(*) FROM bigram_words w WHERE w.corpus_id = c.corpus_id),
    (SELECT COUNT(*) FROM bigram_pairs p WHERE p.corpus_id = c.corpus_id),
    (SELECT coalesce(SUM(p.frequency), 0) FROM bigram_pairs p WHERE p.corpus_id = c.corpus_id)
FROM bigram_corpora c WHERE c.corpus_id = ?;`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM bigram_vocabulary;`},
	}

	for _, st := range stmts {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*st.dst = stmt
	}
	return s, nil
}

// Close releases all prepared SQL statements held by the Store. The database
// itself is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetCorpusInfo,
		s.stmtGetCorpora,
		s.stmtAddCorpus,
		s.stmtGetTokenID,
		s.stmtInsertVocab,
		s.stmtGetSuccessors,
		s.stmtGetWords,
		s.stmtGetPairs,
		s.stmtPruneCorpus,
		s.stmtCorpusStats,
		s.stmtGetVocabLen,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
