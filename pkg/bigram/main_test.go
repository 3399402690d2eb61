package bigram

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// lessonCorpus is the three-sentence corpus used throughout the tests.
const lessonCorpus = "The cat sat on the mat. The dog chased the cat. The cat ran up the tree."

// setupTestStore creates a new SQLite database file and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbFile+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db, NewWhitespaceTokenizer())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// setupTrainedStore is a convenience helper that also trains a corpus on
// lessonCorpus.
func setupTrainedStore(t *testing.T) (context.Context, *Store, CorpusInfo) {
	t.Helper()
	_, s := setupTestStore(t)
	ctx := context.Background()

	corpus, err := s.InsertCorpus(ctx, "lesson")
	if err != nil {
		t.Fatalf("setup: InsertCorpus() failed: %v", err)
	}
	if err := s.TrainString(ctx, corpus, lessonCorpus); err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return ctx, s, corpus
}

// setupTestStoreBench creates a database for benchmarking.
func setupTestStoreBench(b *testing.B) *Store {
	b.Helper()
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite", dbFile+"?_pragma=journal_mode(WAL)&_pragma=synchronous(OFF)")
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		b.Fatalf("failed to set up schema: %v", err)
	}
	s, err := NewStore(db, nil)
	if err != nil {
		b.Fatalf("NewStore() error = %v", err)
	}
	b.Cleanup(s.Close)
	return s
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = strings.Repeat(lessonCorpus+" ", 200)
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
