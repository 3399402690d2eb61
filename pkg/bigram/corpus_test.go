package bigram

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestInsertAndGetCorpusInfo(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertCorpus(ctx, "lesson")
	if err != nil {
		t.Fatalf("InsertCorpus() failed: %v", err)
	}

	c, err := s.GetCorpusInfo(ctx, "lesson")
	if err != nil {
		t.Errorf("GetCorpusInfo: expected no error, got %v", err)
	}
	if c != inserted {
		t.Errorf("got corpus %+v, want %+v", c, inserted)
	}

	_, err = s.GetCorpusInfo(ctx, "nonexistent")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for nonexistent corpus, got %v", err)
	}

	if _, err = s.InsertCorpus(ctx, "lesson"); err == nil {
		t.Error("expected an error when inserting a duplicate corpus name, but got nil")
	}

	ensured, err := s.EnsureCorpus(ctx, "lesson")
	if err != nil || ensured != inserted {
		t.Errorf("EnsureCorpus(existing) = %+v, %v; want %+v", ensured, err, inserted)
	}
	fresh, err := s.EnsureCorpus(ctx, "fresh")
	if err != nil || fresh.Name != "fresh" || fresh.Id == inserted.Id {
		t.Errorf("EnsureCorpus(new) = %+v, %v", fresh, err)
	}
}

func TestGetCorpusInfos(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	_, _ = s.InsertCorpus(ctx, "zeta")
	_, _ = s.InsertCorpus(ctx, "alpha")

	corpora, err := s.GetCorpusInfos(ctx)
	if err != nil {
		t.Fatalf("GetCorpusInfos failed: %v", err)
	}
	if len(corpora) != 2 {
		t.Fatalf("expected 2 corpora, got %d", len(corpora))
	}
	if corpora[0].Name != "alpha" || corpora[1].Name != "zeta" {
		t.Errorf("expected corpora ordered by name, got %+v", corpora)
	}
}

func TestRemoveCorpus(t *testing.T) {
	db, s := setupTestStore(t)
	ctx := context.Background()

	c1, _ := s.InsertCorpus(ctx, "to_delete")
	c2, _ := s.InsertCorpus(ctx, "to_keep")
	_ = s.TrainString(ctx, c1, "delete this data")
	_ = s.TrainString(ctx, c2, "keep this data")

	if err := s.RemoveCorpus(ctx, c1); err != nil {
		t.Fatalf("RemoveCorpus failed: %v", err)
	}

	if _, err := s.GetCorpusInfo(ctx, c1.Name); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for deleted corpus, got %v", err)
	}

	var count int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bigram_pairs WHERE corpus_id = ?", c1.Id).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 bigrams for deleted corpus, found %d", count)
	}
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bigram_words WHERE corpus_id = ?", c1.Id).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 words for deleted corpus, found %d", count)
	}

	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bigram_pairs WHERE corpus_id = ?", c2.Id).Scan(&count)
	if count == 0 {
		t.Error("expected bigrams for kept corpus to exist, but found 0")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx, s, corpus := setupTrainedStore(t)

	var buf bytes.Buffer
	if err := s.ExportCorpus(ctx, corpus, &buf); err != nil {
		t.Fatalf("ExportCorpus failed: %v", err)
	}
	exported := buf.String()

	_, s2 := setupTestStore(t)
	imported, err := s2.ImportCorpus(ctx, strings.NewReader(exported))
	if err != nil {
		t.Fatalf("ImportCorpus failed: %v", err)
	}
	if imported.Name != corpus.Name {
		t.Errorf("imported corpus name = %q, want %q", imported.Name, corpus.Name)
	}

	original, _ := s.Load(ctx, corpus)
	restored, err := s2.Load(ctx, imported)
	if err != nil {
		t.Fatalf("Load of imported corpus failed: %v", err)
	}
	if !reflect.DeepEqual(original.WordCounts(), restored.WordCounts()) {
		t.Error("word counts differ after export/import")
	}
	if !reflect.DeepEqual(original.BigramCounts(), restored.BigramCounts()) {
		t.Error("bigram counts differ after export/import")
	}
	if original.Tokens() != restored.Tokens() {
		t.Errorf("tokens = %d after import, want %d", restored.Tokens(), original.Tokens())
	}

	// Exports of equal corpora are byte-identical.
	var again bytes.Buffer
	if err := s2.ExportCorpus(ctx, imported, &again); err != nil {
		t.Fatalf("second ExportCorpus failed: %v", err)
	}
	if again.String() != exported {
		t.Error("re-export of the imported corpus differs from the original export")
	}
}

func TestImportMergesCounts(t *testing.T) {
	ctx, s, corpus := setupTrainedStore(t)

	var buf bytes.Buffer
	if err := s.ExportCorpus(ctx, corpus, &buf); err != nil {
		t.Fatalf("ExportCorpus failed: %v", err)
	}
	if _, err := s.ImportCorpus(ctx, &buf); err != nil {
		t.Fatalf("ImportCorpus failed: %v", err)
	}

	m, _ := s.Load(ctx, corpus)
	if got := m.WordCount("the"); got != 12 {
		t.Errorf("expected merged count 12 for 'the', got %d", got)
	}
	if got := m.BigramCount("the", "cat"); got != 4 {
		t.Errorf("expected merged count 4 for (the, cat), got %d", got)
	}
	stats, _ := s.GetCorpusStats(ctx, corpus)
	if stats.Tokens != 34 || stats.Documents != 2 {
		t.Errorf("expected 34 tokens in 2 documents after merge, got %+v", stats)
	}
}

func TestImportRejectsBadInput(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.ImportCorpus(ctx, strings.NewReader("{not json")); err == nil {
		t.Error("expected an error for malformed JSON")
	}
	if _, err := s.ImportCorpus(ctx, strings.NewReader(`{"words":{"a":1}}`)); err == nil {
		t.Error("expected an error for a corpus without a name")
	}

	testCases := []struct {
		name  string
		input string
	}{
		{"zero bigram frequency", `{"name":"bad","bigrams":[{"first":"a","second":"b","frequency":0}]}`},
		{"negative bigram frequency", `{"name":"bad","bigrams":[{"first":"a","second":"b","frequency":-1},{"first":"a","second":"c","frequency":3}]}`},
		{"zero word frequency", `{"name":"bad","words":{"a":0}}`},
		{"negative word frequency", `{"name":"bad","words":{"a":-2}}`},
		{"negative tokens", `{"name":"bad","tokens":-1}`},
		{"negative documents", `{"name":"bad","documents":-1}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.ImportCorpus(ctx, strings.NewReader(tc.input)); err == nil {
				t.Fatal("expected an error for non-positive counts")
			}
		})
	}

	// Nothing from the rejected imports may reach the store.
	if _, err := s.GetCorpusInfo(ctx, "bad"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("rejected import created a corpus, GetCorpusInfo error = %v", err)
	}
	corpus, err := s.InsertCorpus(ctx, "bad")
	if err != nil {
		t.Fatal(err)
	}
	dist, err := s.NextWords(ctx, corpus, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(dist) != 0 {
		t.Errorf("expected an empty distribution after rejected imports, got %v", dist)
	}
}

func TestImportCreatesCorpusWithID(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	info, err := s.ImportCorpus(ctx, strings.NewReader(`{"name":"fresh","tokens":2,"documents":1,"words":{"a":1,"b":1},"bigrams":[{"first":"a","second":"b","frequency":1}]}`))
	if err != nil {
		t.Fatalf("ImportCorpus failed: %v", err)
	}
	stored, err := s.GetCorpusInfo(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if info != stored || info.Id == 0 {
		t.Errorf("ImportCorpus returned %+v, store has %+v", info, stored)
	}
}
