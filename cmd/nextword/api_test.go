package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CTAG07/nextword/internal/config"
	"github.com/CTAG07/nextword/pkg/bigram"
)

// setupTestAPI returns the API handler over a fresh store.
func setupTestAPI(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	store := setupTestStore(t)
	return NewAPI(store, apiKey, config.Default().Generate, discardLogger()).Handler()
}

func doRequest(t *testing.T, h http.Handler, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rr.Body.String())
	}
}

// setupTrainedAPI creates the "lesson" corpus and trains it on lessonCorpus.
func setupTrainedAPI(t *testing.T) http.Handler {
	t.Helper()
	h := setupTestAPI(t, "")
	rr := doRequest(t, h, http.MethodPost, "/api/corpora", strings.NewReader(`{"name":"lesson"}`), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create corpus status = %d, body %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, h, http.MethodPost, "/api/corpora/lesson/train", strings.NewReader(lessonCorpus), nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("train status = %d, body %s", rr.Code, rr.Body.String())
	}
	return h
}

func TestAPIAuthentication(t *testing.T) {
	h := setupTestAPI(t, "secret")

	testCases := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"health is open", "/api/health", nil, http.StatusOK},
		{"missing key", "/api/corpora", nil, http.StatusUnauthorized},
		{"wrong key", "/api/corpora", map[string]string{authHeader: "guess"}, http.StatusUnauthorized},
		{"right key", "/api/corpora", map[string]string{authHeader: "secret"}, http.StatusOK},
		{"right key on stats", "/api/stats", map[string]string{authHeader: "secret"}, http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodGet, tc.path, nil, tc.headers)
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestAPICreateCorpus(t *testing.T) {
	h := setupTestAPI(t, "")

	rr := doRequest(t, h, http.MethodPost, "/api/corpora", strings.NewReader(`{"name":"lesson"}`), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	var info bigram.CorpusInfo
	decodeJSON(t, rr, &info)
	if info.Name != "lesson" || info.Id == 0 {
		t.Errorf("created corpus = %+v", info)
	}

	rr = doRequest(t, h, http.MethodPost, "/api/corpora", strings.NewReader(`{"name":"lesson"}`), nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/api/corpora", strings.NewReader(`{"name":""}`), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/api/corpora", strings.NewReader(`not json`), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPut, "/api/corpora", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "GET, POST" {
		t.Errorf("PUT status = %d, Allow %q", rr.Code, rr.Header().Get("Allow"))
	}

	rr = doRequest(t, h, http.MethodGet, "/api/corpora", nil, nil)
	var infos []bigram.CorpusInfo
	decodeJSON(t, rr, &infos)
	if len(infos) != 1 || infos[0].Name != "lesson" {
		t.Errorf("listed corpora = %+v", infos)
	}
}

func TestAPITrainReturnsStats(t *testing.T) {
	h := setupTestAPI(t, "")
	doRequest(t, h, http.MethodPost, "/api/corpora", strings.NewReader(`{"name":"web"}`), nil)

	page := "<html><body><script>ignored()</script><p>The cat sat.</p><p>The cat ran.</p></body></html>"
	rr := doRequest(t, h, http.MethodPost, "/api/corpora/web/train", strings.NewReader(page),
		map[string]string{"Content-Type": "text/html; charset=utf-8"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var stats bigram.CorpusStats
	decodeJSON(t, rr, &stats)
	if stats.Tokens != 6 || stats.Documents != 1 || stats.TotalBigrams != 5 {
		t.Errorf("stats after HTML training = %+v", stats)
	}
}

func TestAPINextWords(t *testing.T) {
	h := setupTrainedAPI(t)

	rr := doRequest(t, h, http.MethodGet, "/api/corpora/lesson/next?word=The", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var d distribution
	decodeJSON(t, rr, &d)
	if d.Word != "the" || d.Total != 6 || len(d.Successors) != 5 {
		t.Fatalf("distribution = %+v", d)
	}
	sum := 0.0
	for _, s := range d.Successors {
		sum += s.Probability
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v", sum)
	}
	if d.Successors[0].Word != "cat" || math.Abs(d.Successors[0].Probability-1.0/3.0) > 1e-9 {
		t.Errorf("first successor = %+v, want cat with 1/3", d.Successors[0])
	}

	rr = doRequest(t, h, http.MethodGet, "/api/corpora/lesson/next?word=elephant", nil, nil)
	decodeJSON(t, rr, &d)
	if rr.Code != http.StatusOK || d.Total != 0 || len(d.Successors) != 0 {
		t.Errorf("unknown word: status %d, distribution %+v", rr.Code, d)
	}
	if !strings.Contains(rr.Body.String(), `"successors":[]`) {
		t.Errorf("empty distribution should encode as an empty list: %s", rr.Body.String())
	}

	rr = doRequest(t, h, http.MethodGet, "/api/corpora/lesson/next", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing word status = %d, want 400", rr.Code)
	}
	rr = doRequest(t, h, http.MethodGet, "/api/corpora/nope/next?word=the", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown corpus status = %d, want 404", rr.Code)
	}
	rr = doRequest(t, h, http.MethodGet, "/api/corpora/lesson/bogus", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", rr.Code)
	}
}

func TestAPIGenerate(t *testing.T) {
	h := setupTrainedAPI(t)

	rr := doRequest(t, h, http.MethodGet, "/api/corpora/lesson/generate?seed=the&max_length=4&temperature=0", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var g generated
	decodeJSON(t, rr, &g)
	if g.Text != "the cat ran up" || len(g.Tokens) != 4 {
		t.Errorf("generated = %+v", g)
	}

	for _, target := range []string{
		"/api/corpora/lesson/generate",
		"/api/corpora/lesson/generate?seed=the&max_length=0",
		"/api/corpora/lesson/generate?seed=the&temperature=hot",
		"/api/corpora/lesson/generate?seed=the&top_k=-1",
	} {
		if rr = doRequest(t, h, http.MethodGet, target, nil, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", target, rr.Code)
		}
	}
}

func TestAPIPrune(t *testing.T) {
	h := setupTrainedAPI(t)

	rr := doRequest(t, h, http.MethodPost, "/api/corpora/lesson/prune", strings.NewReader(`{"min_freq":1}`), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp PruneResponse
	decodeJSON(t, rr, &resp)
	if resp.Removed != 14 {
		t.Errorf("removed = %d, want 14", resp.Removed)
	}

	rr = doRequest(t, h, http.MethodGet, "/api/corpora/lesson/next?word=the", nil, nil)
	var d distribution
	decodeJSON(t, rr, &d)
	if len(d.Successors) != 1 || d.Successors[0].Word != "cat" || d.Successors[0].Probability != 1 {
		t.Errorf("distribution after prune = %+v", d)
	}

	rr = doRequest(t, h, http.MethodGet, "/api/corpora/lesson/prune", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != http.MethodPost {
		t.Errorf("GET prune status = %d", rr.Code)
	}
}

func TestAPIExportDeleteImport(t *testing.T) {
	h := setupTrainedAPI(t)

	rr := doRequest(t, h, http.MethodGet, "/api/corpora/lesson/export", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "lesson.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := rr.Body.Bytes()

	rr = doRequest(t, h, http.MethodDelete, "/api/corpora/lesson", nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/api/vocabulary/prune", nil, nil)
	var resp PruneResponse
	decodeJSON(t, rr, &resp)
	if resp.Removed != 11 {
		t.Errorf("vocabulary entries removed = %d, want 11", resp.Removed)
	}

	rr = doRequest(t, h, http.MethodPost, "/api/import", bytes.NewReader(exported), nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("import status = %d, body %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, h, http.MethodGet, "/api/corpora/lesson/export", nil, nil)
	if !bytes.Equal(rr.Body.Bytes(), exported) {
		t.Errorf("re-export differs from the original:\n%s\n---\n%s", exported, rr.Body.Bytes())
	}

	rr = doRequest(t, h, http.MethodPost, "/api/import", strings.NewReader(`{"name":""}`), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("import of a nameless corpus status = %d, want 400", rr.Code)
	}
	rr = doRequest(t, h, http.MethodPost, "/api/import",
		strings.NewReader(`{"name":"zero","bigrams":[{"first":"a","second":"b","frequency":0}]}`), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("import with a zero frequency status = %d, want 400", rr.Code)
	}
}

func TestAPIStats(t *testing.T) {
	h := setupTrainedAPI(t)

	rr := doRequest(t, h, http.MethodGet, "/api/stats", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var stats bigram.DBStats
	decodeJSON(t, rr, &stats)
	if len(stats.Corpora) != 1 || stats.VocabSize != 11 {
		t.Fatalf("stats = %+v", stats)
	}
	cs := stats.Stats[stats.Corpora[0].Id]
	if cs.Tokens != 17 || cs.TotalBigrams != 16 || cs.UniqueBigrams != 15 {
		t.Errorf("corpus stats = %+v", cs)
	}
}

func TestAPITrainBodyTooLarge(t *testing.T) {
	h := setupTestAPI(t, "")
	doRequest(t, h, http.MethodPost, "/api/corpora", strings.NewReader(`{"name":"big"}`), nil)

	limit := maxTrainBytes
	maxTrainBytes = 16
	t.Cleanup(func() { maxTrainBytes = limit })

	testCases := map[string]map[string]string{
		"plain text": nil,
		"html":       {"Content-Type": "text/html"},
	}
	for name, headers := range testCases {
		t.Run(name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodPost, "/api/corpora/big/train", strings.NewReader(lessonCorpus), headers)
			if rr.Code != http.StatusRequestEntityTooLarge {
				t.Errorf("status = %d, want 413, body %s", rr.Code, rr.Body.String())
			}
		})
	}

	rr := doRequest(t, h, http.MethodGet, "/api/stats", nil, nil)
	var stats bigram.DBStats
	decodeJSON(t, rr, &stats)
	if cs := stats.Stats[stats.Corpora[0].Id]; cs.Tokens != 0 {
		t.Errorf("an oversized body was partially trained: %+v", cs)
	}
}

func TestAPIRejectsExtraPathSegments(t *testing.T) {
	h := setupTrainedAPI(t)

	for _, target := range []string{
		"/api/corpora/lesson/next/anything?word=the",
		"/api/corpora/lesson/export/extra",
		"/api/corpora/lesson/generate/x/y?seed=the",
	} {
		if rr := doRequest(t, h, http.MethodGet, target, nil, nil); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, rr.Code)
		}
	}
}
