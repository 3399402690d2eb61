package main

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/nextword/internal/config"
	"github.com/CTAG07/nextword/internal/ingest"
	"github.com/CTAG07/nextword/pkg/bigram"
)

const authHeader = "nextword-auth"

// maxTrainBytes caps the size of a single training request body.
var maxTrainBytes int64 = 32 << 20

// API holds the dependencies of the HTTP API handlers.
type API struct {
	store    *bigram.Store
	generate *config.GenerateConfig
	keyHash  string
	logger   *slog.Logger
}

// NewAPI creates the HTTP API. An empty apiKey leaves every route open.
func NewAPI(store *bigram.Store, apiKey string, generate *config.GenerateConfig, logger *slog.Logger) *API {
	api := &API{
		store:    store,
		generate: generate,
		logger:   logger,
	}
	if apiKey != "" {
		api.keyHash = hashAPIKey(apiKey)
	}
	return api
}

// Handler returns the root handler: the health check is open, everything else
// under /api/ goes through Authenticate.
func (api *API) Handler() http.Handler {
	apiMux := http.NewServeMux()
	api.RegisterRoutes(apiMux)

	root := http.NewServeMux()
	root.HandleFunc("/api/health", api.handleHealth)
	root.Handle("/api/", api.Authenticate(apiMux))
	return root
}

// RegisterRoutes sets up the routing for the authenticated endpoints.
func (api *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/corpora", api.handleListAndCreateCorpora)
	mux.HandleFunc("/api/corpora/", api.handleCorpusByName)
	mux.HandleFunc("/api/import", api.handleImport)
	mux.HandleFunc("/api/vocabulary/prune", api.handleVocabPrune)
	mux.HandleFunc("/api/stats", api.handleStats)
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Authenticate rejects requests that do not carry the configured API key in
// the nextword-auth header.
func (api *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.keyHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(authHeader)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(hashAPIKey(apiKey)), []byte(api.keyHash)) != 1 {
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type CreateCorpusRequest struct {
	Name string `json:"name"`
}

type PruneRequest struct {
	MinFreq int `json:"min_freq"`
}

type PruneResponse struct {
	Removed int64 `json:"removed"`
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

// handleListAndCreateCorpora handles GET for listing and POST for creating corpora.
func (api *API) handleListAndCreateCorpora(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		corpora, err := api.store.GetCorpusInfos(r.Context())
		if err != nil {
			api.logger.Error("Failed to get corpus infos", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve corpora: %v", err))
			return
		}
		if corpora == nil {
			corpora = []bigram.CorpusInfo{}
		}
		respondWithJSON(w, http.StatusOK, corpora)

	case http.MethodPost:
		var req CreateCorpusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.Contains(req.Name, "/") {
			respondWithError(w, http.StatusBadRequest, "A corpus name without slashes is required")
			return
		}
		if _, err := api.store.GetCorpusInfo(r.Context(), req.Name); err == nil {
			respondWithError(w, http.StatusConflict, "Corpus already exists")
			return
		} else if !isNotFound(err) {
			api.logger.Error("Failed to check for existing corpus", "name", req.Name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
			return
		}

		info, err := api.store.InsertCorpus(r.Context(), req.Name)
		if err != nil {
			api.logger.Error("Failed to insert new corpus", "name", req.Name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create corpus: %v", err))
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleCorpusByName routes actions for a specific corpus, e.g., train, next, generate, prune, export, delete.
func (api *API) handleCorpusByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/corpora/")
	parts := strings.Split(path, "/")
	corpusName := parts[0]

	if corpusName == "" {
		respondWithError(w, http.StatusBadRequest, "Corpus name not specified")
		return
	}
	if len(parts) > 2 {
		respondWithError(w, http.StatusNotFound, "Action not found")
		return
	}

	corpus, err := api.store.GetCorpusInfo(r.Context(), corpusName)
	if err != nil {
		if isNotFound(err) {
			respondWithError(w, http.StatusNotFound, "Corpus not found")
			return
		}
		api.logger.Error("Failed to get corpus info by name", "name", corpusName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			w.Header().Set("Allow", "DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if err = api.store.RemoveCorpus(r.Context(), corpus); err != nil {
			api.logger.Error("Failed to remove corpus", "name", corpusName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove corpus: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch parts[1] {
	case "train":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		body := io.Reader(http.MaxBytesReader(w, r.Body, maxTrainBytes))
		if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "text/html" {
			text, err := ingest.HTMLText(body, nil)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Training body exceeds %d bytes", tooLarge.Limit))
					return
				}
				respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Could not read HTML body: %v", err))
				return
			}
			body = strings.NewReader(text)
		}
		if err = api.store.Train(r.Context(), corpus, body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Training body exceeds %d bytes", tooLarge.Limit))
				return
			}
			api.logger.Error("Failed to train corpus", "name", corpusName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Training failed: %v", err))
			return
		}
		stats, err := api.store.GetCorpusStats(r.Context(), corpus)
		if err != nil {
			api.logger.Error("Failed to get corpus stats", "name", corpusName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
			return
		}
		respondWithJSON(w, http.StatusAccepted, stats)

	case "next":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		word := strings.ToLower(r.URL.Query().Get("word"))
		if word == "" {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'word' is required")
			return
		}
		successors, _, err := api.store.GetSuccessors(r.Context(), corpus, word)
		if err != nil {
			api.logger.Error("Failed to query successors", "name", corpusName, "word", word, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, newDistribution(word, successors))

	case "generate":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		api.handleGenerate(w, r, corpus)

	case "prune":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req PruneRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		removed, err := api.store.PruneCorpus(r.Context(), corpus, req.MinFreq)
		if err != nil {
			api.logger.Error("Failed to prune corpus", "name", corpusName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, PruneResponse{Removed: removed})

	case "export":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", corpusName))
		if err = api.store.ExportCorpus(r.Context(), corpus, w); err != nil {
			api.logger.Error("Failed to export corpus", "name", corpusName, "error", err)
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

func (api *API) handleGenerate(w http.ResponseWriter, r *http.Request, corpus bigram.CorpusInfo) {
	query := r.URL.Query()
	seed := strings.ToLower(query.Get("seed"))
	if seed == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'seed' is required")
		return
	}

	maxLength, temperature, topK := api.generate.MaxLength, api.generate.Temperature, api.generate.TopK
	var err error
	if v := query.Get("max_length"); v != "" {
		if maxLength, err = strconv.Atoi(v); err != nil || maxLength <= 0 {
			respondWithError(w, http.StatusBadRequest, "max_length must be a positive integer")
			return
		}
	}
	if v := query.Get("temperature"); v != "" {
		if temperature, err = strconv.ParseFloat(v, 64); err != nil {
			respondWithError(w, http.StatusBadRequest, "temperature must be a number")
			return
		}
	}
	if v := query.Get("top_k"); v != "" {
		if topK, err = strconv.Atoi(v); err != nil || topK < 0 {
			respondWithError(w, http.StatusBadRequest, "top_k must be a non-negative integer")
			return
		}
	}

	tokens, err := api.store.Generate(r.Context(), corpus, seed,
		bigram.WithMaxLength(maxLength),
		bigram.WithTemperature(temperature),
		bigram.WithTopK(topK),
	)
	if err != nil {
		api.logger.Error("Failed to generate text", "name", corpus.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
		return
	}
	if tokens == nil {
		tokens = []string{}
	}
	respondWithJSON(w, http.StatusOK, generated{Seed: seed, Tokens: tokens, Text: strings.Join(tokens, " ")})
}

// handleImport imports a corpus from an uploaded JSON export.
func (api *API) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	info, err := api.store.ImportCorpus(r.Context(), r.Body)
	if err != nil {
		api.logger.Error("Failed to import corpus", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusAccepted, info)
}

// handleVocabPrune removes vocabulary no corpus references.
func (api *API) handleVocabPrune(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	removed, err := api.store.VocabularyPrune(r.Context())
	if err != nil {
		api.logger.Error("Failed to prune vocabulary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Vocabulary prune failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, PruneResponse{Removed: removed})
}

func (api *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := api.store.GetStats(r.Context())
	if err != nil {
		api.logger.Error("Failed to get stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
