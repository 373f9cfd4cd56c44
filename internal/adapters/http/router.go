package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
	"github.com/kirillkom/confident-retrieval/internal/observability/metrics"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; larger
// files spill to temp storage.
const maxUploadMemory = 32 << 20

type Router struct {
	ingestor   ports.DocumentIngestor
	search     ports.SearchService
	documents  ports.DocumentReader
	caseMemory ports.CaseMemoryReader
	reembedder ports.ChunkReembedder

	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
	service string
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	search ports.SearchService,
	documents ports.DocumentReader,
	caseMemory ports.CaseMemoryReader,
	reembedder ports.ChunkReembedder,
	serverMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	service string,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ingestor:   ingestor,
		search:     search,
		documents:  documents,
		caseMemory: caseMemory,
		reembedder: reembedder,
		metrics:    serverMetrics,
		logger:     logger,
		service:    service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	mux.HandleFunc("/v1/search", rt.searchDocuments)
	mux.HandleFunc("/v1/case-memory/", rt.lookupCaseMemory)
	mux.HandleFunc("/v1/chunks/", rt.reembedChunk)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	meta, err := metadataFromForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		meta,
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func metadataFromForm(r *http.Request) (domain.ChunkMetadata, error) {
	meta := domain.ChunkMetadata{
		Version:    strings.TrimSpace(r.FormValue("version")),
		SourceType: strings.TrimSpace(r.FormValue("source_type")),
	}

	if raw := strings.TrimSpace(r.FormValue("effective_date")); raw != "" {
		effectiveDate, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.ChunkMetadata{}, errors.New("field 'effective_date' must be RFC 3339")
		}
		meta.EffectiveDate = &effectiveDate
	}

	if raw := strings.TrimSpace(r.FormValue("is_archived")); raw != "" {
		isArchived, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.ChunkMetadata{}, errors.New("field 'is_archived' must be a boolean")
		}
		meta.IsArchived = isArchived
	}

	return meta, nil
}

func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")

	if id, ok := strings.CutSuffix(rest, "/reprocess"); ok {
		rt.reprocessDocument(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id, wantTree := strings.CutSuffix(rest, "/nodes")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	if wantTree {
		tree, err := rt.documents.GetTree(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tree)
		return
	}

	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	if err := rt.ingestor.Reprocess(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reprocessing", "document_id": id})
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		domain.QueryRequest
		GatedOnly bool `json:"gated_only"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.search.Search(r.Context(), req.QueryRequest)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		passed := 0
		composites := make([]float64, 0, len(result.Results))
		for _, res := range result.Results {
			if res.PassedGate {
				passed++
			}
			composites = append(composites, res.Confidence.Composite)
		}
		rt.metrics.RecordSearch(
			rt.service,
			string(result.Mode),
			len(result.Results),
			passed,
			composites,
			time.Since(start),
		)
	}

	if req.GatedOnly {
		gated := make([]domain.SearchResult, 0, len(result.Results))
		for _, res := range result.Results {
			if res.PassedGate {
				gated = append(gated, res)
			}
		}
		result.Results = gated
	}

	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) lookupCaseMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	signature := strings.TrimPrefix(r.URL.Path, "/v1/case-memory/")
	if signature == "" || strings.Contains(signature, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query signature is required"})
		return
	}

	entry, err := rt.caseMemory.Lookup(r.Context(), signature)
	if err != nil {
		if rt.metrics != nil && domain.IsKind(err, domain.ErrEntryNotFound) {
			rt.metrics.RecordCaseMemoryLookup(rt.service, false)
		}
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordCaseMemoryLookup(rt.service, true)
	}
	writeJSON(w, http.StatusOK, entry)
}

func (rt *Router) reembedChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/chunks/")
	id, ok := strings.CutSuffix(rest, "/reembed")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if err := rt.reembedder.ReembedChunk(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reembedded", "chunk_id": id})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
