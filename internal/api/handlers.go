package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/explore"
	"github.com/starford/autods/internal/frame"
	"github.com/starford/autods/internal/session"
	"github.com/starford/autods/internal/transform"
	"github.com/starford/autods/internal/workbench"
)

const (
	maxJSONBytes   = 1 << 20
	maxUploadBytes = 50 << 20 // 50 MB
	previewRows    = 20
)

type ctxKey struct{}

// Handler holds API route handlers.
type Handler struct {
	svc *workbench.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *workbench.Service) *Handler {
	return &Handler{svc: svc}
}

// withSession resolves {sid} and stores the session in the request context.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.svc.Session(chi.URLParam(r, "sid"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func previewOf(f *frame.Frame, n int) Preview {
	head := f.Head(n)
	rows := make([][]any, head.NumRows())
	for i := range rows {
		rows[i] = head.Row(i)
	}
	return Preview{Columns: f.Schema(), Rows: rows, TotalRows: f.NumRows()}
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Start a workbench session
//	@Tags			sessions
//	@Produce		json
//	@Success		201	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.svc.Sessions().Create()
	writeJSON(w, http.StatusCreated, SessionResponse{ID: sess.ID})
}

// ListSessions handles GET /api/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: h.svc.Sessions().List()})
}

// EndSession handles DELETE /api/sessions/{sid}.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sessions().End(sessionFrom(r).ID); err != nil {
		writeError(w, "end session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSnapshots handles GET /api/sessions/{sid}/snapshots.
//
//	@Summary		List snapshot ids, newest first
//	@Tags			snapshots
//	@Produce		json
//	@Success		200	{object}	SnapshotListResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/snapshots [get]
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.List()
	if err != nil {
		writeError(w, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotListResponse{Snapshots: ids})
}

// ImportSnapshot handles POST /api/sessions/{sid}/snapshots (multipart/form-data, field "file").
//
//	@Summary		Import a CSV file as a new dataset
//	@Tags			snapshots
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		201	{object}	models.SnapshotMeta
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/snapshots [post]
func (h *Handler) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	snap, err := h.svc.Import(r.Context(), sessionFrom(r), header.Filename, file)
	if err != nil {
		if errors.Is(err, workbench.ErrInvalidUpload) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap.SnapshotMeta)
}

// GetSnapshot handles GET /api/sessions/{sid}/snapshots/{id}.
//
//	@Summary		Snapshot metadata with preview rows
//	@Tags			snapshots
//	@Produce		json
//	@Param			rows	query		int	false	"Preview rows"
//	@Success		200		{object}	SnapshotDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/snapshots/{id} [get]
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, _ := strconv.Atoi(r.URL.Query().Get("rows"))
	if n <= 0 {
		n = previewRows
	}
	meta, err := h.svc.Meta(r.Context(), id)
	if err != nil {
		writeError(w, "get snapshot", err)
		return
	}
	head, err := h.svc.Preview(r.Context(), id, n)
	if err != nil {
		writeError(w, "get snapshot", err)
		return
	}
	p := previewOf(head, n)
	p.TotalRows = meta.Rows
	writeJSON(w, http.StatusOK, SnapshotDetail{SnapshotMeta: meta, Preview: p})
}

// DownloadSnapshot handles GET /api/sessions/{sid}/snapshots/{id}/download.
func (h *Handler) DownloadSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Meta(r.Context(), id); err != nil {
		writeError(w, "download", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.csv"`)
	sw := &streamWriter{ResponseWriter: w}
	if err := h.svc.Export(r.Context(), id, sw); err != nil {
		if sw.started {
			slog.Error("download failed mid-stream", slog.String("id", id), slog.String("error", err.Error()))
			return
		}
		w.Header().Del("Content-Disposition")
		writeError(w, "download", err)
	}
}

// streamWriter records whether any body bytes were attempted, after which
// the status line can no longer change.
type streamWriter struct {
	http.ResponseWriter
	started bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	s.started = true
	return s.ResponseWriter.Write(p)
}

// DeleteSnapshot handles DELETE /api/sessions/{sid}/snapshots/{id}.
//
//	@Summary		Delete a snapshot
//	@Tags			snapshots
//	@Produce		json
//	@Success		200	{object}	DeleteResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/snapshots/{id} [delete]
func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	ok := h.svc.Delete(sessionFrom(r), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: ok})
}

// LatestSnapshot handles GET /api/sessions/{sid}/latest/{base}.
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.Latest(r.Context(), chi.URLParam(r, "base"))
	if err != nil {
		writeError(w, "latest", err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// GetActive handles GET /api/sessions/{sid}/active.
//
//	@Summary		The session's active dataset
//	@Tags			active
//	@Produce		json
//	@Success		200	{object}	ActiveResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/active [get]
func (h *Handler) GetActive(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	e, err := h.svc.Active(sess)
	if err != nil {
		writeError(w, "active", err)
		return
	}
	writeJSON(w, http.StatusOK, activeResponse(sess, e))
}

func activeResponse(sess *session.Session, e session.Entry) ActiveResponse {
	names := []string{}
	for _, d := range sess.Datasets() {
		names = append(names, d.Name)
	}
	resp := ActiveResponse{Name: e.Name, ID: e.ID, Datasets: names}
	if e.Frame != nil {
		resp.Preview = previewOf(e.Frame, previewRows)
	}
	return resp
}

// SetActive handles PUT /api/sessions/{sid}/active.
// A body with "id" loads that snapshot; a body with "name" selects a dataset
// the session already holds.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess := sessionFrom(r)
	var (
		e   session.Entry
		err error
	)
	switch {
	case req.ID != "":
		e, err = h.svc.Load(r.Context(), sess, req.ID)
	case req.Name != "":
		e, err = h.svc.Select(sess, req.Name)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("id or name is required"))
		return
	}
	if err != nil {
		writeError(w, "set active", err)
		return
	}
	writeJSON(w, http.StatusOK, activeResponse(sess, e))
}

// Transform handles POST /api/sessions/{sid}/active/transform.
//
//	@Summary		Apply a transformation and save the result as a new version
//	@Tags			active
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TransformRequest	true	"Operation"
//	@Success		201		{object}	TransformResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/active/transform [post]
func (h *Handler) Transform(w http.ResponseWriter, r *http.Request) {
	var req TransformRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Op == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("op is required"))
		return
	}
	sess := sessionFrom(r)
	snap, err := h.svc.Apply(r.Context(), sess, req.Op, transform.Params(req.Params))
	if err != nil {
		writeError(w, "transform", err)
		return
	}
	lines := sess.ActionLines()
	writeJSON(w, http.StatusCreated, TransformResponse{Snapshot: snap.SnapshotMeta, Action: lines[len(lines)-1]})
}

// Actions handles GET /api/sessions/{sid}/actions.
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ActionsResponse{Actions: sessionFrom(r).Actions()})
}

// Nav handles GET /api/sessions/{sid}/nav.
func (h *Handler) Nav(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, navResponse(sessionFrom(r)))
}

func navResponse(sess *session.Session) NavResponse {
	cur, hist := sess.Location()
	return NavResponse{Current: cur, History: hist}
}

// Navigate handles POST /api/sessions/{sid}/nav/{push|back|home}.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	switch chi.URLParam(r, "move") {
	case "push":
		var req PushRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Page == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("page is required"))
			return
		}
		sess.Push(req.Page)
	case "back":
		sess.Back()
	case "home":
		sess.Home()
	default:
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, navResponse(sess))
}

// Chat handles POST /api/sessions/{sid}/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("question is required"))
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: h.svc.Chat(r.Context(), sessionFrom(r), req.Question)})
}

// Insight handles POST /api/sessions/{sid}/insight.
func (h *Handler) Insight(w http.ResponseWriter, r *http.Request) {
	var req InsightRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("prompt is required"))
		return
	}
	reply, err := h.svc.Insight(r.Context(), sessionFrom(r), req.Prompt)
	if err != nil {
		writeError(w, "insight", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

// Query handles POST /api/query/{id}.
//
//	@Summary		Run read-only SQL against a snapshot (table "snapshot")
//	@Tags			explore
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequest	true	"SQL"
//	@Success		200		{object}	explore.Result
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query/{id} [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("sql is required"))
		return
	}
	res, err := h.svc.Query(r.Context(), chi.URLParam(r, "id"), req.SQL)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, explore.ErrNotReadOnly) {
			writeError(w, "query", err)
		} else {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Datasets handles GET /api/datasets.
func (h *Handler) Datasets(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Datasets()
	if err != nil {
		writeError(w, "datasets", err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetsResponse{Datasets: ds})
}

// Versions handles GET /api/datasets/{base}.
func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	base := chi.URLParam(r, "base")
	list, err := h.svc.Versions(base)
	if err != nil {
		writeError(w, "versions", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionsResponse{Base: base, Snapshots: list})
}

// Search handles GET /api/search.
//
//	@Summary		Search snapshots by id, note or column name
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Transforms handles GET /api/transforms.
func (h *Handler) Transforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": transform.Names()})
}
