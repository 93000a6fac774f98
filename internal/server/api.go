package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/autosave"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/importer"
	"github.com/livetemplate/pagecraft/internal/kv"
	"github.com/livetemplate/pagecraft/internal/toolbar"
)

// maxRequestBodySize limits JSON request bodies (1MB).
const maxRequestBodySize = 1 << 20

// defaultPageLimit is the default pagination limit when none is specified.
const defaultPageLimit = 100

// APIHandler serves the REST API over the document.
type APIHandler struct {
	store      *document.MemoryStore
	engine     *elements.Engine
	dispatcher *toolbar.Dispatcher
	importer   *importer.Importer
	saver      *autosave.Saver
	logger     *zap.Logger
	mux        *http.ServeMux
}

// NewAPIHandler creates the API handler. importer and saver may be nil, in
// which case their routes answer 501.
func NewAPIHandler(store *document.MemoryStore, engine *elements.Engine, dispatcher *toolbar.Dispatcher, imp *importer.Importer, saver *autosave.Saver, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &APIHandler{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		importer:   imp,
		saver:      saver,
		logger:     logger.Named("api"),
		mux:        http.NewServeMux(),
	}
	h.routes()
	return h
}

func (h *APIHandler) routes() {
	m := h.mux
	m.HandleFunc("GET /api/document", h.getDocument)
	m.HandleFunc("GET /api/sections", h.listSections)
	m.HandleFunc("GET /api/sections/{id}/elements", h.listElements)
	m.HandleFunc("POST /api/sections/{id}/elements", h.addElement)
	m.HandleFunc("GET /api/sections/{id}/elements/{key}", h.getElement)
	m.HandleFunc("PATCH /api/sections/{id}/elements/{key}", h.updateElement)
	m.HandleFunc("DELETE /api/sections/{id}/elements/{key}", h.removeElement)
	m.HandleFunc("POST /api/sections/{id}/elements/{key}/move", h.moveElement)
	m.HandleFunc("POST /api/sections/{id}/elements/{key}/convert", h.convertElement)
	m.HandleFunc("GET /api/sections/{id}/validate", h.validateSection)
	m.HandleFunc("POST /api/sections/{id}/import", h.importMarkdown)
	m.HandleFunc("GET /api/search", h.search)

	m.HandleFunc("GET /api/actions", h.listActions)
	m.HandleFunc("POST /api/actions", h.executeBatch)
	m.HandleFunc("POST /api/actions/{action}", h.executeAction)

	m.HandleFunc("GET /api/changes", h.listChanges)
	m.HandleFunc("GET /api/templates", h.listTemplates)
	m.HandleFunc("POST /api/templates", h.saveTemplate)
	m.HandleFunc("DELETE /api/templates/{ref}", h.deleteTemplate)
	m.HandleFunc("POST /api/templates/{ref}/load", h.loadTemplate)
	m.HandleFunc("GET /api/backups", h.listBackups)
	m.HandleFunc("POST /api/backups/{key}/restore", h.restoreBackup)
	m.HandleFunc("GET /api/assets/{id}", h.getAsset)

	m.HandleFunc("GET /api/save", h.saveStats)
	m.HandleFunc("POST /api/save", h.flush)
}

// ServeHTTP implements http.Handler.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// sectionSummary is one entry of GET /api/sections.
type sectionSummary struct {
	ID         string `json:"id"`
	Layout     string `json:"layout"`
	Elements   int    `json:"elements"`
	Customized bool   `json:"customized"`
}

func (h *APIHandler) getDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *APIHandler) listSections(w http.ResponseWriter, r *http.Request) {
	out := make([]sectionSummary, 0)
	for _, id := range h.store.SectionOrder() {
		sec, ok := h.store.Section(id)
		if !ok {
			continue
		}
		out = append(out, sectionSummary{ID: id, Layout: sec.Layout, Elements: len(sec.Elements), Customized: sec.Customized})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": out, "count": len(out)})
}

func (h *APIHandler) listElements(w http.ResponseWriter, r *http.Request) {
	c, err := criteria(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.SectionID = r.PathValue("id")
	if _, ok := h.store.Section(c.SectionID); !ok {
		writeError(w, http.StatusNotFound, "section not found: "+c.SectionID)
		return
	}
	h.writeSearch(w, r, c)
}

func (h *APIHandler) search(w http.ResponseWriter, r *http.Request) {
	c, err := criteria(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.SectionID = r.URL.Query().Get("section")
	h.writeSearch(w, r, c)
}

func (h *APIHandler) writeSearch(w http.ResponseWriter, r *http.Request, c elements.SearchCriteria) {
	found, err := h.engine.SearchElements(r.Context(), c)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	limit := parseIntParam(r, "limit", defaultPageLimit)
	offset := parseIntParam(r, "offset", 0)
	total := len(found)
	found = paginate(found, offset, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   found,
		"count":  len(found),
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// criteria reads the search query parameters shared by the element listings.
func criteria(r *http.Request) (elements.SearchCriteria, error) {
	q := r.URL.Query()
	c := elements.SearchCriteria{
		ContentContains: q.Get("q"),
		KeyPattern:      q.Get("key"),
		Where:           q.Get("where"),
	}
	if s := q.Get("type"); s != "" {
		t, ok := document.ParseElementType(s)
		if !ok {
			return c, errors.New("unknown element type: " + s)
		}
		c.Type = t
	}
	return c, nil
}

// addRequest is the body of POST /api/sections/{id}/elements.
type addRequest struct {
	Type         string              `json:"type"`
	Key          string              `json:"key,omitempty"`
	Content      *document.Content   `json:"content,omitempty"`
	Props        document.Props      `json:"props,omitempty"`
	Position     *int                `json:"position,omitempty"`
	InsertMode   elements.InsertMode `json:"insertMode,omitempty"`
	ReferenceKey string              `json:"referenceKey,omitempty"`
}

func (h *APIHandler) addElement(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sectionID := r.PathValue("id")
	key, err := h.engine.AddElement(r.Context(), sectionID, req.Type, elements.AddOptions{
		Key:          req.Key,
		Content:      req.Content,
		Props:        req.Props,
		Position:     req.Position,
		InsertMode:   req.InsertMode,
		ReferenceKey: req.ReferenceKey,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	el, err := h.engine.GetElement(r.Context(), sectionID, key)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, el)
}

func (h *APIHandler) getElement(w http.ResponseWriter, r *http.Request) {
	el, err := h.engine.GetElement(r.Context(), r.PathValue("id"), r.PathValue("key"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// updateRequest is the body of PATCH .../elements/{key}. Props are merged; a
// null prop value deletes it.
type updateRequest struct {
	Content *document.Content `json:"content,omitempty"`
	Props   document.Props    `json:"props,omitempty"`
}

func (h *APIHandler) updateElement(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == nil && req.Props == nil {
		writeError(w, http.StatusBadRequest, "content or props required")
		return
	}
	ctx := r.Context()
	sectionID, key := r.PathValue("id"), r.PathValue("key")
	if req.Content != nil {
		if err := h.engine.UpdateElementContent(ctx, sectionID, key, *req.Content); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	if req.Props != nil {
		if err := h.engine.SetElementProps(ctx, sectionID, key, req.Props); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	h.getElement(w, r)
}

func (h *APIHandler) removeElement(w http.ResponseWriter, r *http.Request) {
	backup, _ := strconv.ParseBool(r.URL.Query().Get("backup"))
	removed, err := h.engine.RemoveElement(r.Context(), r.PathValue("id"), r.PathValue("key"), elements.RemoveOptions{
		SkipConfirm: true,
		SaveBackup:  backup,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": removed})
}

// moveRequest is the body of POST .../elements/{key}/move. Exactly one of
// Direction, Position or Section is used, in that order of precedence.
type moveRequest struct {
	Direction string `json:"direction,omitempty"`
	Position  *int   `json:"position,omitempty"`
	Section   string `json:"section,omitempty"`
}

func (h *APIHandler) moveElement(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	sectionID, key := r.PathValue("id"), r.PathValue("key")

	var moved bool
	var err error
	switch {
	case req.Direction == "up":
		moved, err = h.engine.MoveElementUp(ctx, sectionID, key)
	case req.Direction == "down":
		moved, err = h.engine.MoveElementDown(ctx, sectionID, key)
	case req.Direction != "":
		writeError(w, http.StatusBadRequest, "direction must be up or down")
		return
	case req.Section != "":
		moved, err = h.engine.MoveElementToSection(ctx, sectionID, req.Section, key, req.Position)
	case req.Position != nil:
		moved, err = h.engine.MoveElementToPosition(ctx, sectionID, key, *req.Position)
	default:
		writeError(w, http.StatusBadRequest, "direction, position or section required")
		return
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": moved})
}

func (h *APIHandler) convertElement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := document.ParseElementType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown element type: "+req.Type)
		return
	}
	converted, err := h.engine.ConvertElementType(r.Context(), r.PathValue("id"), r.PathValue("key"), t)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": converted})
}

func (h *APIHandler) validateSection(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.ValidateAllElements(r.Context(), r.PathValue("id"))
	// Invalid elements come back as validation errors alongside the results.
	if err != nil && elements.CodeOf(err) != elements.CodeValidation {
		h.writeEngineError(w, err)
		return
	}
	if results == nil {
		results = []elements.ValidationResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": err == nil, "results": results})
}

func (h *APIHandler) importMarkdown(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusNotImplemented, "import not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))
	res, err := h.importer.Import(r.Context(), r.PathValue("id"), body, importer.Options{Replace: replace})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *APIHandler) listActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actions": h.dispatcher.AvailableActions()})
}

func (h *APIHandler) executeAction(w http.ResponseWriter, r *http.Request) {
	params := toolbar.Params{}
	if !decodeOptionalBody(w, r, &params) {
		return
	}
	res := h.dispatcher.Execute(r.Context(), r.PathValue("action"), params)
	status := http.StatusOK
	if res.Err != nil {
		status = statusFor(res.Err)
	}
	writeJSON(w, status, res)
}

func (h *APIHandler) executeBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []toolbar.Request
	if !decodeBody(w, r, &reqs) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": h.dispatcher.ExecuteBatch(r.Context(), reqs)})
}

func (h *APIHandler) listChanges(w http.ResponseWriter, r *http.Request) {
	changes := h.store.Changes()
	total := len(changes)
	offset := parseIntParam(r, "offset", 0)
	limit := parseIntParam(r, "limit", defaultPageLimit)
	changes = paginate(changes, offset, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   changes,
		"count":  len(changes),
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (h *APIHandler) listTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.engine.ListTemplates(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := tpls[:0]
		for _, t := range tpls {
			if t.Category == category {
				filtered = append(filtered, t)
			}
		}
		tpls = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": tpls, "count": len(tpls)})
}

// saveTemplateRequest is the body of POST /api/templates.
type saveTemplateRequest struct {
	SectionID  string `json:"sectionId"`
	ElementKey string `json:"elementKey"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
}

func (h *APIHandler) saveTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tpl, err := h.engine.SaveElementAsTemplate(r.Context(), req.SectionID, req.ElementKey, req.Name, req.Category)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func (h *APIHandler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteTemplate(r.Context(), r.PathValue("ref")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *APIHandler) loadTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SectionID string `json:"sectionId"`
		Position  *int   `json:"position,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	tpl, err := h.engine.FindTemplate(ctx, r.PathValue("ref"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	key, err := h.engine.LoadElementFromTemplate(ctx, req.SectionID, tpl, req.Position)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"elementKey": key})
}

func (h *APIHandler) listBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.engine.ListBackups(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups, "count": len(backups)})
}

func (h *APIHandler) restoreBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SectionID string `json:"sectionId,omitempty"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	key, err := h.engine.RestoreElementBackup(r.Context(), req.SectionID, r.PathValue("key"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"elementKey": key})
}

func (h *APIHandler) getAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.dispatcher.Asset(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", a.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(a.Data)
}

func (h *APIHandler) saveStats(w http.ResponseWriter, r *http.Request) {
	if h.saver == nil {
		writeError(w, http.StatusNotImplemented, "auto-save not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.saver.Stats())
}

func (h *APIHandler) flush(w http.ResponseWriter, r *http.Request) {
	if h.saver == nil {
		writeError(w, http.StatusNotImplemented, "auto-save not configured")
		return
	}
	if err := h.saver.Flush(r.Context()); err != nil {
		h.logger.Error("flush failed", zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.saver.Stats())
}

func (h *APIHandler) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, toolbar.ErrUnknownAction), errors.Is(err, kv.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, toolbar.ErrUnavailable):
		return http.StatusForbidden
	case errors.Is(err, toolbar.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, importer.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, autosave.ErrClosed):
		return http.StatusServiceUnavailable
	}
	var e *elements.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case elements.CodeNotFound:
		return http.StatusNotFound
	case elements.CodeValidation:
		return http.StatusBadRequest
	case elements.CodeAborted, elements.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for routes where the body may be empty.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// paginate applies offset and limit to data.
func paginate[T any](data []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(data) {
		return []T{}
	}
	data = data[offset:]
	if limit > 0 && limit < len(data) {
		data = data[:limit]
	}
	return data
}
