package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/auth"
	"quiz-arena-service/internal/domain"
)

// RoomsHandler exposes the room lifecycle as JSON endpoints. Every route expects the
// caller's player id in the request context (see Authenticate).
type RoomsHandler struct {
	service *app.GameService
	log     logrus.FieldLogger
}

func NewRoomsHandler(service *app.GameService, log logrus.FieldLogger) *RoomsHandler {
	return &RoomsHandler{service: service, log: log}
}

// Register mounts the player routes on mux.
func (h *RoomsHandler) Register(mux *http.ServeMux, authn func(http.Handler) http.Handler) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(fn))
	}
	route("POST /rooms", h.create)
	route("GET /codes/{code}", h.findByCode)
	route("GET /rooms/{id}", h.snapshot)
	route("GET /rooms/{id}/standings", h.standings)
	route("POST /rooms/{id}/join", h.join)
	route("POST /rooms/{id}/ready", h.ready)
	route("POST /rooms/{id}/start", h.start)
	route("POST /rooms/{id}/leave", h.leave)
	route("POST /rooms/{id}/answers", h.submit)
}

// RegisterAdmin mounts operator routes on mux.
func (h *RoomsHandler) RegisterAdmin(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/rooms/{id}/end", guard(http.HandlerFunc(h.end)))
}

func (h *RoomsHandler) create(w http.ResponseWriter, r *http.Request) {
	var opts app.RoomOptions
	if !decode(w, r, &opts) {
		return
	}
	room, err := h.service.CreateRoom(r.Context(), caller(r), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomsHandler) findByCode(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.FindByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomsHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("id"), caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *RoomsHandler) standings(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Standings(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *RoomsHandler) join(w http.ResponseWriter, r *http.Request) {
	player, err := h.service.Join(r.Context(), r.PathValue("id"), caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

type readyRequest struct {
	Ready *bool `json:"ready"`
}

func (h *RoomsHandler) ready(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if !decode(w, r, &req) {
		return
	}
	ready := req.Ready == nil || *req.Ready
	player, err := h.service.SetReady(r.Context(), r.PathValue("id"), caller(r), ready)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (h *RoomsHandler) start(w http.ResponseWriter, r *http.Request) {
	first, err := h.service.Start(r.Context(), r.PathValue("id"), caller(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, first)
}

func (h *RoomsHandler) leave(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Leave(r.Context(), r.PathValue("id"), caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomsHandler) submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if !decode(w, r, &sub) {
		return
	}
	if sub.QuestionID == "" {
		badRequest(w, "questionId is required")
		return
	}
	verdict, err := h.service.Submit(r.Context(), r.PathValue("id"), caller(r), sub)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (h *RoomsHandler) end(w http.ResponseWriter, r *http.Request) {
	if err := h.service.End(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if domain.KindOf(err) == domain.KindInternal {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, err)
}

func caller(r *http.Request) string {
	id, _ := auth.PlayerFrom(r.Context())
	return id
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || err == io.EOF {
		return true
	}
	badRequest(w, "invalid JSON body")
	return false
}
