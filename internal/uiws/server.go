package uiws

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-wargame/internal/render"
	"github.com/park285/cheese-wargame/internal/results"
	"go.uber.org/zap"
)

type handlers struct {
	hub     *Hub
	png     *render.PNGRenderer
	results results.Repository
	logger  *zap.Logger
}

// NewRouter serves the websocket endpoint plus read-only board and result views.
// repo may be nil.
func NewRouter(h *Hub, png *render.PNGRenderer, repo results.Repository) http.Handler {
	if png == nil {
		png = render.NewPNGRenderer(0)
	}
	hs := &handlers{hub: h, png: png, results: repo, logger: h.logger}
	r := chi.NewRouter()
	r.Get("/ws", h.ServeWS)
	r.Get("/healthz", hs.healthz)
	r.Get("/board", hs.boardJSON)
	r.Get("/board.png", hs.boardPNG)
	r.Get("/board.txt", hs.boardText)
	r.Get("/results", hs.recentResults)
	return r
}

func (hs *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": hs.hub.Clients()})
}

func (hs *handlers) boardJSON(w http.ResponseWriter, r *http.Request) {
	b, ok := hs.hub.LastBoard()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (hs *handlers) boardPNG(w http.ResponseWriter, r *http.Request) {
	b, ok := hs.hub.LastBoard()
	if !ok {
		http.NotFound(w, r)
		return
	}
	img, err := hs.png.RenderPNG(r.Context(), b)
	if err != nil {
		hs.logger.Warn("board_png_error", zap.Error(err))
		http.Error(w, "failed to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (hs *handlers) boardText(w http.ResponseWriter, r *http.Request) {
	b, ok := hs.hub.LastBoard()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(render.Text(b)))
}

func (hs *handlers) recentResults(w http.ResponseWriter, r *http.Request) {
	if hs.results == nil {
		writeJSON(w, http.StatusOK, []results.Outcome{})
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	out, err := hs.results.Recent(r.Context(), limit)
	if err != nil {
		hs.logger.Warn("results_query_error", zap.Error(err))
		http.Error(w, "failed to load results", http.StatusInternalServerError)
		return
	}
	if out == nil {
		out = []results.Outcome{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
