package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hunterlabs/polyhunter/internal/domain"
	"github.com/hunterlabs/polyhunter/internal/handler"
)

// DepthSource exposes the in-memory book of a subscribed asset.
type DepthSource interface {
	Depth(assetID string) (bids, asks []handler.PriceLevel, ok bool)
}

// TaskTrigger runs a named scheduler job on demand.
type TaskTrigger interface {
	Trigger(ctx context.Context, name string) bool
}

// API holds the handler dependencies.
type API struct {
	slugs    domain.SlugStore
	requests domain.OrderRequestStore
	records  domain.TradeRecordStore
	contexts domain.ContextStore
	depth    DepthSource
	tasks    TaskTrigger
	mode     string
	started  time.Time
}

// NewAPI wires the control-surface handlers.
func NewAPI(
	slugs domain.SlugStore,
	requests domain.OrderRequestStore,
	records domain.TradeRecordStore,
	contexts domain.ContextStore,
	depth DepthSource,
	tasks TaskTrigger,
	mode string,
) *API {
	return &API{
		slugs:    slugs,
		requests: requests,
		records:  records,
		contexts: contexts,
		depth:    depth,
		tasks:    tasks,
		mode:     mode,
		started:  time.Now().UTC(),
	}
}

// Health reports liveness, mode, and uptime.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   a.mode,
		"uptime": time.Since(a.started).Round(time.Second).String(),
	})
}

// ListSlugs returns the subscribed market slugs.
func (a *API) ListSlugs(w http.ResponseWriter, r *http.Request) {
	slugs, err := a.slugs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slugs": slugs})
}

// AddSlug subscribes a market by slug.
func (a *API) AddSlug(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug string `json:"slug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Slug == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"slug\": \"...\"}")
		return
	}
	if err := a.slugs.Add(r.Context(), body.Slug); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"slug": body.Slug})
}

// RemoveSlug unsubscribes a market.
func (a *API) RemoveSlug(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing slug")
		return
	}
	if err := a.slugs.Remove(r.Context(), slug); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIntents returns the active order intents, optionally filtered by
// ?market=slug.
func (a *API) ListIntents(w http.ResponseWriter, r *http.Request) {
	intents, err := a.requests.GetActive(r.Context(), r.URL.Query().Get("market"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if intents == nil {
		intents = []domain.OrderRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

// PlaceManualOrder stores a MANUAL order intent, which the executor picks up
// like any strategy intent.
func (a *API) PlaceManualOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MarketSlug string  `json:"market_slug"`
		AssetID    string  `json:"asset_id"`
		Side       string  `json:"side"`
		Price      float64 `json:"price"`
		Size       float64 `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := domain.OrderRequest{
		ID:         uuid.NewString(),
		MarketSlug: body.MarketSlug,
		AssetID:    body.AssetID,
		Side:       domain.Side(body.Side),
		Price:      body.Price,
		Size:       body.Size,
		OrderType:  domain.OrderTypeGTC,
		Source:     domain.SourceManual,
		CreatedAt:  time.Now().UTC(),
		Active:     true,
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.requests.Add(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

// ListRecords returns the active trade records, optionally filtered by
// ?market=slug.
func (a *API) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := a.records.GetActive(r.Context(), r.URL.Query().Get("market"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// GetContext returns the latest market context for an asset.
func (a *API) GetContext(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset")
	mc, err := a.contexts.Get(r.Context(), assetID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no context for asset")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mc)
}

// GetBook returns the current sorted order book for a subscribed asset.
func (a *API) GetBook(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("asset")
	bids, asks, ok := a.depth.Depth(assetID)
	if !ok {
		writeError(w, http.StatusNotFound, "no book for asset")
		return
	}
	if bids == nil {
		bids = []handler.PriceLevel{}
	}
	if asks == nil {
		asks = []handler.PriceLevel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids, "asks": asks})
}

// TriggerTask runs a scheduler job by name.
func (a *API) TriggerTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if a.tasks == nil || !a.tasks.Trigger(r.Context(), name) {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task": name})
}

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
