package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hunterlabs/polyhunter/internal/domain"
	"github.com/hunterlabs/polyhunter/internal/handler"
)

type fakeSlugs struct {
	slugs []string
}

func (f *fakeSlugs) Add(_ context.Context, slug string) error {
	f.slugs = append(f.slugs, slug)
	return nil
}

func (f *fakeSlugs) Remove(_ context.Context, slug string) error {
	out := f.slugs[:0]
	for _, s := range f.slugs {
		if s != slug {
			out = append(out, s)
		}
	}
	f.slugs = out
	return nil
}

func (f *fakeSlugs) List(context.Context) ([]string, error) {
	return append([]string(nil), f.slugs...), nil
}

type fakeRequests struct {
	added []domain.OrderRequest
}

func (f *fakeRequests) Add(_ context.Context, req domain.OrderRequest) error {
	f.added = append(f.added, req)
	return nil
}

func (f *fakeRequests) Remove(context.Context, string, string, domain.Side) error { return nil }

func (f *fakeRequests) Get(context.Context, string, string, domain.Side) (domain.OrderRequest, error) {
	return domain.OrderRequest{}, domain.ErrNotFound
}

func (f *fakeRequests) GetActive(context.Context, string) ([]domain.OrderRequest, error) {
	return f.added, nil
}

func (f *fakeRequests) CleanupStalePointers(context.Context) (int, error) { return 0, nil }

type fakeRecords struct{}

func (fakeRecords) Add(context.Context, domain.TradeRecord) error { return nil }
func (fakeRecords) Get(context.Context, string) (domain.TradeRecord, error) {
	return domain.TradeRecord{}, domain.ErrNotFound
}
func (fakeRecords) GetActive(context.Context, string) ([]domain.TradeRecord, error) {
	return nil, nil
}
func (fakeRecords) Deactivate(context.Context, string) error         { return nil }
func (fakeRecords) Remove(context.Context, string) error             { return nil }
func (fakeRecords) CleanupStalePointers(context.Context) (int, error) { return 0, nil }

type fakeContexts struct {
	byAsset map[string]domain.MarketContext
}

func (f *fakeContexts) Set(_ context.Context, mc domain.MarketContext) error {
	f.byAsset[mc.AssetID] = mc
	return nil
}

func (f *fakeContexts) Get(_ context.Context, assetID string) (domain.MarketContext, error) {
	mc, ok := f.byAsset[assetID]
	if !ok {
		return domain.MarketContext{}, domain.ErrNotFound
	}
	return mc, nil
}

type fakeDepth struct {
	bids, asks []handler.PriceLevel
	known      bool
}

func (f *fakeDepth) Depth(string) (bids, asks []handler.PriceLevel, ok bool) {
	return f.bids, f.asks, f.known
}

type fakeTasks struct {
	triggered []string
}

func (f *fakeTasks) Trigger(_ context.Context, name string) bool {
	if name != "market_refresh" {
		return false
	}
	f.triggered = append(f.triggered, name)
	return true
}

func newTestAPI() (*API, *fakeSlugs, *fakeRequests, *fakeTasks) {
	slugs := &fakeSlugs{}
	requests := &fakeRequests{}
	tasks := &fakeTasks{}
	contexts := &fakeContexts{byAsset: map[string]domain.MarketContext{
		"asset-1": {AssetID: "asset-1", MarketSlug: "btc-hourly", BestBid: 0.51, BestAsk: 0.53},
	}}
	depth := &fakeDepth{
		bids:  []handler.PriceLevel{{Price: "0.51", Size: "100"}},
		asks:  []handler.PriceLevel{{Price: "0.53", Size: "80"}},
		known: true,
	}
	api := NewAPI(slugs, requests, fakeRecords{}, contexts, depth, tasks, "trade")
	return api, slugs, requests, tasks
}

func TestSlugLifecycle(t *testing.T) {
	api, slugs, _, _ := newTestAPI()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/slugs", strings.NewReader(`{"slug":"btc-hourly"}`))
	api.AddSlug(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if len(slugs.slugs) != 1 || slugs.slugs[0] != "btc-hourly" {
		t.Fatalf("slugs = %v", slugs.slugs)
	}

	rec = httptest.NewRecorder()
	api.ListSlugs(rec, httptest.NewRequest(http.MethodGet, "/api/slugs", nil))
	var body struct {
		Slugs []string `json:"slugs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Slugs) != 1 {
		t.Errorf("listed slugs = %v", body.Slugs)
	}
}

func TestAddSlugRejectsBadBody(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/slugs", strings.NewReader(`{}`))
	api.AddSlug(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestPlaceManualOrder(t *testing.T) {
	api, _, requests, _ := newTestAPI()

	body := `{"market_slug":"btc-hourly","asset_id":"asset-1","side":"BUY","price":0.52,"size":25}`
	rec := httptest.NewRecorder()
	api.PlaceManualOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(requests.added) != 1 {
		t.Fatalf("intents stored = %d, want 1", len(requests.added))
	}
	got := requests.added[0]
	if got.Source != domain.SourceManual || got.OrderType != domain.OrderTypeGTC {
		t.Errorf("intent = %+v", got)
	}
	if got.ID == "" || !got.Active {
		t.Errorf("intent missing ID or inactive: %+v", got)
	}
}

func TestPlaceManualOrderValidates(t *testing.T) {
	api, _, requests, _ := newTestAPI()

	body := `{"market_slug":"btc-hourly","asset_id":"asset-1","side":"BUY","price":1.5,"size":25}`
	rec := httptest.NewRecorder()
	api.PlaceManualOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(requests.added) != 0 {
		t.Errorf("invalid intent was stored: %+v", requests.added)
	}
}

func TestGetBook(t *testing.T) {
	api, _, _, _ := newTestAPI()

	req := httptest.NewRequest(http.MethodGet, "/api/book/asset-1", nil)
	req.SetPathValue("asset", "asset-1")
	rec := httptest.NewRecorder()
	api.GetBook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Bids []handler.PriceLevel `json:"bids"`
		Asks []handler.PriceLevel `json:"asks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Bids) != 1 || body.Bids[0].Price != "0.51" {
		t.Errorf("bids = %+v", body.Bids)
	}
}

func TestTriggerTask(t *testing.T) {
	api, _, _, tasks := newTestAPI()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/market_refresh", nil)
	req.SetPathValue("name", "market_refresh")
	rec := httptest.NewRecorder()
	api.TriggerTask(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(tasks.triggered) != 1 {
		t.Errorf("triggered = %v", tasks.triggered)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tasks/nope", nil)
	req.SetPathValue("name", "nope")
	rec = httptest.NewRecorder()
	api.TriggerTask(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown task status = %d", rec.Code)
	}
}
