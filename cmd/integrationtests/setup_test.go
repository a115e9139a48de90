package integrationtests

import (
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/clock"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2026, 7, 4, 15, 0, 0, 0, time.UTC)

// recordingNotifier keeps every delivered event
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingNotifier) Notify(_ context.Context, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingNotifier) ofType(typ model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// testEnv is a fully wired server on a manual clock
type testEnv struct {
	router     *gin.Engine
	clock      *clock.ManualClock
	service    *bidding.BiddingService
	scheduler  *scheduler.Scheduler
	dispatcher *notify.Dispatcher
	events     *recordingNotifier
}

// flushEvents waits until every dispatched event has been delivered
func (e *testEnv) flushEvents(t *testing.T) {
	t.Helper()
	require.NoError(t, e.dispatcher.Close(context.Background()))
}

var storages = map[string]func(t *testing.T) repository.AuctionDB{
	"memory": func(*testing.T) repository.AuctionDB { return repository.NewMemoryRepo() },
	"sqlite": func(t *testing.T) repository.AuctionDB {
		repo, err := repository.OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	},
}

// SetupTestEnv initializes the router over the given store for integration testing.
func SetupTestEnv(t *testing.T, repo repository.AuctionDB) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewManual(startTime)
	events := &recordingNotifier{}
	dispatcher := notify.NewDispatcher(events, time.Second)
	t.Cleanup(func() { _ = dispatcher.Close(context.Background()) })

	service := bidding.NewBiddingService(repo, dispatcher, bidding.WithClock(clk))
	return &testEnv{
		router:     server.SetupRouter(service, server.Options{}),
		clock:      clk,
		service:    service,
		scheduler:  scheduler.New(service, clk, time.Second),
		dispatcher: dispatcher,
		events:     events,
	}
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, caller string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(server.BidderHeader, caller)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")
	}
	return resp, w
}

// data returns the envelope's data object
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}

// createActiveAuction creates an auction through the API and opens it
func createActiveAuction(t *testing.T, env *testEnv, body map[string]any) string {
	t.Helper()
	payload := map[string]any{
		"title":          "Oil painting",
		"starting_price": "10",
		"bid_increment":  "5",
		"start_time":     startTime.Format(time.RFC3339),
		"end_time":       startTime.Add(time.Hour).Format(time.RFC3339),
	}
	for k, v := range body {
		payload[k] = v
	}

	resp, w := ExecuteRequestAndParse(t, env.router, "POST", "/auctions", "seller", payload)
	require.Equal(t, 201, w.Code, "create: %v", resp)
	auctionID := data(t, resp)["auction_id"].(string)

	resp, w = ExecuteRequestAndParse(t, env.router, "POST", "/auctions/"+auctionID+"/activate", "seller", nil)
	require.Equal(t, 200, w.Code, "activate: %v", resp)
	return auctionID
}
