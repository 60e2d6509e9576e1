package status

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/backfill"
	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/feed"
)

type fakeFeed struct {
	state    feed.State
	channels []string
	live     *feed.LiveFeed
}

func (f *fakeFeed) State() feed.State    { return f.state }
func (f *fakeFeed) Channels() []string   { return f.channels }
func (f *fakeFeed) Live() *feed.LiveFeed { return f.live }

type fakeRunner struct {
	running  bool
	runErr   error
	result   *backfill.Result
	gotItems []int
	gotWorld int
}

func (f *fakeRunner) Running() bool { return f.running }

func (f *fakeRunner) RunItems(ctx context.Context, itemIDs []int, worldID int) (*backfill.Result, error) {
	f.gotItems = itemIDs
	f.gotWorld = worldID
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.result, nil
}

type fakeWorlds struct {
	byID   map[int]string
	byName map[string]int
}

func newFakeWorlds() *fakeWorlds {
	return &fakeWorlds{
		byID:   map[int]string{21: "Ravana", 40: "Jenova"},
		byName: map[string]int{"Ravana": 21, "Jenova": 40},
	}
}

func (f *fakeWorlds) WorldID(name string) (int, bool) {
	id, ok := f.byName[name]
	return id, ok
}

func (f *fakeWorlds) WorldName(id int) (string, bool) {
	name, ok := f.byID[id]
	return name, ok
}

func newTestServer(t *testing.T, listings *cache.Listings, sess FeedStatus, runner Backfiller) *httptest.Server {
	t.Helper()
	if listings == nil {
		listings = cache.NewListings(10, time.Hour)
	}
	if sess == nil {
		sess = &fakeFeed{live: feed.NewLiveFeed(8)}
	}
	if runner == nil {
		runner = &fakeRunner{result: &backfill.Result{}}
	}
	server := NewServer(listings, sess, runner, newFakeWorlds(), zap.NewNop())
	srv := httptest.NewServer(NewRouter(server, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusReportsFeedAndCache(t *testing.T) {
	listings := cache.NewListings(10, time.Hour)
	listings.UpdateFromPush(5333, 21, 900, false)
	listings.UpdateFromPush(5333, 40, 450, true)

	sess := &fakeFeed{
		state:    feed.StateConnected,
		channels: []string{"listings/add{world=21}"},
		live:     feed.NewLiveFeed(8),
	}
	runner := &fakeRunner{running: true}
	srv := newTestServer(t, listings, sess, runner)

	var got statusResponse
	resp := getJSON(t, srv.URL+"/v1/status", &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got.Feed.State != "connected" {
		t.Errorf("feed state = %q", got.Feed.State)
	}
	if len(got.Feed.Channels) != 1 {
		t.Errorf("channels = %v", got.Feed.Channels)
	}
	if got.Cache.Entries != 2 || got.Cache.Items != 1 {
		t.Errorf("cache stats = %+v", got.Cache)
	}
	if !got.BackfillRunning {
		t.Error("backfillRunning = false, want true")
	}
}

func TestFeedRecentReturnsRingContents(t *testing.T) {
	live := feed.NewLiveFeed(8)
	live.Add(feed.Event{Kind: feed.KindListingsAdd, ItemID: 5333, WorldID: 21, PricePerUnit: 900})
	live.Add(feed.Event{Kind: feed.KindSalesAdd, ItemID: 4551, WorldID: 40, PricePerUnit: 120})
	sess := &fakeFeed{live: live}
	srv := newTestServer(t, nil, sess, nil)

	var got []feed.Event
	getJSON(t, srv.URL+"/v1/feed/recent", &got)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Newest first.
	if got[0].ItemID != 4551 {
		t.Errorf("got[0].ItemID = %d, want 4551", got[0].ItemID)
	}
}

func TestFeedRecentEmptyRingIsEmptyArray(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	resp, err := http.Get(srv.URL + "/v1/feed/recent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if string(raw) != "[]" {
		t.Errorf("body = %s, want []", raw)
	}
}

func TestItemCrossWorldLowest(t *testing.T) {
	listings := cache.NewListings(10, time.Hour)
	listings.UpdateFromPush(5333, 21, 900, false)
	listings.UpdateFromPush(5333, 40, 450, false)
	srv := newTestServer(t, listings, nil, nil)

	var got itemResponse
	resp := getJSON(t, srv.URL+"/v1/item/5333", &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got.Lowest != 450 {
		t.Errorf("lowest = %d, want 450", got.Lowest)
	}
	if got.WorldName != "Jenova" {
		t.Errorf("worldName = %q, want Jenova", got.WorldName)
	}
}

func TestItemSingleWorldByName(t *testing.T) {
	listings := cache.NewListings(10, time.Hour)
	listings.UpdateFromPush(5333, 21, 900, false)
	listings.UpdateFromPush(5333, 40, 450, false)
	srv := newTestServer(t, listings, nil, nil)

	var got itemResponse
	resp := getJSON(t, srv.URL+"/v1/item/5333?world=Ravana", &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got.Lowest != 900 || got.WorldName != "Ravana" {
		t.Errorf("got lowest=%d world=%q", got.Lowest, got.WorldName)
	}
}

func TestItemErrors(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/v1/item/abc", http.StatusBadRequest},
		{"/v1/item/5333", http.StatusNotFound},
		{"/v1/item/5333?world=Nowhere", http.StatusBadRequest},
		{"/v1/item/5333?world=Ravana", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := getJSON(t, srv.URL+tt.path, nil)
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestBackfillTrigger(t *testing.T) {
	runner := &fakeRunner{result: &backfill.Result{
		Labels:    1,
		Requested: 2,
		Replaced:  2,
		Duration:  1500 * time.Millisecond,
	}}
	srv := newTestServer(t, nil, nil, runner)

	body := bytes.NewReader([]byte(`{"items":[5333,4551],"world":"Ravana"}`))
	resp, err := http.Post(srv.URL+"/v1/backfill", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got backfillResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Replaced != 2 || got.Duration != "1.5s" {
		t.Errorf("response = %+v", got)
	}
	if runner.gotWorld != 21 {
		t.Errorf("world = %d, want 21", runner.gotWorld)
	}
	if len(runner.gotItems) != 2 {
		t.Errorf("items = %v", runner.gotItems)
	}
}

func TestBackfillConflictWhileRunning(t *testing.T) {
	runner := &fakeRunner{runErr: backfill.ErrAlreadyRunning}
	srv := newTestServer(t, nil, nil, runner)

	body := bytes.NewReader([]byte(`{"items":[5333],"world":"21"}`))
	resp, err := http.Post(srv.URL+"/v1/backfill", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestBackfillBadRequests(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"no items", `{"items":[],"world":"Ravana"}`},
		{"unknown world", `{"items":[5333],"world":"Nowhere"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/backfill", "application/json", bytes.NewReader([]byte(tt.body)))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}
