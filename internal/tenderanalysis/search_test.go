package tenderanalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDatastore(t *testing.T, srv *httptest.Server) *DatastoreSource {
	t.Helper()
	d := NewDatastoreSource(DatastoreConfig{BaseURL: srv.URL, HTTPClient: srv.Client(), RateLimitPerMinute: 60000})
	d.api.sleep = noSleep
	t.Cleanup(d.Close)
	return d
}

func TestDatastoreSourcePaginates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != datastoreSearchAPI {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("resource_id") != GeBIZResourceID || q.Get("q") != "software" {
			t.Errorf("unexpected query %v", q)
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		records := []map[string]any{}
		for i := offset; i < offset+limit && i < 5; i++ {
			records = append(records, map[string]any{"tender_no": fmt.Sprintf("T%d", i), "awarded_amt": "1000"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]any{"records": records, "total": 5}})
	}))
	defer srv.Close()

	d := newTestDatastore(t, srv)
	out, err := d.Search(context.Background(), "software", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("expected all 5 records, got %d", len(out))
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one page when total reached, got %d calls", calls)
	}
}

func TestDatastoreSourceRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"result":{"records":[{"tender_no":"A"}],"total":1}}`))
	}))
	defer srv.Close()

	d := newTestDatastore(t, srv)
	var slept time.Duration
	d.api.sleep = func(_ context.Context, dur time.Duration) error { slept = dur; return nil }
	out, err := d.Search(context.Background(), "x", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || slept != time.Second {
		t.Fatalf("expected retry honoring Retry-After, out=%d slept=%s", len(out), slept)
	}
}

func TestDatastoreSourceFailsFastOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad resource", http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newTestDatastore(t, srv)
	if _, err := d.Search(context.Background(), "x", 10); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected no retries on 400, got %d calls", calls)
	}
}

func TestDatastoreSourceSuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":{"message":"resource not found"}}`))
	}))
	defer srv.Close()

	d := newTestDatastore(t, srv)
	_, err := d.Search(context.Background(), "x", 10)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestTEDSourcePostsQuery(t *testing.T) {
	var body tedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != tedSearchAPI {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		_, _ = w.Write([]byte(`{"notices":[{"publication-number":"123-2024","BT-711-LotResult":["250000"],"TI":{"eng":"IT services"}}],"totalNoticeCount":1}`))
	}))
	defer srv.Close()

	src := NewTEDSource(TEDConfig{BaseURL: srv.URL, HTTPClient: srv.Client(), RateLimitPerMinute: 60000})
	defer src.Close()
	out, err := src.Search(context.Background(), "software", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(out))
	}
	if body.Query != `description-glo ~ "software"` || body.PaginationMode != "PAGE_NUMBER" || body.Limit != 5 || body.Page != 1 {
		t.Fatalf("unexpected request %+v", body)
	}
	if TEDFields.ID(out[0]) != "123-2024" || TEDFields.DescriptionText(out[0]) != "IT services" {
		t.Fatalf("unexpected record accessors for %v", out[0])
	}
	if amt := Normalize(TEDFields.PriceValue(out[0])); amt.Value() != 250000 {
		t.Fatalf("unexpected price %v", amt)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Fatalf("got %s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("got %s", got)
	}
}
