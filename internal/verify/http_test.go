package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/stancewatch/internal/model"
)

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcherSuccess(t *testing.T) {
	srv := jsonServer(t, 200, `{"price": 187.2, "as_of": "2026-03-01T12:00:00Z"}`)
	f := NewHTTPFetcher(map[model.DataCategory][]string{
		model.CategoryMarket: {srv.URL + "/quote?q={query}"},
	}, nil)

	res, err := f.Fetch(context.Background(), model.CategoryMarket, "AAPL price", FetchOptions{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("expected OK, got error %q", res.Err)
	}
	if res.Data["price"] != 187.2 {
		t.Errorf("unexpected data %v", res.Data)
	}
	if !res.AsOf.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("expected provider as_of, got %s", res.AsOf)
	}
	if len(res.Citations) != 1 || !strings.Contains(res.Citations[0], "q=AAPL+price") {
		t.Errorf("unexpected citations %v", res.Citations)
	}
}

func TestHTTPFetcherFallsBackToHealthyProvider(t *testing.T) {
	bad := jsonServer(t, 500, `oops`)
	good := jsonServer(t, 200, `{"rate": 0.92}`)
	f := NewHTTPFetcher(map[model.DataCategory][]string{
		model.CategoryFX: {bad.URL + "/fx", good.URL + "/fx"},
	}, nil)

	res, err := f.Fetch(context.Background(), model.CategoryFX, "EUR", FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Data["rate"] != 0.92 {
		t.Fatalf("expected data from healthy provider, got %+v", res)
	}
	if len(res.Citations) != 1 || !strings.HasPrefix(res.Citations[0], good.URL) {
		t.Errorf("expected only the healthy provider cited, got %v", res.Citations)
	}
}

func TestHTTPFetcherAllProvidersFail(t *testing.T) {
	bad := jsonServer(t, 503, ``)
	garbled := jsonServer(t, 200, `not json`)
	f := NewHTTPFetcher(map[model.DataCategory][]string{
		model.CategoryCrypto: {bad.URL, garbled.URL},
	}, nil)

	res, err := f.Fetch(context.Background(), model.CategoryCrypto, "btc", FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("expected not OK")
	}
	if !strings.Contains(res.Err, "HTTP 503") || !strings.Contains(res.Err, "decode") {
		t.Errorf("expected both failures reported, got %q", res.Err)
	}
}

func TestHTTPFetcherNoProvider(t *testing.T) {
	f := NewHTTPFetcher(nil, nil)
	res, err := f.Fetch(context.Background(), model.CategoryWeather, "Paris", FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || !strings.Contains(res.Err, "no provider") {
		t.Errorf("expected no-provider error, got %+v", res)
	}
}

func TestHTTPFetcherRespectsMaxSources(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(map[model.DataCategory][]string{
		model.CategoryGeneral: {srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"},
	}, nil)
	if _, err := f.Fetch(context.Background(), model.CategoryGeneral, "x", FetchOptions{MaxSources: 2}); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 provider calls, got %d", hits.Load())
	}
}

func TestHTTPFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(map[model.DataCategory][]string{model.CategoryMarket: {srv.URL}}, nil)
	start := time.Now()
	_, err := f.Fetch(context.Background(), model.CategoryMarket, "x", FetchOptions{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("fetch did not honor timeout")
	}
}

func TestHTTPFetcherDateHeaderAsOf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", "Sun, 01 Mar 2026 10:00:00 GMT")
		w.Write([]byte(`{"temp_c": 12}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(map[model.DataCategory][]string{model.CategoryWeather: {srv.URL}}, nil)
	res, _ := f.Fetch(context.Background(), model.CategoryWeather, "Oslo", FetchOptions{})
	if !res.AsOf.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected Date header as as-of, got %s", res.AsOf)
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		tmpl, query, want string
	}{
		{"https://t.example/api/{path}", "America/New_York", "https://t.example/api/America/New_York"},
		{"https://t.example/api/{path}", "Etc/GMT+5", "https://t.example/api/Etc/GMT+5"},
		{"https://s.example/q?s={query}", "a b&c", "https://s.example/q?s=a+b%26c"},
		{"https://s.example/{path}", " Paris ", "https://s.example/Paris"},
	}
	for _, tt := range tests {
		if got := expand(tt.tmpl, tt.query); got != tt.want {
			t.Errorf("expand(%q, %q) = %q, want %q", tt.tmpl, tt.query, got, tt.want)
		}
	}
}

func TestTimeSourceThroughHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zone := strings.TrimPrefix(r.URL.Path, "/api/timezone/")
		w.Write([]byte(`{"timezone": "` + zone + `", "datetime": "2026-03-01T21:00:00+09:00"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(map[model.DataCategory][]string{
		model.CategoryTime: {srv.URL + "/api/timezone/{path}"},
	}, nil)
	src := timeSource{fetcher: f, now: time.Now}
	zt, err := src.ZoneTime(context.Background(), "Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	if zt.Zone != "Asia/Tokyo" || zt.Time.IsZero() {
		t.Errorf("unexpected zone time %+v", zt)
	}
	if !strings.HasPrefix(zt.Source, srv.URL) {
		t.Errorf("expected provider cited, got %q", zt.Source)
	}
}
