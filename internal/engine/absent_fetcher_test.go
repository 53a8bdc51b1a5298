package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAbsentRegionsFetcherReturnsRegions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"absentRegions": []string{"Germany", "Poland"}})
	}))
	defer srv.Close()

	f := NewHTTPAbsentRegionsFetcher(srv.URL, zerolog.Nop())
	f.GenerateRequest(testCheckpoints())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	regions := f.GetAbsentCountries(ctx)
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %v", regions)
	}
}

func TestAbsentRegionsFetcherDisabledWhenNoBaseURL(t *testing.T) {
	f := NewHTTPAbsentRegionsFetcher("", zerolog.Nop())
	f.GenerateRequest(testCheckpoints())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if regions := f.GetAbsentCountries(ctx); regions != nil {
		t.Fatalf("expected nil regions when disabled, got %v", regions)
	}
}

func TestAbsentRegionsFetcherHonorsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	f := NewHTTPAbsentRegionsFetcher(srv.URL, zerolog.Nop())
	f.GenerateRequest(testCheckpoints())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if regions := f.GetAbsentCountries(ctx); regions != nil {
		t.Fatalf("expected nil on context deadline, got %v", regions)
	}
}
