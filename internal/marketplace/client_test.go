package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testOptions(baseURL string) Options {
	return Options{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}
}

func TestRequestProbesCandidatesAndMemoizes(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		// Only the v3 path with Bearer auth is live on this fake upstream.
		if r.URL.Path != "/api/v3/warehouses" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":507,"name":"Koledino","region":"Moscow"}]}`))
	}))
	defer srv.Close()

	c := New("key-1", testOptions(srv.URL))

	whs, err := c.Warehouses(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(whs) != 1 || whs[0].ID != "507" || whs[0].Name != "Koledino" {
		t.Fatalf("unexpected warehouses: %+v", whs)
	}
	probes := len(hits)
	if probes < 2 {
		t.Fatalf("expected the probe to walk past dead candidates, got %d requests", probes)
	}

	// Second call must reuse the resolved endpoint, no re-probing.
	if _, err := c.Warehouses(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := len(hits) - probes; got != 1 {
		t.Fatalf("expected 1 request after resolution, got %d", got)
	}
	if c.Degraded() {
		t.Fatal("client must not be degraded after a live response")
	}
}

func TestAllCandidatesRejectedMeansInvalidCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.AllowDemoFallback = true // must not absorb credential errors

	c := New("bad-key", opts)
	_, err := c.Warehouses(context.Background())
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("want ErrInvalidCredential, got %v", err)
	}
	if c.Degraded() {
		t.Fatal("credential rejection must not trigger demo fallback")
	}

	ok, err := c.ValidateCredential(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatal("rejected credential validated as ok")
	}
}

func TestRateLimitedSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.AllowDemoFallback = true

	c := New("key-1", opts)
	_, err := c.SupplySlots(context.Background(), 7)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
}

func TestUnreachableUpstreamFallsBackWhenAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens here anymore

	opts := testOptions(srv.URL)
	opts.AllowDemoFallback = true

	c := New("key-1", opts)
	slots, err := c.SupplySlots(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected demo slots after fallback")
	}
	if !c.Degraded() {
		t.Fatal("client should report degraded after fallback")
	}
}

func TestUnreachableUpstreamErrorsWhenFallbackDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New("key-1", testOptions(srv.URL))
	_, err := c.SupplySlots(context.Background(), 7)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if c.Degraded() {
		t.Fatal("client must not degrade with fallback disabled")
	}
}

func TestBookUpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error":"slot already taken"}`))
	}))
	defer srv.Close()

	c := New("key-1", testOptions(srv.URL))
	err := c.Book(context.Background(), "slot-9")
	var be *BookingError
	if !errors.As(err, &be) {
		t.Fatalf("want BookingError, got %v", err)
	}
	if be.Message != "slot already taken" {
		t.Fatalf("unexpected message %q", be.Message)
	}
}

func TestDemoBookOutcomes(t *testing.T) {
	roll := 0.0
	c := New("key-1", Options{
		ForceDemo: true,
		BookRand:  func() float64 { return roll },
	})

	if err := c.Book(context.Background(), "demo-507-20260826"); err != nil {
		t.Fatalf("roll below success rate must book: %v", err)
	}

	roll = 0.99
	err := c.Book(context.Background(), "demo-507-20260826")
	var be *BookingError
	if !errors.As(err, &be) {
		t.Fatalf("roll above success rate must reject with BookingError, got %v", err)
	}
}

func TestDemoSlotsDeterministic(t *testing.T) {
	c := New("key-1", Options{ForceDemo: true})

	a, err := c.SupplySlots(context.Background(), 14)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, err := c.SupplySlots(context.Background(), 14)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("demo sets differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Coefficient != b[i].Coefficient {
			t.Fatalf("slot %d differs between fetches", i)
		}
	}
	if ok, err := c.ValidateCredential(context.Background()); err != nil || !ok {
		t.Fatalf("forced demo must accept any credential, got ok=%v err=%v", ok, err)
	}
}
