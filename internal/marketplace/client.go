package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/example/wb-supply-bot/internal/supply"
)

type Options struct {
	BaseURL   string
	BackupURL string
	Timeout   time.Duration

	// ForceDemo serves the demo dataset unconditionally. AllowDemoFallback
	// permits switching to it after the real API proves unreachable; with
	// both off, unreachability is an error, never substituted data.
	ForceDemo         bool
	AllowDemoFallback bool

	// UseBackupURL makes the backup base URL the first choice.
	UseBackupURL bool

	// Candidates overrides the endpoint/auth probe table (tests).
	Candidates map[Category][]Candidate

	// DemoBookSuccessRate is the booking success probability in demo mode.
	DemoBookSuccessRate float64

	// BookRand overrides the demo booking randomness source (tests).
	BookRand func() float64
}

// Client wraps the supplier API for a single credential. Endpoint resolution
// is memoized per operation category; a transport failure is retried once
// against the backup base URL before the demo fallback policy applies.
type Client struct {
	rc     *resty.Client
	opts   Options
	apiKey string
	log    *logrus.Entry

	mu       sync.Mutex
	resolved map[Category]Candidate
	degraded bool
}

func New(apiKey string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Candidates == nil {
		opts.Candidates = DefaultCandidates()
	}
	if opts.DemoBookSuccessRate <= 0 {
		opts.DemoBookSuccessRate = 0.7
	}
	c := &Client{
		rc:       resty.New().SetTimeout(opts.Timeout).SetHeader("Content-Type", "application/json"),
		opts:     opts,
		apiKey:   apiKey,
		log:      logrus.WithField("component", "marketplace"),
		resolved: make(map[Category]Candidate),
		degraded: opts.ForceDemo,
	}
	return c
}

// Degraded reports whether the client is serving demo data instead of the
// real API.
func (c *Client) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

func (c *Client) demoActive() bool {
	return c.opts.ForceDemo || c.Degraded()
}

func (c *Client) bookRand() float64 {
	if c.opts.BookRand != nil {
		return c.opts.BookRand()
	}
	return rand.Float64()
}

// ValidateCredential probes the credential against the upstream. A fully
// unreachable upstream with fallback permitted counts as success in degraded
// mode; explicit auth rejection is a clean false.
func (c *Client) ValidateCredential(ctx context.Context) (bool, error) {
	if c.opts.ForceDemo {
		return true, nil
	}
	if _, err := c.Warehouses(ctx); err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type warehousesResponse struct {
	Data []struct {
		ID      any    `json:"id"`
		Name    string `json:"name"`
		Region  string `json:"region"`
		Address string `json:"address"`
		Active  *bool  `json:"isActive"`
	} `json:"data"`
}

func (c *Client) Warehouses(ctx context.Context) ([]supply.Warehouse, error) {
	if c.demoActive() {
		return c.demoWarehouseList(), nil
	}
	var out warehousesResponse
	if err := c.request(ctx, OpWarehouses, http.MethodGet, nil, nil, &out); err != nil {
		if c.fallback(err) {
			return c.demoWarehouseList(), nil
		}
		return nil, err
	}
	whs := make([]supply.Warehouse, 0, len(out.Data))
	for _, it := range out.Data {
		active := it.Active == nil || *it.Active
		whs = append(whs, supply.Warehouse{
			ID:      anyToString(it.ID),
			Name:    it.Name,
			Region:  it.Region,
			Address: it.Address,
			Active:  active,
		})
	}
	return whs, nil
}

type slotsResponse struct {
	Data []struct {
		ID            any     `json:"id"`
		WarehouseID   any     `json:"warehouseId"`
		WarehouseName string  `json:"warehouseName"`
		Date          string  `json:"date"`
		TimeStart     string  `json:"timeStart"`
		TimeEnd       string  `json:"timeEnd"`
		Coefficient   float64 `json:"coefficient"`
		Available     *bool   `json:"isAvailable"`
		Region        string  `json:"region"`
	} `json:"data"`
}

// SupplySlots returns available slots within the forward horizon.
func (c *Client) SupplySlots(ctx context.Context, horizonDays int) ([]supply.Slot, error) {
	if horizonDays <= 0 {
		horizonDays = 14
	}
	if c.demoActive() {
		return c.demoSlotList(horizonDays), nil
	}

	from := time.Now()
	to := from.AddDate(0, 0, horizonDays)
	params := map[string]string{
		"dateFrom": from.Format("2006-01-02"),
		"dateTo":   to.Format("2006-01-02"),
	}

	var out slotsResponse
	if err := c.request(ctx, OpSlots, http.MethodGet, params, nil, &out); err != nil {
		if c.fallback(err) {
			return c.demoSlotList(horizonDays), nil
		}
		return nil, err
	}

	slots := make([]supply.Slot, 0, len(out.Data))
	for _, it := range out.Data {
		if it.Available != nil && !*it.Available {
			continue
		}
		date, err := parseSlotDate(it.Date)
		if err != nil {
			c.log.WithError(err).Debugf("skipping slot with bad date %q", it.Date)
			continue
		}
		slots = append(slots, supply.Slot{
			ID:            anyToString(it.ID),
			WarehouseID:   anyToString(it.WarehouseID),
			WarehouseName: it.WarehouseName,
			Date:          date,
			TimeStart:     it.TimeStart,
			TimeEnd:       it.TimeEnd,
			Coefficient:   it.Coefficient,
			Available:     true,
			Region:        it.Region,
		})
	}
	return slots, nil
}

type bookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Book books a slot by its ID from the current fetch. Every non-success path
// returns a typed error; booking never silently reports false.
func (c *Client) Book(ctx context.Context, slotID string) error {
	if c.demoActive() {
		return c.demoBook(slotID)
	}

	var out bookResponse
	err := c.request(ctx, OpBooking, http.MethodPost, nil, map[string]string{"slotId": slotID}, &out)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrRateLimited) {
			return err
		}
		return &BookingError{Message: "booking request failed", Err: err}
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "rejected by upstream"
		}
		return &BookingError{Message: msg}
	}
	return nil
}

type bookedResponse struct {
	Data []struct {
		SlotID        any    `json:"slotId"`
		WarehouseName string `json:"warehouseName"`
		Date          string `json:"date"`
	} `json:"data"`
}

// BookedUpstream lists bookings as the upstream sees them (admin diagnostics).
type BookedUpstream struct {
	SlotID        string
	WarehouseName string
	Date          string
}

func (c *Client) Booked(ctx context.Context) ([]BookedUpstream, error) {
	if c.demoActive() {
		return nil, nil
	}
	var out bookedResponse
	if err := c.request(ctx, OpBooked, http.MethodGet, nil, nil, &out); err != nil {
		if c.fallback(err) {
			return nil, nil
		}
		return nil, err
	}
	items := make([]BookedUpstream, 0, len(out.Data))
	for _, it := range out.Data {
		items = append(items, BookedUpstream{
			SlotID:        anyToString(it.SlotID),
			WarehouseName: it.WarehouseName,
			Date:          it.Date,
		})
	}
	return items, nil
}

// fallback decides whether an error may be absorbed by switching to demo
// data. Credential and rate-limit errors are always surfaced.
func (c *Client) fallback(err error) bool {
	if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrRateLimited) {
		return false
	}
	if !c.opts.AllowDemoFallback {
		return false
	}
	c.mu.Lock()
	already := c.degraded
	c.degraded = true
	c.mu.Unlock()
	if !already {
		c.log.WithError(err).Warn("upstream unavailable, switching to demo data")
	}
	return true
}

// request executes one logical operation. An already-resolved candidate is
// reused; otherwise candidates are probed in order and the winner memoized.
// 404 means wrong endpoint shape, 401 means wrong auth scheme for that
// endpoint; both keep the probe going. Any other decisive status pins the
// candidate.
func (c *Client) request(ctx context.Context, cat Category, method string, params map[string]string, body, out any) error {
	c.mu.Lock()
	cand, ok := c.resolved[cat]
	c.mu.Unlock()

	if ok {
		resp, err := c.attempt(ctx, cand, method, params, body, out)
		if err != nil {
			return &TransportError{Err: err}
		}
		return statusError(resp.StatusCode(), resp.Body())
	}

	var lastErr error
	sawAuthReject := false
	for _, cand := range c.opts.Candidates[cat] {
		resp, err := c.attempt(ctx, cand, method, params, body, out)
		if err != nil {
			lastErr = &TransportError{Err: err}
			continue
		}
		switch resp.StatusCode() {
		case http.StatusNotFound:
			lastErr = statusError(resp.StatusCode(), resp.Body())
			continue
		case http.StatusUnauthorized:
			sawAuthReject = true
			lastErr = ErrInvalidCredential
			continue
		default:
			c.mu.Lock()
			c.resolved[cat] = cand
			c.mu.Unlock()
			c.log.Debugf("resolved %s via %s", cat, cand.Path)
			return statusError(resp.StatusCode(), resp.Body())
		}
	}
	if sawAuthReject {
		return ErrInvalidCredential
	}
	if lastErr == nil {
		lastErr = &TransportError{Err: errors.New("no endpoint candidates configured")}
	}
	return lastErr
}

// attempt runs one HTTP call, retrying once against the other base URL on a
// transport-level failure.
func (c *Client) attempt(ctx context.Context, cand Candidate, method string, params map[string]string, body, out any) (*resty.Response, error) {
	bases := []string{c.opts.BaseURL, c.opts.BackupURL}
	if c.opts.UseBackupURL {
		bases[0], bases[1] = bases[1], bases[0]
	}

	var lastErr error
	for _, base := range bases {
		if base == "" {
			continue
		}
		resp, err := c.do(ctx, base, cand, method, params, body, out)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, base string, cand Candidate, method string, params map[string]string, body, out any) (*resty.Response, error) {
	r := c.rc.R().SetContext(ctx)
	switch cand.Auth {
	case AuthBearer:
		r.SetHeader("Authorization", "Bearer "+c.apiKey)
	case AuthRawHeader:
		r.SetHeader("Authorization", c.apiKey)
	case AuthHeaderKey:
		r.SetHeader("X-Api-Key", c.apiKey)
	}
	if params != nil {
		r.SetQueryParams(params)
	}
	if body != nil {
		r.SetBody(body)
	}
	if out != nil {
		r.SetResult(out)
	}
	url := strings.TrimSuffix(base, "/") + cand.Path
	return r.Execute(method, url)
}

func parseSlotDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// anyToString normalizes IDs the upstream serves inconsistently as either
// JSON strings or numbers.
func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
