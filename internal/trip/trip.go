// Package trip loads the driver's assigned route and drives the status
// update workflow: the status catalog, the per-order history, and the
// validated submit against /set_status.
package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// stampFormat is the timestamp layout the backend expects and returns.
const stampFormat = "2006-01-02 15:04:05"

// Caller is the slice of the API gateway this package needs.
type Caller interface {
	Call(ctx context.Context, path string, body any) (json.RawMessage, error)
}

// Document is one driver credential (license, permit) with its validity
// window.
type Document struct {
	Name     string `json:"name"`
	Number   string `json:"nomer"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

// Driver is the authenticated driver's profile.
type Driver struct {
	FullName string     `json:"fio"`
	Docs     []Document `json:"docs"`
}

// Stop is one waypoint of a trip.
type Stop struct {
	Client    string `json:"client"`
	Note      string `json:"note"`
	Division  string `json:"division"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
	Contacts  string `json:"contacts"`
	OrderID   string `json:"razn_zak_id"`
	ClientID  string `json:"client_id"`
}

// Trip is one assigned run with its waypoints.
type Trip struct {
	Vehicle   string `json:"mam"`
	Number    string `json:"nomer"`
	Info      string `json:"info"`
	DateBegin string `json:"date_begin"`
	DateEnd   string `json:"date_end"`
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
	RouteID   string `json:"razn_id"`
	Stops     []Stop `json:"track"`
}

// Client is one customer selectable on the status form.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Status is one catalog entry from /get_status_dir.
type Status struct {
	ID   string `json:"status_id"`
	Name string `json:"name"`
}

// HistoryEntry is one recorded status change for an order.
type HistoryEntry struct {
	Stamp  string `json:"stamp"`
	Status string `json:"status"`
	Volume string `json:"vol"`
	Note   string `json:"text"`
}

// Board is everything the status screen needs, loaded in one shot.
type Board struct {
	Driver  Driver
	Trips   []Trip
	Clients []Client
	Catalog []Status

	// RouteID and OrderID are the defaults for the status form, taken
	// from the first trip and its first stop.
	RouteID string
	OrderID string
}

// Service talks to the dispatch backend for route and status data.
type Service struct {
	client Caller
	log    zerolog.Logger
}

// NewService creates a Service over the given gateway.
func NewService(client Caller, log zerolog.Logger) *Service {
	return &Service{client: client, log: log}
}

// Info fetches the driver profile and assigned trips.
func (s *Service) Info(ctx context.Context) (Driver, []Trip, error) {
	raw, err := s.client.Call(ctx, "/get_info", nil)
	if err != nil {
		return Driver{}, nil, err
	}
	var reply struct {
		Driver Driver `json:"driver"`
		Route  []Trip `json:"route"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Driver{}, nil, fmt.Errorf("trip: decode /get_info reply: %w", err)
	}
	return reply.Driver, reply.Route, nil
}

// Catalog fetches the status dictionary.
func (s *Service) Catalog(ctx context.Context) ([]Status, error) {
	raw, err := s.client.Call(ctx, "/get_status_dir", nil)
	if err != nil {
		return nil, err
	}
	var reply struct {
		StatusDir []Status `json:"status_dir"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("trip: decode /get_status_dir reply: %w", err)
	}
	return reply.StatusDir, nil
}

// History fetches the status history for one order, newest first, with
// duplicate rows collapsed.
func (s *Service) History(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	if orderID == "" {
		return nil, nil
	}
	raw, err := s.client.Call(ctx, "/get_status", map[string]string{"razn_zak_id": orderID})
	if err != nil {
		return nil, err
	}
	var reply struct {
		StatusList []HistoryEntry `json:"status_list"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("trip: decode /get_status reply: %w", err)
	}
	return DedupeHistory(reply.StatusList), nil
}

// Bootstrap composes Info and Catalog into a ready Board: trips are
// flattened into the unique client list in first-occurrence order, and
// the form defaults point at the first trip and its first stop.
func (s *Service) Bootstrap(ctx context.Context) (*Board, error) {
	driver, trips, err := s.Info(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	board := &Board{Driver: driver, Trips: trips, Catalog: catalog}
	seen := map[string]bool{}
	for _, tr := range trips {
		for _, stop := range tr.Stops {
			if stop.ClientID == "" || stop.Client == "" || seen[stop.ClientID] {
				continue
			}
			seen[stop.ClientID] = true
			board.Clients = append(board.Clients, Client{ID: stop.ClientID, Name: stop.Client})
		}
	}
	if len(trips) > 0 {
		board.RouteID = trips[0].RouteID
		if len(trips[0].Stops) > 0 {
			board.OrderID = trips[0].Stops[0].OrderID
		}
	}
	return board, nil
}

// DedupeHistory sorts entries newest first and collapses rows that share
// both stamp and status name, keeping the first occurrence.
func DedupeHistory(entries []HistoryEntry) []HistoryEntry {
	sorted := make([]HistoryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return parseStamp(sorted[i].Stamp).After(parseStamp(sorted[j].Stamp))
	})

	seen := map[string]bool{}
	out := sorted[:0]
	for _, e := range sorted {
		key := e.Stamp + "\x00" + e.Status
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// ReconcileSelectedStatus maps the newest history entry back onto the
// catalog: an exact name match yields that status id, anything else
// yields empty so the form shows no preselection.
func ReconcileSelectedStatus(history []HistoryEntry, catalog []Status) string {
	if len(history) == 0 {
		return ""
	}
	latest := history[0].Status
	for _, st := range catalog {
		if st.Name == latest {
			return st.ID
		}
	}
	return ""
}

func parseStamp(s string) time.Time {
	t, err := time.ParseInLocation(stampFormat, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Form is one status update to submit.
type Form struct {
	Stamp    time.Time
	StatusID string
	ClientID string
	RouteID  string
	OrderID  string
	Volume   string
	Note     string
}

// ValidationError reports a form field the user must fix. Submit never
// touches the network while one is outstanding.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("trip: invalid %s: %s", e.Field, e.Reason)
}

// SubmitError is a rejection from the backend.
type SubmitError struct {
	Code int
	Text string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("trip: set_status rejected (code %d): %s", e.Code, e.Text)
}

func (f Form) validate() error {
	switch {
	case f.StatusID == "":
		return &ValidationError{Field: "status", Reason: "a status must be selected"}
	case f.ClientID == "":
		return &ValidationError{Field: "client", Reason: "a client must be selected"}
	case f.RouteID == "":
		return &ValidationError{Field: "route", Reason: "no active route"}
	case f.OrderID == "":
		return &ValidationError{Field: "order", Reason: "no active order"}
	case f.Stamp.IsZero():
		return &ValidationError{Field: "stamp", Reason: "a timestamp is required"}
	}
	if f.Volume != "" {
		d, err := decimal.NewFromString(f.Volume)
		if err != nil {
			return &ValidationError{Field: "volume", Reason: "not a number"}
		}
		if d.IsNegative() {
			return &ValidationError{Field: "volume", Reason: "must not be negative"}
		}
	}
	return nil
}

// SubmitStatus validates the form and posts it. The backend reply is a
// status envelope; only code 0 counts as success.
func (s *Service) SubmitStatus(ctx context.Context, f Form) error {
	if err := f.validate(); err != nil {
		return err
	}

	body := map[string]string{
		"apply_stamp_status": f.Stamp.Format(stampFormat),
		"status_id":          f.StatusID,
		"client_id":          f.ClientID,
		"razn_id":            f.RouteID,
		"vol":                f.Volume,
		"info":               f.Note,
	}
	raw, err := s.client.Call(ctx, "/set_status", body)
	if err != nil {
		return err
	}

	var reply struct {
		Status *struct {
			Code int    `json:"code"`
			Text string `json:"text"`
		} `json:"status"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("trip: decode /set_status reply: %w", err)
	}
	if reply.Status == nil {
		return &SubmitError{Code: -1, Text: "missing status envelope"}
	}
	if reply.Status.Code != 0 {
		return &SubmitError{Code: reply.Status.Code, Text: reply.Status.Text}
	}

	s.log.Info().Str("status_id", f.StatusID).Str("order_id", f.OrderID).Msg("trip: status submitted")
	return nil
}

// Refresh reloads history and catalog together after a submit, so the
// caller can replace its view wholesale. The two fetches run
// concurrently; either failure is reported.
func (s *Service) Refresh(ctx context.Context, orderID string) ([]HistoryEntry, []Status, error) {
	var (
		wg      sync.WaitGroup
		history []HistoryEntry
		catalog []Status
		hErr    error
		cErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		history, hErr = s.History(ctx, orderID)
	}()
	go func() {
		defer wg.Done()
		catalog, cErr = s.Catalog(ctx)
	}()
	wg.Wait()

	if err := errors.Join(hErr, cErr); err != nil {
		return nil, nil, err
	}
	return history, catalog, nil
}
