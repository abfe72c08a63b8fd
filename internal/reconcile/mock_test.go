package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/parish-cli/internal/parish"
	"github.com/sells-group/parish-cli/pkg/google"
)

// mockStore is an in-memory parish.Store.
type mockStore struct {
	mu        sync.Mutex
	records   map[string]*parish.Record
	nextID    int
	runs      []*parish.Run
	completed []*parish.Run

	findErr   error
	createErr error
	updateErr error
	batchErr  error

	createCalls int
	updateCalls int
	batchCalls  int
	batchSizes  []int
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]*parish.Record)}
}

func (m *mockStore) seed(r *parish.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		m.nextID++
		r.ID = fmt.Sprintf("seed-%d", m.nextID)
	}
	r.Normalize()
	cp := *r
	m.records[r.ID] = &cp
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockStore) all() []parish.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]parish.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (m *mockStore) bySourceID(id string) *parish.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.SourceID == id {
			cp := *r
			return &cp
		}
	}
	return nil
}

func (m *mockStore) FindBySourceID(_ context.Context, source parish.Source, sourceID string) (*parish.Record, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ImportSource == source && r.SourceID == sourceID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) Create(_ context.Context, r *parish.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextID++
	id := fmt.Sprintf("id-%d", m.nextID)
	cp := *r
	cp.ID = id
	m.records[id] = &cp
	return id, nil
}

func (m *mockStore) Update(_ context.Context, r *parish.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.records[r.ID]; !ok {
		return parish.ErrNotFound
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockStore) BatchUpdate(_ context.Context, records []*parish.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(records))
	if m.batchErr != nil {
		return m.batchErr
	}
	for _, r := range records {
		cp := *r
		m.records[r.ID] = &cp
	}
	return nil
}

func (m *mockStore) Get(_ context.Context, id string) (*parish.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, parish.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) List(_ context.Context, _ parish.ListFilter) ([]parish.Record, error) {
	return m.all(), nil
}

func (m *mockStore) CreateRun(_ context.Context, kind, target string) (*parish.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &parish.Run{
		ID:        fmt.Sprintf("run-%d", len(m.runs)+1),
		Kind:      kind,
		Target:    target,
		Status:    parish.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *mockStore) CompleteRun(_ context.Context, run *parish.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.completed = append(m.completed, &cp)
	return nil
}

func (m *mockStore) Migrate(_ context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }

// mockPlaces is a hand-rolled google.Client keyed by query text.
type mockPlaces struct {
	mu          sync.Mutex
	pages       map[string][]*google.TextSearchResponse
	searchErr   map[string]error
	details     map[string]*google.PlaceDetails
	detailErr   map[string]error
	onDetails   func(placeID string)
	onSearch    func(query string)
	searchReqs  []google.TextSearchRequest
	detailCalls []string
}

func newMockPlaces() *mockPlaces {
	return &mockPlaces{
		pages:     make(map[string][]*google.TextSearchResponse),
		searchErr: make(map[string]error),
		details:   make(map[string]*google.PlaceDetails),
		detailErr: make(map[string]error),
	}
}

// respond registers a single page of places for query.
func (m *mockPlaces) respond(query string, places ...google.Place) {
	m.pages[query] = []*google.TextSearchResponse{{Places: places}}
}

func (m *mockPlaces) TextSearch(_ context.Context, req google.TextSearchRequest) (*google.TextSearchResponse, error) {
	m.mu.Lock()
	m.searchReqs = append(m.searchReqs, req)
	hook := m.onSearch
	m.mu.Unlock()

	if hook != nil {
		hook(req.TextQuery)
	}
	if err := m.searchErr[req.TextQuery]; err != nil {
		return nil, err
	}
	pages := m.pages[req.TextQuery]
	if len(pages) == 0 {
		return &google.TextSearchResponse{}, nil
	}
	idx := 0
	if req.PageToken != "" {
		if _, err := fmt.Sscanf(req.PageToken, "page-%d", &idx); err != nil {
			return nil, errors.New("bad page token")
		}
	}
	if idx >= len(pages) {
		return &google.TextSearchResponse{}, nil
	}
	return pages[idx], nil
}

func (m *mockPlaces) PlaceDetails(_ context.Context, placeID string) (*google.PlaceDetails, error) {
	m.mu.Lock()
	m.detailCalls = append(m.detailCalls, placeID)
	hook := m.onDetails
	m.mu.Unlock()

	if hook != nil {
		hook(placeID)
	}
	if err := m.detailErr[placeID]; err != nil {
		return nil, err
	}
	if d, ok := m.details[placeID]; ok {
		return d, nil
	}
	return &google.PlaceDetails{ID: placeID}, nil
}

func (m *mockPlaces) searchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searchReqs)
}

// mockSheets returns fixed values for any spreadsheet.
type mockSheets struct {
	values [][]string
	err    error
	gotID  string
}

func (m *mockSheets) Values(_ context.Context, spreadsheetID, _ string) ([][]string, error) {
	m.gotID = spreadsheetID
	return m.values, m.err
}

func place(id, name, addr string) google.Place {
	return google.Place{
		ID:               id,
		DisplayName:      google.DisplayName{Text: name},
		FormattedAddress: addr,
		Location:         google.LatLng{Latitude: 6.6, Longitude: 3.35},
	}
}
