package gsheets_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/gsheets"
	"github.com/boddenberg/fleetpay-go/internal/infra/resilience"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

// fakeSheets answers the subset of the Sheets v4 values API the provider uses.
type fakeSheets struct {
	mu     sync.Mutex
	tabs   map[string][][]any
	writes []string
	// lostAppends commits the next appends but answers them with a 503.
	lostAppends int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1")
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.tabs[rq.AddSheet.Properties.Title] = nil
		}
		writeJSON(w, http.StatusOK, map[string]any{"spreadsheetId": "sheet-1"})
		return
	case strings.HasPrefix(path, "/values/"):
	default:
		http.NotFound(w, r)
		return
	}

	rng := strings.TrimPrefix(path, "/values/")
	action := ""
	if i := strings.Index(rng, ":"); i >= 0 {
		rng, action = rng[:i], rng[i+1:]
	}
	tab := rng
	if i := strings.Index(tab, "!"); i >= 0 {
		tab = tab[:i]
	}

	rows, ok := f.tabs[tab]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"code": 400, "message": "Unable to parse range: " + tab},
		})
		return
	}

	switch action {
	case "":
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"range": tab, "values": rows})
			return
		}
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.tabs[tab] = body.Values
		f.writes = append(f.writes, "update:"+tab)
		writeJSON(w, http.StatusOK, map[string]any{"updatedRange": tab})
	case "clear":
		f.tabs[tab] = nil
		f.writes = append(f.writes, "clear:"+tab)
		writeJSON(w, http.StatusOK, map[string]any{"clearedRange": tab})
	case "append":
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.tabs[tab] = append(f.tabs[tab], body.Values...)
		f.writes = append(f.writes, "append:"+tab)
		if f.lostAppends > 0 {
			f.lostAppends--
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": map[string]any{"code": 503, "message": "backend unavailable"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tableRange": tab})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newProvider(t *testing.T, fake *fakeSheets) *gsheets.Provider {
	t.Helper()
	return newProviderWithGuard(t, fake, resilience.NewGuard("sheets", resilience.Config{MaxConcurrency: 4}))
}

func newProviderWithGuard(t *testing.T, fake *fakeSheets, guard *resilience.Guard) *gsheets.Provider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p, err := gsheets.New(context.Background(),
		gsheets.Config{SpreadsheetID: "sheet-1"},
		guard,
		zap.NewNop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return p
}

func TestProvider_ReadRows(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{
		"riders": {{"id", "name", "supervisor"}, {"R1", "Ali", "S1"}},
	}}
	p := newProvider(t, fake)

	rows, err := p.ReadRows(context.Background(), sheet.TableRiders)
	require.NoError(t, err)
	riders, _ := sheet.ParseRiders(rows)
	require.Len(t, riders, 1)
	assert.Equal(t, "S1", riders[0].SupervisorCode)
}

func TestProvider_MissingTab(t *testing.T) {
	p := newProvider(t, &fakeSheets{tabs: map[string][][]any{}})

	_, err := p.ReadRows(context.Background(), sheet.TableAdvances)
	var missing *domain.ErrTableMissing
	require.True(t, errors.As(err, &missing), "got %v", err)
}

func TestProvider_WriteClearsThenUpdates(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{
		"performance": {{"date", "rider_id"}, {"2024-01-05", "R1"}},
	}}
	p := newProvider(t, fake)

	err := p.WriteRows(context.Background(), sheet.TablePerformance, sheet.HeaderOnly(sheet.PerformanceSchema))
	require.NoError(t, err)

	assert.Equal(t, []string{"clear:performance", "update:performance"}, fake.writes)
	assert.Len(t, fake.tabs["performance"], 1)
}

func TestProvider_AppendToMissingTabAddsHeader(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{}}
	p := newProvider(t, fake)

	rows := sheet.EncodeAdvances([]domain.AdvanceRecord{{RiderID: "R1", Amount: 100, Date: "2024-01-03"}})
	require.NoError(t, p.AppendRows(context.Background(), sheet.TableAdvances, rows))

	got := fake.tabs["advances"]
	require.Len(t, got, 2)
	assert.Equal(t, "rider_id", got[0][0])
}

func TestProvider_AppendIsNotRetriedAfterCommit(t *testing.T) {
	fake := &fakeSheets{
		tabs:        map[string][][]any{"advances": sheet.HeaderOnly(sheet.AdvancesSchema)},
		lostAppends: 1,
	}
	p := newProviderWithGuard(t, fake, resilience.NewGuard("sheets", resilience.Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxConcurrency: 4,
	}))

	rows := sheet.EncodeAdvances([]domain.AdvanceRecord{{RiderID: "R1", Amount: 100, Date: "2024-01-03"}})
	err := p.AppendRows(context.Background(), sheet.TableAdvances, rows)

	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext), "got %v", err)
	assert.Equal(t, []string{"append:advances"}, fake.writes)
	assert.Len(t, fake.tabs["advances"], 2)
}
