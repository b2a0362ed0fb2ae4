package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL:    baseURL,
		PageSize:   2,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RatePerSec: 1000,
	})
}

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name      string
		mk        string
		dateField string
		start     string
		end       string
		want      string
	}{
		{
			name:      "make only",
			mk:        "tesla",
			dateField: "report_received_date",
			want:      "upper(make) = 'TESLA'",
		},
		{
			name:      "full window",
			mk:        "TESLA",
			dateField: "report_received_date",
			start:     "2024-01-01",
			end:       "2024-12-31",
			want:      "upper(make) = 'TESLA' AND report_received_date >= '2024-01-01' AND report_received_date <= '2024-12-31'",
		},
		{
			name:      "start only",
			mk:        "Ford",
			dateField: "date_received",
			start:     "2024-06-01",
			want:      "upper(make) = 'FORD' AND date_received >= '2024-06-01'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, whereClause(tt.mk, tt.dateField, tt.start, tt.end))
		})
	}
}

func TestRecalls_Pagination(t *testing.T) {
	// Three records with page size 2: expect two full requests plus one
	// empty page to terminate.
	records := []map[string]any{
		{"nhtsa_id": "24V001", "make": "TESLA"},
		{"nhtsa_id": "24V002", "make": "TESLA"},
		{"nhtsa_id": "24V003", "make": "TESLA"},
	}

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "2", r.URL.Query().Get("$limit"))
		assert.Contains(t, r.URL.Query().Get("$where"), "upper(make) = 'TESLA'")

		offset, err := strconv.Atoi(r.URL.Query().Get("$offset"))
		require.NoError(t, err)

		page := []map[string]any{}
		if offset < len(records) {
			end := min(offset+2, len(records))
			page = records[offset:end]
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.Recalls(context.Background(), Window{Make: "TESLA"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, requests)
	assert.Equal(t, "24V003", got[2]["nhtsa_id"])
}

func TestComplaints_DateFieldAndWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		where := r.URL.Query().Get("$where")
		assert.Contains(t, where, "date_received >= '2024-01-01'")
		assert.Contains(t, where, "date_received <= '2024-12-31'")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.Complaints(context.Background(), Window{Make: "TESLA", Start: "2024-01-01", End: "2024-12-31"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetch_RetriesOn5xx(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.Recalls(context.Background(), Window{Make: "TESLA"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, requests, 2)
}

func TestFetch_FailsFastOn4xx(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Recalls(context.Background(), Window{Make: "TESLA"})
	require.Error(t, err)
	assert.Equal(t, 1, requests)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, DefaultBaseURL, c.opts.BaseURL)
	assert.Equal(t, DefaultRecallsDataset, c.opts.RecallsDataset)
	assert.Equal(t, DefaultComplaintsDataset, c.opts.ComplaintsDataset)
	assert.Equal(t, DefaultPageSize, c.opts.PageSize)
	assert.Equal(t, 3, c.opts.MaxRetries)
}
