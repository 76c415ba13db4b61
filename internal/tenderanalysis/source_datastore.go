package tenderanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DataGovSGBaseURL = "https://data.gov.sg"
	// GeBIZResourceID is the "Government Procurement via GeBIZ" dataset.
	GeBIZResourceID    = "d_acde1106003906a75c3fa052592f2fcb"
	datastoreSearchAPI = "/api/action/datastore_search"
	datastoreMaxLimit  = 100
)

type DatastoreConfig struct {
	BaseURL            string
	ResourceID         string
	RateLimitPerMinute int
	HTTPClient         *http.Client
}

// DatastoreSource searches a CKAN datastore resource such as data.gov.sg.
type DatastoreSource struct {
	cfg DatastoreConfig
	api *apiClient
}

type datastoreResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Records []Record `json:"records"`
		Total   int      `json:"total"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewDatastoreSource(cfg DatastoreConfig) *DatastoreSource {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DataGovSGBaseURL
	}
	if strings.TrimSpace(cfg.ResourceID) == "" {
		cfg.ResourceID = GeBIZResourceID
	}
	return &DatastoreSource{cfg: cfg, api: newAPIClient("datastore", cfg.HTTPClient, cfg.RateLimitPerMinute)}
}

func (d *DatastoreSource) Close() { d.api.close() }

// Search pages through matches for query until pageSize records are held or the
// dataset runs out.
func (d *DatastoreSource) Search(ctx context.Context, query string, pageSize int) ([]Record, error) {
	out := []Record{}
	for len(out) < pageSize {
		limit := pageSize - len(out)
		if limit > datastoreMaxLimit {
			limit = datastoreMaxLimit
		}
		page, total, err := d.Page(ctx, query, len(out), limit)
		if err != nil {
			return out, err
		}
		out = append(out, page...)
		if len(page) == 0 || len(out) >= total {
			break
		}
	}
	return out, nil
}

// Page fetches one window of the resource. An empty query lists every row.
func (d *DatastoreSource) Page(ctx context.Context, query string, offset, limit int) ([]Record, int, error) {
	params := url.Values{}
	params.Set("resource_id", d.cfg.ResourceID)
	params.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	if q := strings.TrimSpace(query); q != "" {
		params.Set("q", q)
	}
	endpoint := strings.TrimRight(d.cfg.BaseURL, "/") + datastoreSearchAPI + "?" + params.Encode()

	body, err := d.api.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("datastore search %q: %w", query, err)
	}
	var parsed datastoreResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("datastore search %q: decode: %w", query, err)
	}
	if !parsed.Success {
		msg := "success=false"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, 0, fmt.Errorf("datastore search %q: %w", query, errors.New(msg))
	}
	return parsed.Result.Records, parsed.Result.Total, nil
}
