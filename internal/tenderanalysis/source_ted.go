package tenderanalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	TEDBaseURL     = "https://api.ted.europa.eu"
	tedSearchAPI   = "/v3/notices/search"
	tedMaxPageSize = 250
)

var tedFields = []string{
	"publication-number", "notice-identifier", "TI", "CY", "buyer-name",
	"estimated-value-lot", "tender-value", "winner-country", "winner-name",
	"BT-711-LotResult", "award-criterion-name-lot",
}

type TEDConfig struct {
	BaseURL            string
	RateLimitPerMinute int
	HTTPClient         *http.Client
}

// TEDSource searches award notices on Tenders Electronic Daily. Use TEDFields
// to read its records.
type TEDSource struct {
	cfg TEDConfig
	api *apiClient
}

type tedRequest struct {
	Query              string   `json:"query"`
	Fields             []string `json:"fields"`
	Limit              int      `json:"limit"`
	Page               int      `json:"page"`
	OnlyLatestVersions bool     `json:"onlyLatestVersions"`
	PaginationMode     string   `json:"paginationMode"`
}

type tedResponse struct {
	Notices          []Record `json:"notices"`
	TotalNoticeCount int      `json:"totalNoticeCount"`
}

func NewTEDSource(cfg TEDConfig) *TEDSource {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = TEDBaseURL
	}
	return &TEDSource{cfg: cfg, api: newAPIClient("ted", cfg.HTTPClient, cfg.RateLimitPerMinute)}
}

func (t *TEDSource) Close() { t.api.close() }

func (t *TEDSource) Search(ctx context.Context, query string, pageSize int) ([]Record, error) {
	out := []Record{}
	limit := pageSize
	if limit > tedMaxPageSize {
		limit = tedMaxPageSize
	}
	for page := 1; len(out) < pageSize; page++ {
		notices, total, err := t.page(ctx, query, page, limit)
		if err != nil {
			return out, err
		}
		for _, n := range notices {
			out = append(out, n)
			if len(out) == pageSize {
				break
			}
		}
		if len(notices) == 0 || page*limit >= total {
			break
		}
	}
	return out, nil
}

func (t *TEDSource) page(ctx context.Context, query string, page, limit int) ([]Record, int, error) {
	payload, err := json.Marshal(tedRequest{
		Query:              fmt.Sprintf("description-glo ~ %q", strings.TrimSpace(query)),
		Fields:             tedFields,
		Limit:              limit,
		Page:               page,
		OnlyLatestVersions: true,
		PaginationMode:     "PAGE_NUMBER",
	})
	if err != nil {
		return nil, 0, err
	}
	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + tedSearchAPI
	body, err := t.api.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("ted search %q: %w", query, err)
	}
	var parsed tedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("ted search %q: decode: %w", query, err)
	}
	return parsed.Notices, parsed.TotalNoticeCount, nil
}
