package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// GrantsGovProvider queries the Grants.gov search2 API.
type GrantsGovProvider struct {
	cfg    SourceConfig
	Client *http.Client
}

func NewGrantsGovProvider(cfg SourceConfig) (Provider, error) {
	if cfg.URL == "" {
		cfg.URL = "https://api.grants.gov/v1/api/search2"
	}
	return &GrantsGovProvider{
		cfg:    cfg,
		Client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (p *GrantsGovProvider) Source() SourceConfig { return p.cfg }

// grantsGovSearchRequest matches the Grants.gov search2 API schema.
type grantsGovSearchRequest struct {
	Keyword        string `json:"keyword"`
	OppStatuses    string `json:"oppStatuses"`
	SortBy         string `json:"sortBy"`
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

// grantsGovResponse represents the search2 API response (wrapped in "data").
type grantsGovResponse struct {
	Data struct {
		HitCount int               `json:"hitCount"`
		OppHits  []grantsGovRecord `json:"oppHits"`
	} `json:"data"`
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
}

type grantsGovRecord struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	Title     string `json:"title"`
	Agency    string `json:"agency"`
	OpenDate  string `json:"openDate"`
	CloseDate string `json:"closeDate"`
	OppStatus string `json:"oppStatus"`
}

func (p *GrantsGovProvider) Fetch(ctx context.Context, crit Criteria) ([]RawItem, error) {
	statuses := crit.GrantsStatus
	if statuses == "" {
		statuses = "posted"
	}

	searchReq := grantsGovSearchRequest{
		Keyword:        p.cfg.Query,
		OppStatuses:    statuses,
		SortBy:         "openDate|desc",
		Rows:           100,
		StartRecordNum: 0,
	}
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned %d: %s", resp.StatusCode, string(raw))
	}

	var apiResp grantsGovResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if apiResp.ErrorCode != 0 {
		return nil, fmt.Errorf("API error: %s", apiResp.Msg)
	}

	log.Printf("[%s] got %d hits (total: %d)", p.cfg.Name, len(apiResp.Data.OppHits), apiResp.Data.HitCount)

	var items []RawItem
	for _, rec := range apiResp.Data.OppHits {
		if rec.Title == "" {
			continue
		}
		if crit.Regex != nil && !crit.Regex.MatchString(rec.Title) {
			continue
		}

		item := RawItem{
			Title:   normalizeSpace(rec.Title),
			Link:    fmt.Sprintf("https://www.grants.gov/search-results-detail/%s", rec.ID),
			Summary: fmt.Sprintf("Federal opportunity %s from %s", rec.Number, rec.Agency),
			Agency:  rec.Agency,
			Region:  p.cfg.Region,
			Extra: map[string]interface{}{
				"number":     rec.Number,
				"opp_status": rec.OppStatus,
			},
		}
		if item.Agency == "" {
			item.Agency = p.cfg.Agency
		}

		// Dates are MM/DD/YYYY
		if rec.CloseDate != "" {
			if t, err := time.Parse("01/02/2006", rec.CloseDate); err == nil {
				item.DeadlineRaw = t.Format("2006-01-02")
			} else {
				item.DeadlineRaw = rec.CloseDate
			}
		}
		if rec.OpenDate != "" {
			if t, err := time.Parse("01/02/2006", rec.OpenDate); err == nil {
				item.PublishedAt = &t
			}
		}

		items = append(items, item)
	}

	return items, nil
}
