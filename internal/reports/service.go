// Package reports computes valuation reports from third-party market data.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// P/E multiples bounding the fair-value bands. Conservative, base and
// optimistic earnings multiples for a mature large-cap.
const (
	peBandLow  = 12.0
	peBandMid  = 18.0
	peBandHigh = 25.0
)

type Bands struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Report is a computed valuation report for one ticker.
type Report struct {
	ID           string    `json:"id"`
	Ticker       string    `json:"ticker"`
	Name         string    `json:"name,omitempty"`
	AsOf         time.Time `json:"as_of"`
	Price        float64   `json:"price"`
	EPS          float64   `json:"eps"`
	CurrentPE    float64   `json:"current_pe"`
	PEBands      Bands     `json:"pe_bands"`
	FairValue    Bands     `json:"fair_value"`
	Peers        []string  `json:"peers,omitempty"`
	QualityScore int       `json:"quality_score"`
}

// Archiver stores report snapshots. Optional; a nil Archiver disables it.
type Archiver interface {
	StoreSnapshot(ctx context.Context, ticker string, data []byte) error
}

// Service fetches market data and computes reports.
type Service struct {
	httpClient *http.Client
	finnhubURL string
	finnhubKey string
	fmpURL     string
	fmpKey     string
	archive    Archiver
}

// NewService creates a report service against the given provider endpoints.
func NewService(finnhubURL, finnhubKey, fmpURL, fmpKey string, archive Archiver) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		finnhubURL: finnhubURL,
		finnhubKey: finnhubKey,
		fmpURL:     fmpURL,
		fmpKey:     fmpKey,
		archive:    archive,
	}
}

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	PrevClose     float64 `json:"pc"`
}

type fmpQuote struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	EPS    float64 `json:"eps"`
	PE     float64 `json:"pe"`
}

// BuildReport fetches quote, earnings and peers for the ticker and
// computes the P/E fair-value bands.
func (s *Service) BuildReport(ctx context.Context, ticker string) (*Report, error) {
	quote, err := s.fetchQuote(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", ticker, err)
	}
	if quote.Current <= 0 {
		return nil, fmt.Errorf("no quote data for %s", ticker)
	}

	report := &Report{
		ID:      uuid.NewString(),
		Ticker:  ticker,
		AsOf:    time.Now().UTC(),
		Price:   quote.Current,
		PEBands: Bands{Low: peBandLow, Mid: peBandMid, High: peBandHigh},
	}

	// Earnings and company name come from FMP; the report degrades to a
	// quote-only view when that lookup fails.
	if fq, err := s.fetchFMPQuote(ctx, ticker); err != nil {
		log.Printf("[REPORTS] Warning: FMP quote failed for %s: %v", ticker, err)
	} else {
		report.Name = fq.Name
		report.EPS = fq.EPS
	}

	if report.EPS > 0 {
		report.CurrentPE = report.Price / report.EPS
		report.FairValue = Bands{
			Low:  report.EPS * peBandLow,
			Mid:  report.EPS * peBandMid,
			High: report.EPS * peBandHigh,
		}
	}

	if peers, err := s.fetchPeers(ctx, ticker); err != nil {
		log.Printf("[REPORTS] Warning: peers lookup failed for %s: %v", ticker, err)
	} else {
		report.Peers = peers
	}

	report.QualityScore = scoreQuality(report)

	s.archiveSnapshot(ctx, report)

	return report, nil
}

func (s *Service) fetchQuote(ctx context.Context, ticker string) (*finnhubQuote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s", s.finnhubURL, url.QueryEscape(ticker), s.finnhubKey)

	var quote finnhubQuote
	if err := s.getJSON(ctx, endpoint, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *Service) fetchFMPQuote(ctx context.Context, ticker string) (*fmpQuote, error) {
	endpoint := fmt.Sprintf("%s/quote/%s?apikey=%s", s.fmpURL, url.PathEscape(ticker), s.fmpKey)

	var quotes []fmpQuote
	if err := s.getJSON(ctx, endpoint, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("empty FMP response")
	}
	return &quotes[0], nil
}

func (s *Service) fetchPeers(ctx context.Context, ticker string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/stock/peers?symbol=%s&token=%s", s.finnhubURL, url.QueryEscape(ticker), s.finnhubKey)

	var peers []string
	if err := s.getJSON(ctx, endpoint, &peers); err != nil {
		return nil, err
	}

	// The provider echoes the ticker itself as the first peer.
	filtered := peers[:0]
	for _, p := range peers {
		if p != ticker {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *Service) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

// archiveSnapshot stores the rendered report. Best-effort: failure is
// logged and never blocks the response.
func (s *Service) archiveSnapshot(ctx context.Context, report *Report) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		log.Printf("[REPORTS] Warning: failed to marshal snapshot for %s: %v", report.Ticker, err)
		return
	}
	if err := s.archive.StoreSnapshot(ctx, report.Ticker, data); err != nil {
		log.Printf("[REPORTS] Warning: failed to archive snapshot for %s: %v", report.Ticker, err)
	}
}

// scoreQuality is a naive 0-100 screen: positive earnings, a P/E inside
// the bands, and a peer set to compare against.
func scoreQuality(r *Report) int {
	score := 0
	if r.EPS > 0 {
		score += 40
	}
	if r.CurrentPE > 0 && r.CurrentPE <= peBandHigh {
		score += 30
	}
	if r.CurrentPE > 0 && r.CurrentPE <= peBandMid {
		score += 10
	}
	if len(r.Peers) > 0 {
		score += 20
	}
	return score
}
