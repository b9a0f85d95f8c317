package reports

import (
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// GetReportHandler serves the valuation report for one ticker.
func (s *Service) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	if !tickerPattern.MatchString(ticker) {
		http.Error(w, "Invalid ticker symbol", http.StatusBadRequest)
		return
	}

	report, err := s.BuildReport(r.Context(), ticker)
	if err != nil {
		log.Printf("[REPORTS] Failed to build report for %s: %v", ticker, err)
		http.Error(w, "Failed to build report", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// ListTickersHandler serves the browsable catalog. Browsing is free and
// never counts against the view quota.
func ListTickersHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Catalog)
}
