package reports

// CatalogEntry is one browsable ticker. Browsing the catalog never
// consumes view quota; only opening a specific report does.
type CatalogEntry struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
}

// Catalog is the curated set of tickers shown on the browse page.
var Catalog = []CatalogEntry{
	{Ticker: "AAPL", Name: "Apple Inc.", Sector: "Technology"},
	{Ticker: "MSFT", Name: "Microsoft Corporation", Sector: "Technology"},
	{Ticker: "GOOGL", Name: "Alphabet Inc.", Sector: "Communication Services"},
	{Ticker: "AMZN", Name: "Amazon.com, Inc.", Sector: "Consumer Discretionary"},
	{Ticker: "NVDA", Name: "NVIDIA Corporation", Sector: "Technology"},
	{Ticker: "META", Name: "Meta Platforms, Inc.", Sector: "Communication Services"},
	{Ticker: "JPM", Name: "JPMorgan Chase & Co.", Sector: "Financials"},
	{Ticker: "JNJ", Name: "Johnson & Johnson", Sector: "Health Care"},
	{Ticker: "V", Name: "Visa Inc.", Sector: "Financials"},
	{Ticker: "KO", Name: "The Coca-Cola Company", Sector: "Consumer Staples"},
	{Ticker: "XOM", Name: "Exxon Mobil Corporation", Sector: "Energy"},
	{Ticker: "COST", Name: "Costco Wholesale Corporation", Sector: "Consumer Staples"},
}
