package models

import (
	"time"
)

// SourceCategory identifies how a site's price data is obtained
type SourceCategory string

const (
	// SourceAPI fetches prices from a structured JSON endpoint
	SourceAPI SourceCategory = "api"
	// SourceScrape extracts prices from HTML markup
	SourceScrape SourceCategory = "scrape"
)

// Credentials holds the basic-auth pair for an API site
type Credentials struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

// Selectors maps each price field to a CSS selector for scrape sites.
// An empty selector means the field is not configured for the site.
type Selectors struct {
	Price        string `json:"price,omitempty"`
	RegularPrice string `json:"regular_price,omitempty"`
	SalePrice    string `json:"sale_price,omitempty"`
}

// Get returns the selector configured for the given price field
func (s Selectors) Get(field string) string {
	switch field {
	case "price":
		return s.Price
	case "regular_price":
		return s.RegularPrice
	case "sale_price":
		return s.SalePrice
	default:
		return ""
	}
}

// SiteRules holds site-specific element-skip rules for scrape sites.
// TextContains maps a term to whether the element text must contain it
// (true) or must not contain it (false); elements violating any rule are
// skipped. ElementSelector maps a descendant class name to whether
// elements containing such a descendant should be skipped.
type SiteRules struct {
	TextContains    map[string]bool `json:"text_contains,omitempty"`
	ElementSelector map[string]bool `json:"element_selector,omitempty"`
}

// Site is the per-domain source configuration. Category tags which of
// the two source kinds this is; Credentials is set for API sites,
// Selectors and Rules for scrape sites.
type Site struct {
	RootDomain  string         `json:"root_domain"`
	Category    SourceCategory `json:"category"`
	Disabled    bool           `json:"disabled,omitempty"`
	Credentials *Credentials   `json:"env_variables,omitempty"`
	Selectors   *Selectors     `json:"selectors,omitempty"`
	Rules       *SiteRules     `json:"site_rules,omitempty"`
}

// Product pairs a product name with the URLs it is tracked at
type Product struct {
	ProductName string   `json:"product_name"`
	URLs        []string `json:"urls"`
}

// InputFile is the validated run configuration: the enabled sites and
// the products whose URLs map to them
type InputFile struct {
	Sites    []*Site    `json:"sites"`
	Products []*Product `json:"products"`
}

// PriceData holds the extracted prices for one product URL. Price is
// always set on success; the other two only when the source exposed them.
type PriceData struct {
	Price        float64  `json:"price"`
	RegularPrice *float64 `json:"regular_price,omitempty"`
	SalePrice    *float64 `json:"sale_price,omitempty"`
}

// FetchResult is the terminal outcome of one fetch task. Exactly one of
// Data and Error is set.
type FetchResult struct {
	ProductName string         `json:"product_name"`
	URL         string         `json:"url"`
	Source      SourceCategory `json:"source"`
	Data        *PriceData     `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Success reports whether the fetch produced usable price data
func (r FetchResult) Success() bool {
	return r.Error == "" && r.Data != nil
}

// ChangedPrice identifies a (product, url) pair whose stored price
// changed during the current run
type ChangedPrice struct {
	ProductName string
	URL         string
}

// RunSummary provides summary statistics for one pipeline run
type RunSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// LogSeverity represents the severity level of a log entry
type LogSeverity string

const (
	LogSeverityLow    LogSeverity = "low"
	LogSeverityMedium LogSeverity = "medium"
	LogSeverityHigh   LogSeverity = "high"
)

// ProcessType represents the type of process that created the log
type ProcessType string

const (
	ProcessTypeRun      ProcessType = "run"
	ProcessTypeInternal ProcessType = "internal"
)

// LogEvent represents a process-specific logging context
type LogEvent struct {
	ProcessID   string      `json:"process_id"`
	ProcessType ProcessType `json:"process_type"`
	StartTime   time.Time   `json:"start_time"`
}

// LogEntry represents a structured log entry
type LogEntry struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Severity    LogSeverity            `json:"severity,omitempty"`
	Message     string                 `json:"message"`
	Operation   string                 `json:"operation"`
	TargetName  string                 `json:"target_name,omitempty"`
	ProcessID   string                 `json:"process_id"`
	ProcessType ProcessType            `json:"process_type"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
