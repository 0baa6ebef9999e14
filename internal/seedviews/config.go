// Package seedviews drives synthetic page-view traffic against a
// running engine instance: generate, submit, recompute trending, and
// sanity-check the result.
package seedviews

import "time"

// Config holds configuration for one seeding run.
type Config struct {
	BaseURL     string        // Base URL of the service
	NumViews    int           // Number of views to generate
	NumEntities int           // Distinct shops/casts to spread views over
	NumViewers  int           // Distinct viewer identities
	Areas       []string      // Area keys views are attributed to
	Workers     int           // Number of concurrent submitters
	Timeout     time.Duration // HTTP request timeout
	TrendingTop int           // Trending rows to fetch per area
	Verbose     bool          // Enable verbose logging
}

// viewRequest mirrors the POST /views wire schema.
type viewRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	CustomerID string `json:"customer_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Area       string `json:"area"`
	ViewedAt   string `json:"viewed_at,omitempty"`
}

// trendingEntry mirrors the GET /trending wire schema.
type trendingEntry struct {
	Rank       int     `json:"rank"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Area       string  `json:"area"`
	Current    int     `json:"current"`
	Previous   int     `json:"previous"`
	GrowthRate float64 `json:"growth_rate"`
}

// Stats holds run statistics.
type Stats struct {
	ViewsGenerated int
	ViewsSubmitted int
	ViewsAccepted  int
	ViewsRejected  int
	ViewsFailed    int
	TrendingRows   int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
