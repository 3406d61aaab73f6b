package config

import (
	"time"

	"github.com/jobscout/ingest/internal/ratelimit"
)

const (
	ProfileMock    = "mock"
	ProfileScraped = "scraped"
	ProfileSearch  = "search"
	ProfileDefault = "default"
)

// RateLimitProfiles returns the built-in quotas keyed by profile name.
//
//	mock     1000/min, for local fixtures
//	scraped  10/min with 2s between requests, for boards we scrape
//	search   100/min with 200ms between requests, for search APIs
//	default  5/min with 5s between requests
func RateLimitProfiles() map[string]ratelimit.Config {
	return map[string]ratelimit.Config{
		ProfileMock:    {MaxRequests: 1000, Window: time.Minute},
		ProfileScraped: {MaxRequests: 10, Window: time.Minute, MinDelay: 2 * time.Second},
		ProfileSearch:  {MaxRequests: 100, Window: time.Minute, MinDelay: 200 * time.Millisecond},
		ProfileDefault: {MaxRequests: 5, Window: time.Minute, MinDelay: 5 * time.Second},
	}
}
