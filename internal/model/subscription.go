package model

import "time"

// SubscriptionEntry is a named subscription feed URL.
// The core only reads it, except for stamping LastUpdate after a successful fetch.
type SubscriptionEntry struct {
	// Name is the unique, user chosen name.
	Name string `json:"name"`

	// URL is the http(s) location of the base64 encoded link list.
	URL string `json:"url"`

	// LastUpdate is the time of the last successful fetch. Zero if never fetched.
	LastUpdate time.Time `json:"last_update"`
}
