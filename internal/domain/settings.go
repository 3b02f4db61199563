package domain

import "time"

// Ring buffer capacities for persisted extension state
const (
	MaxSearchHistory = 10
	MaxClickEvents   = 100
)

// Settings holds the user's extension preferences. It is passed explicitly
// into every call that depends on it.
type Settings struct {
	EnableAffiliate    bool     `json:"enableAffiliate"`
	EnableTracking     bool     `json:"enableTracking"`
	PreferredPlatforms []string `json:"preferredPlatforms"`
	PriceThreshold     float64  `json:"priceThreshold"` // minimum savings percent for a deal
}

// DefaultSettings returns the settings used before the user changes anything
func DefaultSettings() Settings {
	return Settings{
		EnableAffiliate:    true,
		EnableTracking:     false,
		PreferredPlatforms: []string{},
		PriceThreshold:     10,
	}
}

// AffiliateConfig describes how outbound URLs for one platform are tagged
type AffiliateConfig struct {
	Enabled bool              `json:"enabled"`
	Param   string            `json:"param"`
	Value   string            `json:"value"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Search kinds recorded in history and used as cache key prefixes
const (
	SearchKindText  = "text"
	SearchKindImage = "image"
)

// HistoryEntry records one completed search
type HistoryEntry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Query       string    `json:"query"`
	ProductID   string    `json:"productId,omitempty"`
	ResultCount int       `json:"resultCount"`
	SearchedAt  time.Time `json:"searchedAt"`
}

// ClickEvent records an outbound affiliate click
type ClickEvent struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	ProductURL string    `json:"productUrl"`
	ClickedAt  time.Time `json:"clickedAt"`
}
