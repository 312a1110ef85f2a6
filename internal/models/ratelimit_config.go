package models

import "time"

// Rate limit routes. Each route has its own row in ratelimit_config.
const (
	RatelimitRouteChat              = "chat"
	RatelimitRouteStartConversation = "start_conversation"
	RatelimitRouteGeneralChat       = "general_chat"
	RatelimitRouteGeneralStart      = "general_start_conversation"
	RatelimitRouteGeneralDefault    = "general_default"
)

// RatelimitConfig holds the rate for one route. Rate is either the ulule format
// ("10-M", "5-H") or "<limit>/<duration>" for windows ulule cannot express ("50/15m").
type RatelimitConfig struct {
	ConfigKey string    `json:"config_key"`
	Rate      string    `json:"rate"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultRatelimits are applied when a route has no stored configuration.
var DefaultRatelimits = map[string]string{
	RatelimitRouteChat:              "10-M",
	RatelimitRouteStartConversation: "5-H",
	RatelimitRouteGeneralChat:       "50/15m",
	RatelimitRouteGeneralStart:      "10/15m",
	RatelimitRouteGeneralDefault:    "100/15m",
}
