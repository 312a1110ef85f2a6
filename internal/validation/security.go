package validation

import (
	"regexp"

	"github.com/benvon/medvax-chat/internal/models"
)

const unknownValue = "unknown"

var botUserAgentPattern = regexp.MustCompile(`(?i)bot|crawler|spider|scraper|curl|wget|python|java|perl`)

// SecurityCheck annotates a request for monitoring. It never blocks.
type SecurityCheck struct {
	IsSuspicious bool
	Reasons      []string
}

// PerformSecurityCheck flags requests with missing or bot-like user agents and
// loopback or unknown source addresses.
func PerformSecurityCheck(meta models.RequestMetadata) SecurityCheck {
	var result SecurityCheck

	if meta.UserAgent == "" || meta.UserAgent == unknownValue {
		result.Reasons = append(result.Reasons, "Missing user agent")
	} else if botUserAgentPattern.MatchString(meta.UserAgent) {
		result.Reasons = append(result.Reasons, "Bot-like user agent detected")
	}

	switch meta.IPAddress {
	case "", unknownValue, "127.0.0.1", "::1":
		result.Reasons = append(result.Reasons, "Suspicious IP address")
	}

	result.IsSuspicious = len(result.Reasons) > 0
	return result
}
