package validation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// anonymousIDPattern matches frontend-generated ids: uuid_<epoch millis>_<9 alphanumerics>.
var anonymousIDPattern = regexp.MustCompile(`^uuid_\d+_[a-zA-Z0-9]{9}$`)

const (
	nilUUID = "00000000-0000-0000-0000-000000000000"
	maxUUID = "ffffffff-ffff-ffff-ffff-ffffffffffff"
)

// IsValidUUID reports whether id is a canonical RFC 4122 UUID or an anonymous user token.
func IsValidUUID(id string) bool {
	if id == "" {
		return false
	}
	if isCanonicalUUID(id) {
		return true
	}
	return anonymousIDPattern.MatchString(id)
}

// IsValidSessionID reports whether id can be used as an NLU session id.
func IsValidSessionID(id string) bool {
	return isCanonicalUUID(id)
}

// isCanonicalUUID accepts only the 36-character hyphenated form. uuid.Parse alone
// also accepts urn:, braced, and unhyphenated forms.
func isCanonicalUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	lower := strings.ToLower(id)
	if lower == nilUUID || lower == maxUUID {
		return true
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	if u.Variant() != uuid.RFC4122 {
		return false
	}
	v := u.Version()
	return v >= 1 && v <= 8
}
