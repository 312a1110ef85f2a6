// Package auth verifies the bearer tokens presented on admin routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/benvon/medvax-chat/internal/models"
)

var (
	// ErrInvalidToken is returned for tokens that fail parsing, signature or claim validation.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInsufficientRole is returned when a valid token lacks the required role.
	ErrInsufficientRole = errors.New("insufficient permissions")
	// ErrNoKeySource is returned by NewVerifier when neither a secret nor a JWKS URL is set.
	ErrNoKeySource = errors.New("admin token verification needs a secret or a JWKS URL")
)

// Options configures a Verifier. Secret takes precedence over JWKSURL.
type Options struct {
	Secret       string
	JWKSURL      string
	Issuer       string
	RequiredRole string
	JWKS         *JWKSManager
}

// Verifier verifies admin JWTs
type Verifier struct {
	secret  []byte
	jwksURL string
	issuer  string
	role    string
	jwks    *JWKSManager
}

// NewVerifier creates a new JWT verifier
func NewVerifier(opts Options) (*Verifier, error) {
	if opts.Secret == "" && opts.JWKSURL == "" {
		return nil, ErrNoKeySource
	}
	v := &Verifier{
		jwksURL: opts.JWKSURL,
		issuer:  opts.Issuer,
		role:    opts.RequiredRole,
		jwks:    opts.JWKS,
	}
	if opts.Secret != "" {
		v.secret = []byte(opts.Secret)
	} else if v.jwks == nil {
		v.jwks = NewJWKSManager(0, nil)
	}
	return v, nil
}

// RequiredRole is the role a token must carry to pass Authorize.
func (v *Verifier) RequiredRole() string { return v.role }

// Verify parses and validates tokenString and extracts its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.AdminClaims, error) {
	token, err := v.parse(ctx, tokenString)
	if err != nil && v.secret == nil && errors.Is(err, ErrInvalidToken) {
		// Retry once against a fresh key set in case the issuer rotated keys.
		v.jwks.Invalidate(v.jwksURL)
		token, err = v.parse(ctx, tokenString)
	}
	if err != nil {
		return nil, err
	}

	claims := &models.AdminClaims{
		Subject: token.Subject(),
		Issuer:  token.Issuer(),
		Role:    roleOf(token),
	}
	if exp := token.Expiration(); !exp.IsZero() {
		claims.Exp = exp.Unix()
	}
	return claims, nil
}

// Authorize checks that claims carry the required role. An empty required
// role accepts any verified token.
func (v *Verifier) Authorize(claims *models.AdminClaims) error {
	if v.role == "" {
		return nil
	}
	if claims == nil || !hasRole(claims.Role, v.role) {
		return ErrInsufficientRole
	}
	return nil
}

func (v *Verifier) parse(ctx context.Context, tokenString string) (jwt.Token, error) {
	opts := []jwt.ParseOption{jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	if v.secret != nil {
		opts = append(opts, jwt.WithKey(jwa.HS256, v.secret))
	} else {
		keys, err := v.jwks.GetJWKS(ctx, v.jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to get JWKS: %w", err)
		}
		opts = append(opts, jwt.WithKeySet(keys))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return token, nil
}

// roleOf reads the "role" claim, falling back to a "roles" array. Multiple
// roles are joined with spaces.
func roleOf(token jwt.Token) string {
	if raw, ok := token.Get("role"); ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	raw, ok := token.Get("roles")
	if !ok {
		return ""
	}
	list, ok := raw.([]any)
	if !ok {
		return ""
	}
	roles := make([]string, 0, len(list))
	for _, r := range list {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return strings.Join(roles, " ")
}

func hasRole(have, want string) bool {
	for _, r := range strings.Fields(have) {
		if r == want {
			return true
		}
	}
	return false
}
