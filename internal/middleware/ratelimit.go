package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/request"
)

// keyPeekLimit bounds how much of a JSON body is read to find the userId.
const keyPeekLimit = 64 << 10

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter"`
}

var rejectionMessages = map[string][2]string{
	models.RatelimitRouteChat: {
		"Message rate limit exceeded",
		"You are sending messages too quickly. Please wait a moment.",
	},
	models.RatelimitRouteStartConversation: {
		"Session creation rate limit exceeded",
		"Too many session creation attempts. Please try again later.",
	},
}

var generalRejection = [2]string{"Rate limit exceeded", "Too many requests. Please try again later."}

// ParseRate accepts the ulule format ("10-M", "5-H") and "<limit>/<duration>"
// for windows ulule cannot express ("50/15m").
func ParseRate(s string) (limiter.Rate, error) {
	s = strings.TrimSpace(s)
	limitStr, periodStr, ok := strings.Cut(s, "/")
	if !ok {
		rate, err := limiter.NewRateFromFormatted(s)
		if err != nil {
			return limiter.Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
		}
		return rate, nil
	}

	limit, err := strconv.ParseInt(strings.TrimSpace(limitStr), 10, 64)
	if err != nil || limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid rate %q: limit must be a positive integer", s)
	}
	period, err := time.ParseDuration(strings.TrimSpace(periodStr))
	if err != nil || period < time.Second {
		return limiter.Rate{}, fmt.Errorf("invalid rate %q: period must be a duration of at least 1s", s)
	}
	return limiter.Rate{Formatted: s, Limit: limit, Period: period}, nil
}

// RateLimiter applies per-route limits backed by a shared ulule store. Rates
// start from models.DefaultRatelimits and are replaced by Reload.
type RateLimiter struct {
	store    limiter.Store
	source   RatelimitSource
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	rates map[string]limiter.Rate
}

// NewRateLimiter creates a limiter with the default rates. source may be nil,
// in which case the defaults are never reloaded.
func NewRateLimiter(store limiter.Store, source RatelimitSource, log *zap.Logger, reloadInterval time.Duration) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	rates := make(map[string]limiter.Rate, len(models.DefaultRatelimits))
	for route, formatted := range models.DefaultRatelimits {
		rate, err := ParseRate(formatted)
		if err != nil {
			panic(fmt.Sprintf("default rate for %s: %v", route, err))
		}
		rates[route] = rate
	}
	return &RateLimiter{
		store:    store,
		source:   source,
		log:      log,
		interval: reloadInterval,
		now:      time.Now,
		rates:    rates,
	}
}

// Rate returns the current rate for route.
func (l *RateLimiter) Rate(route string) limiter.Rate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rates[route]
}

// Limit returns middleware enforcing the named route's rate.
func (l *RateLimiter) Limit(route string) func(http.Handler) http.Handler {
	msgs, ok := rejectionMessages[route]
	if !ok {
		msgs = generalRejection
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.allow(w, r, route, msgs) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// General returns the 15-minute limiter shared by every chatbot route. Caps
// differ for chat and start-conversation; admin paths are exempt.
func (l *RateLimiter) General() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, limited := generalRoute(r.URL.Path)
			if !limited || l.allow(w, r, route, generalRejection) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func generalRoute(path string) (string, bool) {
	switch {
	case strings.Contains(path, "/admin"):
		return "", false
	case strings.HasSuffix(path, "/chat"):
		return models.RatelimitRouteGeneralChat, true
	case strings.HasSuffix(path, "/start-conversation"):
		return models.RatelimitRouteGeneralStart, true
	default:
		return models.RatelimitRouteGeneralDefault, true
	}
}

// rateLimitKey is the caller's userId from the JSON body, else the client address.
func rateLimitKey(r *http.Request) string {
	if userID := request.PeekJSONString(r, "userId", keyPeekLimit); userID != "" {
		return "user:" + userID
	}
	return "ip:" + request.ClientIP(r)
}

// allow counts the request and reports whether it may proceed. Rejections are
// written here. Store failures let the request through.
func (l *RateLimiter) allow(w http.ResponseWriter, r *http.Request, route string, msgs [2]string) bool {
	rate := l.Rate(route)
	if rate.Limit <= 0 {
		return true
	}

	key := route + ":" + rateLimitKey(r)
	lctx, err := l.store.Get(r.Context(), key, rate)
	if err != nil {
		l.log.Warn("rate_limit_store_failed",
			zap.String("route", route),
			zap.Error(err),
		)
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
	if !lctx.Reached {
		return true
	}

	retryAfter := int64(math.Ceil(time.Unix(lctx.Reset, 0).Sub(l.now()).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	l.log.Info("rate_limit_exceeded",
		zap.String("route", route),
		zap.String("path", r.URL.Path),
		zap.Int64("retry_after_seconds", retryAfter),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	if err := json.NewEncoder(w).Encode(RateLimitResponse{
		Error:      msgs[0],
		Message:    msgs[1],
		RetryAfter: retryAfter,
	}); err != nil {
		l.log.Error("failed_to_encode_rate_limit_response", zap.Error(err))
	}
	return false
}
