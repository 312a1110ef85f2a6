// Package translate detects the language of user messages and translates
// replies. Every operation degrades to a default instead of failing.
package translate

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"
	translatev2 "google.golang.org/api/translate/v2"
	"google.golang.org/api/option"
)

// DefaultLanguage is assumed whenever detection is unavailable.
const DefaultLanguage = "en"

// Translator detects and translates text. Implementations never return errors:
// DetectLanguage falls back to DefaultLanguage and Translate to the input text.
type Translator interface {
	DetectLanguage(ctx context.Context, text string) string
	Translate(ctx context.Context, text, target string) string
}

// Noop is a Translator for deployments without a translation backend.
type Noop struct{}

// DetectLanguage implements Translator.
func (Noop) DetectLanguage(context.Context, string) string { return DefaultLanguage }

// Translate implements Translator.
func (Noop) Translate(_ context.Context, text, _ string) string { return text }

// Google is a Translator backed by the Cloud Translation v2 API.
type Google struct {
	svc     *translatev2.Service
	timeout time.Duration
	logger  *zap.Logger
}

// NewGoogle creates a Cloud Translation client. A zero timeout means calls
// are bounded only by the caller's context.
func NewGoogle(ctx context.Context, timeout time.Duration, log *zap.Logger, opts ...option.ClientOption) (*Google, error) {
	if log == nil {
		log = zap.NewNop()
	}
	svc, err := translatev2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation client: %w", err)
	}
	return &Google{svc: svc, timeout: timeout, logger: log}, nil
}

func (g *Google) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

// DetectLanguage implements Translator.
func (g *Google) DetectLanguage(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return DefaultLanguage
	}
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	resp, err := g.svc.Detections.List([]string{text}).Context(ctx).Do()
	if err != nil {
		g.logger.Warn("language_detection_failed", zap.Error(err))
		return DefaultLanguage
	}
	if len(resp.Detections) == 0 || len(resp.Detections[0]) == 0 || resp.Detections[0][0].Language == "" {
		return DefaultLanguage
	}
	return resp.Detections[0][0].Language
}

// Translate implements Translator.
func (g *Google) Translate(ctx context.Context, text, target string) string {
	if text == "" || target == "" {
		return text
	}
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	resp, err := g.svc.Translations.List([]string{text}, target).Format("text").Context(ctx).Do()
	if err != nil {
		g.logger.Warn("translation_failed",
			zap.String("target_language", target),
			zap.Error(err),
		)
		return text
	}
	if len(resp.Translations) == 0 || resp.Translations[0].TranslatedText == "" {
		return text
	}
	// Entities can come back escaped even in text mode.
	return html.UnescapeString(resp.Translations[0].TranslatedText)
}

var (
	_ Translator = Noop{}
	_ Translator = (*Google)(nil)
)
