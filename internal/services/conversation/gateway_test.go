package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/medvax-chat/internal/models"
	"github.com/benvon/medvax-chat/internal/services/nlu"
	"github.com/benvon/medvax-chat/internal/services/session"
)

const (
	testUser    = "9a1b2c3d-4e5f-4a6b-8c7d-0e1f2a3b4c5d"
	testSession = "0f8e7d6c-5b4a-4c3d-9e2f-1a0b9c8d7e6f"
)

var testMeta = models.RequestMetadata{IPAddress: "198.51.100.4", UserAgent: "Mozilla/5.0"}

type fakeEngine struct {
	mu      sync.Mutex
	result  *nlu.Result
	err     error
	block   bool
	queries []nlu.Query
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) DetectIntent(ctx context.Context, q nlu.Query) (*nlu.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeTranslator struct {
	language string
	prefix   string
}

func (f fakeTranslator) DetectLanguage(context.Context, string) string { return f.language }

func (f fakeTranslator) Translate(_ context.Context, text, target string) string {
	return f.prefix + target + ":" + text
}

type failingSessions struct{}

func (failingSessions) GetOrCreateSession(context.Context, string, models.RequestMetadata) (*models.SessionInfo, error) {
	return nil, errors.New("database is down")
}

func (failingSessions) UpdateSessionContext(context.Context, string, models.ContextData) (*models.Session, error) {
	return nil, errors.New("database is down")
}

func newGateway(t *testing.T, engine nlu.Engine, tr fakeTranslator, opts ...Option) (*Gateway, *session.Manager) {
	t.Helper()
	manager := session.NewManager(session.NewMemoryStore(), nil)
	return NewGateway(manager, engine, tr, nil, opts...), manager
}

func TestGateway_Chat_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		turn Turn
		code string
	}{
		{name: "missing message", turn: Turn{UserID: testUser}, code: CodeMissingMessage},
		{name: "missing user", turn: Turn{Message: "hi"}, code: CodeMissingUserID},
		{name: "null message", turn: Turn{Message: nil, UserID: testUser}, code: CodeMissingMessage},
		{name: "zero message", turn: Turn{Message: float64(0), UserID: testUser}, code: CodeMissingMessage},
		{name: "invalid user", turn: Turn{Message: "hi", UserID: "user-1"}, code: CodeInvalidUserID},
		{name: "numeric user", turn: Turn{Message: "hi", UserID: float64(42)}, code: CodeInvalidUserID},
		{name: "numeric message", turn: Turn{Message: float64(123), UserID: testUser}, code: CodeInvalidMessage},
		{name: "object message", turn: Turn{Message: map[string]any{"text": "hi"}, UserID: testUser}, code: CodeInvalidMessage},
		{name: "script", turn: Turn{Message: "<script>alert(1)</script>", UserID: testUser}, code: CodeInvalidMessage},
		{name: "too long", turn: Turn{Message: strings.Repeat("a", 1001), UserID: testUser}, code: CodeInvalidMessage},
		{
			name: "oversized context",
			turn: Turn{Message: "hi", UserID: testUser, ContextData: map[string]any{"blob": strings.Repeat("x", 6000)}},
			code: CodeInvalidContext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := &fakeEngine{result: &nlu.Result{Text: "ok"}}
			g, manager := newGateway(t, engine, fakeTranslator{language: "en"})

			_, err := g.Chat(context.Background(), tt.turn)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if verr.Code != tt.code {
				t.Errorf("code = %q, want %q", verr.Code, tt.code)
			}
			if engine.calls() != 0 {
				t.Error("engine must not be called on validation failure")
			}
			if n, _ := manager.GetActiveSessionCount(context.Background()); n != 0 {
				t.Errorf("active sessions = %d, want 0", n)
			}
		})
	}
}

func TestGateway_Chat_Success(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &nlu.Result{
		Text:                     "Which clinic?",
		Intent:                   "appointment.book",
		Confidence:               0.92,
		OutputContext:            map[string]string{"service": "vaccination"},
		Parameters:               map[string]any{"date": "2026-11-02"},
		Action:                   "book",
		AllRequiredParamsPresent: false,
	}}
	g, manager := newGateway(t, engine, fakeTranslator{language: "en"})

	reply, err := g.Chat(context.Background(), Turn{
		Message:     "I want to <b>book</b> a vaccine",
		UserID:      testUser,
		ContextData: map[string]any{"clinic": "north", "nested": map[string]any{"x": 1}},
		Meta:        testMeta,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if reply.Text != "Which clinic?" || reply.Intent != "appointment.book" || reply.Confidence != 0.92 {
		t.Errorf("reply = %+v", reply)
	}
	if reply.UserID != testUser || reply.Language != "en" || reply.Action != "book" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Context["service"] != "vaccination" || reply.Parameters["date"] != "2026-11-02" {
		t.Errorf("context/parameters = %v / %v", reply.Context, reply.Parameters)
	}

	q := engine.queries[0]
	if q.Text != "I want to book a vaccine" {
		t.Errorf("engine text = %q, want sanitized message", q.Text)
	}
	if q.SessionID != reply.SessionID || q.LanguageCode != "en" {
		t.Errorf("query = %+v", q)
	}
	if _, ok := q.Context["nested"]; ok {
		t.Error("non-scalar context must be dropped")
	}

	info, err := manager.GetSessionInfo(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetSessionInfo() error = %v", err)
	}
	if info.SessionID == nil || *info.SessionID != reply.SessionID {
		t.Errorf("stored session = %v, reply session = %q", info.SessionID, reply.SessionID)
	}

	sessions, _ := manager.GetAllActiveSessions(context.Background(), 0)
	if len(sessions) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(sessions))
	}
	stored, err := manager.UpdateSessionContext(context.Background(), testUser, nil)
	if err != nil {
		t.Fatalf("UpdateSessionContext() error = %v", err)
	}
	if stored.ContextData["clinic"] != "north" || stored.ContextData["service"] != "vaccination" {
		t.Errorf("stored context = %v", stored.ContextData)
	}
}

func TestGateway_Chat_ResumesSession(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &nlu.Result{Text: "hello", Intent: "greeting", Confidence: 1}}
	g, _ := newGateway(t, engine, fakeTranslator{language: "en"})

	first, err := g.Chat(context.Background(), Turn{Message: "hi", UserID: testUser, Meta: testMeta})
	if err != nil {
		t.Fatalf("first Chat() error = %v", err)
	}
	second, err := g.Chat(context.Background(), Turn{Message: "hi again", UserID: testUser, Meta: testMeta})
	if err != nil {
		t.Fatalf("second Chat() error = %v", err)
	}
	if first.SessionID != second.SessionID {
		t.Errorf("session changed between turns: %q -> %q", first.SessionID, second.SessionID)
	}
}

func TestGateway_Chat_SessionOverride(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &nlu.Result{Text: "ok", Intent: "x"}}
	g, _ := newGateway(t, engine, fakeTranslator{language: "en"})

	reply, err := g.Chat(context.Background(), Turn{Message: "hi", UserID: testUser, SessionID: testSession})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.SessionID != testSession || engine.queries[0].SessionID != testSession {
		t.Errorf("override not applied: reply=%q query=%q", reply.SessionID, engine.queries[0].SessionID)
	}

	reply, err = g.Chat(context.Background(), Turn{Message: "hi", UserID: testUser, SessionID: "../../etc"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.SessionID == "../../etc" {
		t.Error("invalid override must be ignored")
	}
}

func TestGateway_Chat_EngineFailureFallsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		engine *fakeEngine
		opts   []Option
	}{
		{name: "engine error", engine: &fakeEngine{err: errors.New("unreachable")}},
		{name: "nil result", engine: &fakeEngine{}},
		{name: "timeout", engine: &fakeEngine{block: true}, opts: []Option{WithEngineTimeout(20 * time.Millisecond)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, manager := newGateway(t, tt.engine, fakeTranslator{language: "en"}, tt.opts...)

			reply, err := g.Chat(context.Background(), Turn{Message: "hi", UserID: testUser})
			if err != nil {
				t.Fatalf("Chat() error = %v, want fallback", err)
			}
			if reply.Text != FallbackText || reply.Intent != FallbackIntent || reply.Confidence != 0 {
				t.Errorf("reply = %+v", reply)
			}
			info, _ := manager.GetSessionInfo(context.Background(), testUser)
			if info.SessionID == nil || *info.SessionID != reply.SessionID {
				t.Errorf("fallback session = %q, stored = %v", reply.SessionID, info.SessionID)
			}
		})
	}
}

func TestGateway_Chat_SessionUnavailable(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &nlu.Result{Text: "ok"}}
	g := NewGateway(failingSessions{}, engine, nil, nil)

	_, err := g.Chat(context.Background(), Turn{Message: "hi", UserID: testUser})
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("error = %v, want ErrSessionUnavailable", err)
	}
	if engine.calls() != 0 {
		t.Error("engine must not be called without a session")
	}
}

func TestGateway_Chat_TranslatesReply(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &nlu.Result{Text: "Your dose is due.", Intent: "dose.status", Confidence: 0.5}}
	g, _ := newGateway(t, engine, fakeTranslator{language: "fr", prefix: "T-"})

	reply, err := g.Chat(context.Background(), Turn{Message: "quand est ma dose", UserID: testUser})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.Text != "T-fr:Your dose is due." || reply.Language != "fr" {
		t.Errorf("reply = %+v", reply)
	}
	if engine.queries[0].LanguageCode != "en" {
		t.Errorf("engine language = %q, want en", engine.queries[0].LanguageCode)
	}
}

func TestGateway_Chat_TranslatesAgainstEngineLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		language string
		wantText string
	}{
		{name: "speaker of engine language", language: "es", wantText: "hola"},
		{name: "english speaker", language: "en", wantText: "T-en:hola"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := &fakeEngine{result: &nlu.Result{Text: "hola", Intent: "greeting", Confidence: 1}}
			g, _ := newGateway(t, engine, fakeTranslator{language: tt.language, prefix: "T-"}, WithLanguageCode("es"))

			reply, err := g.Chat(context.Background(), Turn{Message: "hello", UserID: testUser})
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if reply.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", reply.Text, tt.wantText)
			}
			if engine.queries[0].LanguageCode != "es" {
				t.Errorf("engine language = %q, want es", engine.queries[0].LanguageCode)
			}
		})
	}
}

func TestGateway_Chat_EngineSeesMergedContext(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &nlu.Result{
		Text:          "Which clinic?",
		Intent:        "appointment.book",
		OutputContext: map[string]string{"service": "vaccination"},
	}}
	g, _ := newGateway(t, engine, fakeTranslator{language: "en"})

	if _, err := g.Chat(context.Background(), Turn{
		Message:     "book a vaccine",
		UserID:      testUser,
		ContextData: map[string]any{"clinic": "north"},
	}); err != nil {
		t.Fatalf("first Chat() error = %v", err)
	}
	if _, err := g.Chat(context.Background(), Turn{
		Message:     "tomorrow",
		UserID:      testUser,
		ContextData: map[string]any{"clinic": "south"},
	}); err != nil {
		t.Fatalf("second Chat() error = %v", err)
	}

	q := engine.queries[1]
	if q.Context["clinic"] != "south" || q.Context["service"] != "vaccination" {
		t.Errorf("engine context = %v, want stored slots with caller override", q.Context)
	}
}

func TestGateway_Chat_MarkupOnlyMessageReachesEngine(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &nlu.Result{Text: "Sorry?", Intent: "fallback.default"}}
	g, _ := newGateway(t, engine, fakeTranslator{language: "en"})

	if _, err := g.Chat(context.Background(), Turn{Message: "<br>", UserID: testUser}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if engine.calls() != 1 || engine.queries[0].Text != "" {
		t.Errorf("queries = %+v, want one sanitized empty query", engine.queries)
	}
}
