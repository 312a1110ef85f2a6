package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/dialogflow/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/benvon/medvax-chat/internal/models"
)

const (
	// callerContextName is the Dialogflow context carrying caller-supplied slots.
	callerContextName = "chat-context"
	// callerContextLifespan is how many turns the caller context stays live.
	callerContextLifespan = 5
)

// DialogflowEngine detects intents with a Dialogflow ES agent.
type DialogflowEngine struct {
	svc       *dialogflow.Service
	projectID string
	logger    *zap.Logger
}

// NewDialogflowEngine creates an engine for the agent of projectID.
func NewDialogflowEngine(ctx context.Context, projectID string, log *zap.Logger, opts ...option.ClientOption) (*DialogflowEngine, error) {
	if projectID == "" {
		return nil, fmt.Errorf("dialogflow project id not configured")
	}
	if log == nil {
		log = zap.NewNop()
	}

	svc, err := dialogflow.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Dialogflow client: %w", err)
	}
	return &DialogflowEngine{svc: svc, projectID: projectID, logger: log}, nil
}

// Name implements Engine.
func (e *DialogflowEngine) Name() string { return "dialogflow" }

func (e *DialogflowEngine) agentPath() string {
	return "projects/" + e.projectID + "/agent"
}

func (e *DialogflowEngine) sessionPath(sessionID string) string {
	return e.agentPath() + "/sessions/" + sessionID
}

// DetectIntent implements Engine.
func (e *DialogflowEngine) DetectIntent(ctx context.Context, q Query) (*Result, error) {
	lang := q.LanguageCode
	if lang == "" {
		lang = DefaultLanguageCode
	}
	session := e.sessionPath(q.SessionID)

	req := &dialogflow.GoogleCloudDialogflowV2DetectIntentRequest{
		QueryInput: &dialogflow.GoogleCloudDialogflowV2QueryInput{
			Text: &dialogflow.GoogleCloudDialogflowV2TextInput{
				Text:         q.Text,
				LanguageCode: lang,
			},
		},
	}
	if len(q.Context) > 0 {
		params, err := json.Marshal(stringifyContext(q.Context))
		if err != nil {
			return nil, fmt.Errorf("failed to encode context parameters: %w", err)
		}
		req.QueryParams = &dialogflow.GoogleCloudDialogflowV2QueryParameters{
			Contexts: []*dialogflow.GoogleCloudDialogflowV2Context{{
				Name:          session + "/contexts/" + callerContextName,
				LifespanCount: callerContextLifespan,
				Parameters:    googleapi.RawMessage(params),
			}},
		}
	}

	start := time.Now()
	resp, err := e.svc.Projects.Agent.Sessions.DetectIntent(session, req).Context(ctx).Do()
	if err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to detect intent: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to detect intent: %w", err)
	}
	if resp.QueryResult == nil {
		return nil, ErrEmptyResult
	}
	qr := resp.QueryResult

	res := &Result{
		Text:                     qr.FulfillmentText,
		Confidence:               qr.IntentDetectionConfidence,
		Action:                   qr.Action,
		AllRequiredParamsPresent: qr.AllRequiredParamsPresent,
		OutputContext:            map[string]string{},
		Parameters:               map[string]any{},
	}
	if qr.Intent != nil {
		res.Intent = qr.Intent.DisplayName
	}
	if len(qr.Parameters) > 0 {
		if err := json.Unmarshal(qr.Parameters, &res.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode intent parameters: %w", err)
		}
	}
	// Only the most recent output context is carried, and only its string slots.
	if len(qr.OutputContexts) > 0 && qr.OutputContexts[0] != nil && len(qr.OutputContexts[0].Parameters) > 0 {
		var fields map[string]any
		if err := json.Unmarshal(qr.OutputContexts[0].Parameters, &fields); err == nil {
			for k, v := range fields {
				if s, ok := v.(string); ok && s != "" {
					res.OutputContext[k] = s
				}
			}
		}
	}

	e.logger.Debug("dialogflow_intent_detected",
		zap.String("session_id", q.SessionID),
		zap.String("intent", res.Intent),
		zap.Float64("confidence", res.Confidence),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}

// CreateIntent adds an intent with example phrases and a fixed text response to the agent.
func (e *DialogflowEngine) CreateIntent(ctx context.Context, req *models.TrainIntentRequest) (*models.TrainIntentResult, error) {
	phrases := make([]*dialogflow.GoogleCloudDialogflowV2IntentTrainingPhrase, 0, len(req.TrainingPhrases))
	for _, p := range req.TrainingPhrases {
		phrases = append(phrases, &dialogflow.GoogleCloudDialogflowV2IntentTrainingPhrase{
			Type:  "EXAMPLE",
			Parts: []*dialogflow.GoogleCloudDialogflowV2IntentTrainingPhrasePart{{Text: p}},
		})
	}

	intent := &dialogflow.GoogleCloudDialogflowV2Intent{
		DisplayName:     req.IntentName,
		TrainingPhrases: phrases,
		Messages: []*dialogflow.GoogleCloudDialogflowV2IntentMessage{{
			Text: &dialogflow.GoogleCloudDialogflowV2IntentMessageText{Text: []string{req.ResponseText}},
		}},
	}

	created, err := e.svc.Projects.Agent.Intents.Create(e.agentPath(), intent).Context(ctx).Do()
	if err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to create intent: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to create intent: %w", err)
	}

	e.logger.Info("dialogflow_intent_created",
		zap.String("intent_name", created.DisplayName),
		zap.String("intent_id", created.Name),
		zap.Int("training_phrases", len(phrases)),
	)
	return &models.TrainIntentResult{
		Message:  fmt.Sprintf("Intent %s added!", created.DisplayName),
		IntentID: created.Name,
	}, nil
}

// stringifyContext renders scalar slots as Dialogflow string parameters.
func stringifyContext(c models.ContextData) map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

var (
	_ Engine        = (*DialogflowEngine)(nil)
	_ IntentTrainer = (*DialogflowEngine)(nil)
)
