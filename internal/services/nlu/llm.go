package nlu

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// llmSystemPrompt turns a general-purpose model into an intent classifier for
// the patient-facing assistant.
const llmSystemPrompt = `You are the intent detection engine of a telemedicine assistant that helps patients with vaccines, medications, and appointments.
For each user message respond with a single JSON object and nothing else:
{"text": "<reply to the user>", "intent": "<snake_case intent name>", "confidence": <number between 0 and 1>, "parameters": {<extracted entities>}, "action": "<follow-up action or empty>", "all_required_params_present": <true|false>, "context": {<string slots to remember for later turns>}}
Never give a diagnosis. Suggest booking an appointment when the user describes symptoms.`

const maxLLMPreview = 200

// llmReply is the JSON contract the LLM engines prompt for.
type llmReply struct {
	Text                     string            `json:"text"`
	Intent                   string            `json:"intent"`
	Confidence               float64           `json:"confidence"`
	Parameters               map[string]any    `json:"parameters"`
	Action                   string            `json:"action"`
	AllRequiredParamsPresent *bool             `json:"all_required_params_present"`
	Context                  map[string]string `json:"context"`
}

// buildLLMPrompt renders the user turn with its dialogue context.
func buildLLMPrompt(q Query) string {
	var b strings.Builder
	lang := q.LanguageCode
	if lang == "" {
		lang = DefaultLanguageCode
	}
	fmt.Fprintf(&b, "Conversation: %s\nReply language: %s\n", q.SessionID, lang)

	if len(q.Context) > 0 {
		b.WriteString("Known context:\n")
		for _, k := range slices.Sorted(maps.Keys(q.Context)) {
			fmt.Fprintf(&b, "- %s: %v\n", k, q.Context[k])
		}
	}
	fmt.Fprintf(&b, "User message: %s", q.Text)
	return b.String()
}

// parseLLMReply decodes a model answer, tolerating prose around the JSON object.
func parseLLMReply(content string) (*Result, error) {
	var reply llmReply
	raw := strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("failed to parse engine reply: %w", err)
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
			return nil, fmt.Errorf("failed to parse engine reply: %w", err)
		}
	}

	if strings.TrimSpace(reply.Text) == "" {
		return nil, ErrEmptyResult
	}

	res := &Result{
		Text:                     reply.Text,
		Intent:                   reply.Intent,
		Confidence:               min(max(reply.Confidence, 0), 1),
		Parameters:               reply.Parameters,
		Action:                   reply.Action,
		AllRequiredParamsPresent: true,
		OutputContext:            map[string]string{},
	}
	if res.Intent == "" {
		res.Intent = "unknown"
	}
	if res.Parameters == nil {
		res.Parameters = map[string]any{}
	}
	if reply.AllRequiredParamsPresent != nil {
		res.AllRequiredParamsPresent = *reply.AllRequiredParamsPresent
	}
	for k, v := range reply.Context {
		if k != "" && v != "" {
			res.OutputContext[k] = v
		}
	}
	return res, nil
}
