package models

// TrainIntentRequest describes a new intent to add to the NLU agent.
type TrainIntentRequest struct {
	IntentName      string   `json:"intentName" validate:"required,max=100"`
	TrainingPhrases []string `json:"trainingPhrases" validate:"required,min=1,max=200,dive,required,max=768"`
	ResponseText    string   `json:"responseText" validate:"required,max=4000"`
}

// TrainIntentResult reports the outcome of an intent training request.
type TrainIntentResult struct {
	Message  string `json:"message"`
	IntentID string `json:"intentId,omitempty"`
	JobID    string `json:"jobId,omitempty"`
	Queued   bool   `json:"queued"`
}

// AdminClaims are the claims extracted from a verified admin token.
type AdminClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	Issuer  string `json:"iss"`
	Exp     int64  `json:"exp"`
}
