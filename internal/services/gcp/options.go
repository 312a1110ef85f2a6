// Package gcp builds client options for the Google APIs the chatbot talks to.
package gcp

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// CloudPlatformScope covers both Dialogflow and Cloud Translation.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ClientOptions returns the options for a Google API client. A service account
// file takes precedence over an API key; with neither, Application Default
// Credentials are used.
func ClientOptions(ctx context.Context, credentialsFile, apiKey string, scopes ...string) ([]option.ClientOption, error) {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}

	switch {
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSONWithType(ctx, data, google.ServiceAccount, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
		}
		return []option.ClientOption{option.WithCredentials(creds)}, nil
	case apiKey != "":
		return []option.ClientOption{option.WithAPIKey(apiKey)}, nil
	default:
		return nil, nil
	}
}
