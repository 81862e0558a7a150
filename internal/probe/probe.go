// Package probe verifies that a credential actually works against the
// provider, beyond looking unexpired locally.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const probeTimeout = 15 * time.Second

// Verify performs a minimal authenticated API call with the given
// OAuth access token. A nil return means the token is accepted by the
// provider.
func Verify(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("empty access token")
	}
	client := anthropic.NewClient(option.WithAuthToken(accessToken))
	return list(ctx, client)
}

// VerifyAPIKey performs the same check with a static API key, against
// a custom endpoint when one is configured.
func VerifyAPIKey(ctx context.Context, apiKey, baseURL string) error {
	if apiKey == "" {
		return fmt.Errorf("empty API key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return list(ctx, client)
}

func list(ctx context.Context, client anthropic.Client) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("credential probe failed: %w", err)
	}
	return nil
}
