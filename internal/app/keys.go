package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdickies/savor/internal/llm"
)

// SetAPIKey stores the Gemini API key.
func (a *App) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is empty")
	}
	if err := a.keys.Set(ctx, llm.APIKeyName, key); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Gemini API key saved.")
	return nil
}

// ShowAPIKey prints the key that would be used, masked, and where it comes from.
func (a *App) ShowAPIKey(ctx context.Context) error {
	key, err := a.drafts.ResolveAPIKey(ctx)
	if err != nil {
		fmt.Fprintln(a.out, llm.UserMessage(err))
		return nil
	}
	source := "environment"
	if stored, err := a.keys.Get(ctx, llm.APIKeyName); err == nil && strings.TrimSpace(stored) == key {
		source = "keystore"
	}
	fmt.Fprintf(a.out, "%s (from %s)\n", maskKey(key), source)
	return nil
}

// DeleteAPIKey removes the stored key. The environment fallback is unaffected.
func (a *App) DeleteAPIKey(ctx context.Context) error {
	if err := a.keys.Delete(ctx, llm.APIKeyName); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Gemini API key removed.")
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
