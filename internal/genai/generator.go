package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/schemas"
)

// Generator turns intake payloads into validated sitemap and page artifacts.
// Provider errors classified as transient are retried with exponential
// backoff; schema validation failures are returned to the caller, who owns
// the coarser re-prompt loop.
type Generator struct {
	client Client

	// TransientRetries is the number of additional provider calls made
	// after a transient failure before giving up on this attempt.
	TransientRetries int
	// BaseBackoff is the initial delay between transient retries.
	BaseBackoff time.Duration
}

// NewGenerator wraps client with the retry policy used by the pipeline.
func NewGenerator(client Client, transientRetries int, baseBackoff time.Duration) *Generator {
	if transientRetries <= 0 {
		transientRetries = 4
	}
	if baseBackoff <= 0 {
		baseBackoff = 800 * time.Millisecond
	}
	return &Generator{
		client:           client,
		TransientRetries: transientRetries,
		BaseBackoff:      baseBackoff,
	}
}

// GenerateSitemap produces the site plan from the intake metadata and user
// answers.
func (g *Generator) GenerateSitemap(ctx context.Context, metadata, userData json.RawMessage) (*content.SitemapDoc, error) {
	prompt, err := sitemapPrompt(metadata, userData)
	if err != nil {
		return nil, err
	}

	raw, err := g.generateValidated(ctx, prompt, TierAdvanced, schemas.ValidateSitemap)
	if err != nil {
		return nil, fmt.Errorf("sitemap generation: %w", err)
	}

	var doc content.SitemapDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("sitemap generation: decode: %w", err)
	}
	return &doc, nil
}

// GeneratePage produces one page envelope for the row in input.ThisPage.
func (g *Generator) GeneratePage(ctx context.Context, input content.GenerationInput) (*content.PageEnvelope, error) {
	if input.ThisPage == nil {
		return nil, fmt.Errorf("page generation: no target row")
	}

	prompt, err := pagePrompt(input)
	if err != nil {
		return nil, err
	}

	raw, err := g.generateValidated(ctx, prompt, TierStandard, schemas.ValidateEnvelope)
	if err != nil {
		return nil, fmt.Errorf("page generation %s: %w", input.ThisPage.Path, err)
	}

	var env content.PageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("page generation %s: decode: %w", input.ThisPage.Path, err)
	}
	return &env, nil
}

// generateValidated calls the provider and validates the response, retrying
// only transient provider failures. Invalid JSON or a schema violation ends
// the attempt immediately.
func (g *Generator) generateValidated(ctx context.Context, prompt string, tier ModelTier, check func([]byte) error) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.BaseBackoff
	bo.MaxElapsedTime = 0

	var out []byte
	op := func() error {
		text, err := g.client.GenerateJSON(ctx, prompt, tier)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		raw := []byte(text)
		if !json.Valid(raw) {
			return backoff.Permanent(fmt.Errorf("response is not valid JSON"))
		}
		if err := check(raw); err != nil {
			return backoff.Permanent(err)
		}
		out = raw
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(g.TransientRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return out, nil
}
