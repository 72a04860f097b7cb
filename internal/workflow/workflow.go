// Package workflow is the job orchestrator: it drives a registered job
// through sitemap planning, bounded per-page generation, compilation and the
// durable delivery handoff. Pause and cancel are level-triggered flags read
// at every stage boundary and around every page unit; they surface as the
// control sentinels below, never as panics or preemptive interrupts.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonathan/content-pipeline/internal/content"
)

// Control sentinels. They mark a cooperative unwind, not a failure.
var (
	// ErrPaused means the pause flag was observed at a checkpoint.
	ErrPaused = errors.New("job paused")
	// ErrCanceled means the cancel flag was observed at a checkpoint.
	ErrCanceled = errors.New("job canceled")
)

// nonGenerativePaths never produce generation units regardless of what the
// site plan claims; their content is fixed by the destination theme.
var nonGenerativePaths = map[string]bool{
	"/contact-us":        true,
	"/contact-thank-you": true,
}

// IntakePayload is the stored request a job re-runs from. Metadata and user
// answers stay opaque; an optional pre-supplied site plan skips the sitemap
// stage.
type IntakePayload struct {
	ClientName  string              `json:"client_name"`
	Metadata    json.RawMessage     `json:"metadata"`
	UserData    json.RawMessage     `json:"userdata"`
	SitemapData *content.SitemapDoc `json:"sitemap_data,omitempty"`
}

// ParsePayload decodes a stored intake payload.
func ParsePayload(raw json.RawMessage) (*IntakePayload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no intake payload stored")
	}
	var p IntakePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode intake payload: %w", err)
	}
	if p.ClientName == "" {
		return nil, fmt.Errorf("intake payload has no client_name")
	}
	return &p, nil
}

// generationUnits filters the plan down to rows that need generated copy and
// counts the rest as skipped.
func generationUnits(doc *content.SitemapDoc) (units []content.SitemapRow, skipped int) {
	for _, row := range doc.Rows {
		if !row.GenerativeContent || nonGenerativePaths[row.Path] {
			skipped++
			continue
		}
		units = append(units, row)
	}
	return units, skipped
}
