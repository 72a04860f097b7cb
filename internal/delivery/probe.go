package delivery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// probeTimeout bounds one readiness probe.
const probeTimeout = 15 * time.Second

// Prober checks whether a destination's preview site answers.
type Prober struct {
	client *http.Client
}

// NewProber builds a prober with the default HTTP client and timeout.
func NewProber() *Prober {
	return &Prober{client: &http.Client{Timeout: probeTimeout}}
}

// NewProberWithClient builds a prober with a custom HTTP client, for tests.
func NewProberWithClient(client *http.Client) *Prober {
	return &Prober{client: client}
}

// Probe GETs url and reports readiness. Any 2xx answer counts as ready; the
// page title comes back when parseable, for operator-facing logs.
func (p *Prober) Probe(ctx context.Context, url string) (title string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("bad probe url: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("probe returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		// Ready but unparseable is still ready.
		return "", nil
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}
