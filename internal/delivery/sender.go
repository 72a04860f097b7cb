package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/outbox"
)

// sendTimeout bounds one delivery POST end to end.
const sendTimeout = 30 * time.Second

// maxBodyEcho bounds how much response body lands in an outcome string.
const maxBodyEcho = 600

// Claimer is the outbox surface the sender needs.
type Claimer interface {
	Claim(ctx context.Context, id uuid.UUID) (*outbox.Delivery, bool, error)
	MarkSent(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) (bool, error)
}

// PayloadLoader resolves a payload reference to the compiled document.
type PayloadLoader interface {
	LoadByRef(ctx context.Context, ref string) (json.RawMessage, error)
}

// Sender claims outbox records and POSTs their compiled content to the
// resolved destination.
type Sender struct {
	outbox  Claimer
	payload PayloadLoader
	client  *http.Client
}

// NewSender builds a sender with the default HTTP client and timeout.
func NewSender(ob Claimer, payload PayloadLoader) *Sender {
	return &Sender{
		outbox:  ob,
		payload: payload,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

// NewSenderWithClient builds a sender with a custom HTTP client, for tests.
func NewSenderWithClient(ob Claimer, payload PayloadLoader, client *http.Client) *Sender {
	return &Sender{outbox: ob, payload: payload, client: client}
}

// Send claims the record and performs one delivery attempt. Returns the
// outcome string recorded against the record ("posted:<code>" on success,
// "<code>:<body>" or an error description on failure), whether the claim was
// won, and any infrastructure error. A lost claim means another worker owns
// the record; callers just move on.
func (s *Sender) Send(ctx context.Context, id uuid.UUID) (string, bool, error) {
	d, won, err := s.outbox.Claim(ctx, id)
	if err != nil {
		return "", false, err
	}
	if !won {
		return "", false, nil
	}

	outcome, sendErr := s.attempt(ctx, d)
	if sendErr != nil {
		if _, err := s.outbox.MarkFailed(ctx, id, outcome); err != nil {
			return outcome, true, err
		}
		return outcome, true, nil
	}

	if _, err := s.outbox.MarkSent(ctx, id); err != nil {
		return outcome, true, err
	}
	return outcome, true, nil
}

// attempt performs the POST and renders the outcome string.
func (s *Sender) attempt(ctx context.Context, d *outbox.Delivery) (string, error) {
	target := d.TargetURL()
	if target == "" {
		return "no target url configured", fmt.Errorf("delivery %s has no target url", d.ID)
	}

	doc, err := s.payload.LoadByRef(ctx, d.PayloadRef)
	if err != nil {
		return fmt.Sprintf("payload load failed: %v", err), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(doc))
	if err != nil {
		return fmt.Sprintf("bad target url: %v", err), err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("request failed: %v", err), err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyEcho))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return fmt.Sprintf("posted:%d", resp.StatusCode), nil
	}
	return fmt.Sprintf("%d:%s", resp.StatusCode, body), fmt.Errorf("destination returned %d", resp.StatusCode)
}
