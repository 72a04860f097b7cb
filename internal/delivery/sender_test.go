package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/outbox"
)

// fakeOutbox is an in-memory Claimer tracking the transitions a real store
// would make.
type fakeOutbox struct {
	delivery *outbox.Delivery
	claimed  bool
	sent     bool
	failed   bool
	lastErr  string
}

func (f *fakeOutbox) Claim(_ context.Context, id uuid.UUID) (*outbox.Delivery, bool, error) {
	if f.delivery == nil || f.delivery.ID != id || f.claimed {
		return nil, false, nil
	}
	f.claimed = true
	f.delivery.Status = outbox.StatusSending
	f.delivery.AttemptCount++
	return f.delivery, true, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, _ uuid.UUID) (bool, error) {
	f.sent = true
	f.delivery.Status = outbox.StatusSent
	return true, nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, _ uuid.UUID, errText string) (bool, error) {
	f.failed = true
	f.lastErr = errText
	f.delivery.Status = outbox.StatusFailed
	return true, nil
}

type fakePayloads map[string]json.RawMessage

func (f fakePayloads) LoadByRef(_ context.Context, ref string) (json.RawMessage, error) {
	doc, ok := f[ref]
	if !ok {
		return nil, fmt.Errorf("no copy stored for reference %q", ref)
	}
	return doc, nil
}

func newTestDelivery(target string) *outbox.Delivery {
	return &outbox.Delivery{
		ID:               uuid.New(),
		JobID:            "job-1",
		PayloadRef:       "copy:job-1",
		DefaultTargetURL: target,
		Status:           outbox.StatusReadyToSend,
	}
}

func TestSend_Success(t *testing.T) {
	var gotBody string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ob := &fakeOutbox{delivery: newTestDelivery(srv.URL)}
	payloads := fakePayloads{"copy:job-1": json.RawMessage(`{"home":{}}`)}
	sender := NewSender(ob, payloads)

	outcome, won, err := sender.Send(context.Background(), ob.delivery.ID)
	require.NoError(t, err)
	require.True(t, won)
	assert.Equal(t, "posted:201", outcome)
	assert.True(t, ob.sent)
	assert.False(t, ob.failed)
	assert.Equal(t, `{"home":{}}`, gotBody)
	assert.Equal(t, "application/json", gotContentType)
}

func TestSend_ServerErrorMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer srv.Close()

	ob := &fakeOutbox{delivery: newTestDelivery(srv.URL)}
	payloads := fakePayloads{"copy:job-1": json.RawMessage(`{}`)}
	sender := NewSender(ob, payloads)

	outcome, won, err := sender.Send(context.Background(), ob.delivery.ID)
	require.NoError(t, err)
	require.True(t, won)
	assert.True(t, strings.HasPrefix(outcome, "500:"), "outcome %q", outcome)
	assert.Contains(t, outcome, "upstream exploded")
	assert.True(t, ob.failed)
	assert.Equal(t, outcome, ob.lastErr)
	assert.Equal(t, outbox.StatusFailed, ob.delivery.Status)
}

func TestSend_BodyEchoTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, strings.Repeat("y", 5000))
	}))
	defer srv.Close()

	ob := &fakeOutbox{delivery: newTestDelivery(srv.URL)}
	sender := NewSender(ob, fakePayloads{"copy:job-1": json.RawMessage(`{}`)})

	outcome, _, err := sender.Send(context.Background(), ob.delivery.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(outcome), len("502:")+maxBodyEcho)
}

func TestSend_OverrideURLWins(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDelivery("https://unreachable.invalid/intake")
	override := srv.URL
	d.OverrideTargetURL = &override
	ob := &fakeOutbox{delivery: d}
	sender := NewSender(ob, fakePayloads{"copy:job-1": json.RawMessage(`{}`)})

	outcome, _, err := sender.Send(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "posted:200", outcome)
	assert.Equal(t, 1, hits)
}

func TestSend_LostClaimIsNoop(t *testing.T) {
	ob := &fakeOutbox{delivery: newTestDelivery("https://example.invalid")}
	ob.claimed = true // someone else owns it
	sender := NewSender(ob, fakePayloads{})

	_, won, err := sender.Send(context.Background(), ob.delivery.ID)
	require.NoError(t, err)
	assert.False(t, won)
	assert.False(t, ob.sent)
	assert.False(t, ob.failed)
}

func TestSend_MissingPayloadMarksFailed(t *testing.T) {
	ob := &fakeOutbox{delivery: newTestDelivery("https://example.invalid")}
	sender := NewSender(ob, fakePayloads{})

	outcome, won, err := sender.Send(context.Background(), ob.delivery.ID)
	require.NoError(t, err)
	require.True(t, won)
	assert.Contains(t, outcome, "payload load failed")
	assert.True(t, ob.failed)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Acme Plumbing</title></head><body></body></html>`)
	}))
	defer srv.Close()

	title, err := NewProber().Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", title)
}

func TestProbe_NotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewProber().Probe(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
