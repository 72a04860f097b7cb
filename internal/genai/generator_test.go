package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/schemas"
)

// fakeClient returns a scripted sequence of responses, one per call.
type fakeClient struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeClient) GenerateJSON(_ context.Context, _ string, _ ModelTier) (string, error) {
	if f.calls >= len(f.responses) {
		return "", fmt.Errorf("unexpected call %d", f.calls)
	}
	r := f.responses[f.calls]
	f.calls++
	return r.text, r.err
}

func (f *fakeClient) GetModel(_ ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error                { return nil }

func validSitemapJSON() string {
	doc := content.SitemapDoc{
		Version: "1",
		Meta:    json.RawMessage(`{}`),
		Headers: json.RawMessage(`[]`),
		Rows: []content.SitemapRow{
			{Path: "/", PageType: "home", GenerativeContent: true},
		},
	}
	raw, _ := json.Marshal(doc)
	return string(raw)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &googleapi.Error{Code: 429}, true},
		{"server error", &googleapi.Error{Code: 503}, true},
		{"bad request", &googleapi.Error{Code: 400}, false},
		{"unauthorized", &googleapi.Error{Code: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"rate limit text", errors.New("provider said rate limit exceeded"), true},
		{"plain error", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestGenerateSitemap_RetriesTransient(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: &googleapi.Error{Code: 429}},
		{err: &googleapi.Error{Code: 500}},
		{text: validSitemapJSON()},
	}}
	g := NewGenerator(client, 4, time.Millisecond)

	doc, err := g.GenerateSitemap(context.Background(), json.RawMessage(`{}`), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, "/", doc.Rows[0].Path)
	assert.Equal(t, 3, client.calls)
}

func TestGenerateSitemap_ExhaustsTransientRetries(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: &googleapi.Error{Code: 503}},
		{err: &googleapi.Error{Code: 503}},
		{err: &googleapi.Error{Code: 503}},
	}}
	g := NewGenerator(client, 2, time.Millisecond)

	_, err := g.GenerateSitemap(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestGenerateSitemap_PermanentErrorNotRetried(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: &googleapi.Error{Code: 400}},
	}}
	g := NewGenerator(client, 4, time.Millisecond)

	_, err := g.GenerateSitemap(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestGeneratePage_ValidationFailureNotRetried(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{text: `{"path": "/about"}`}, // missing page_kind
	}}
	g := NewGenerator(client, 4, time.Millisecond)

	input := content.GenerationInput{
		Metadata:    json.RawMessage(`{}`),
		UserData:    json.RawMessage(`{}`),
		SitemapData: &content.SitemapDoc{Version: "1"},
		ThisPage:    &content.SitemapRow{Path: "/about", PageType: "about"},
	}
	_, err := g.GeneratePage(context.Background(), input)
	require.Error(t, err)
	assert.True(t, schemas.IsValidation(err), "want validation error, got %v", err)
	assert.Equal(t, 1, client.calls)
}

func TestGeneratePage_Success(t *testing.T) {
	env := content.PageEnvelope{
		PageKind: content.KindAbout,
		Path:     "/about",
		About:    json.RawMessage(`{"heading": "About us"}`),
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	client := &fakeClient{responses: []fakeResponse{{text: string(raw)}}}
	g := NewGenerator(client, 4, time.Millisecond)

	input := content.GenerationInput{
		SitemapData: &content.SitemapDoc{Version: "1"},
		ThisPage:    &content.SitemapRow{Path: "/about", PageType: "about"},
	}
	got, err := g.GeneratePage(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, content.KindAbout, got.PageKind)
	assert.Equal(t, "/about", got.Path)
}

func TestGeneratePage_RequiresTargetRow(t *testing.T) {
	g := NewGenerator(&fakeClient{}, 1, time.Millisecond)
	_, err := g.GeneratePage(context.Background(), content.GenerationInput{})
	require.Error(t, err)
}
