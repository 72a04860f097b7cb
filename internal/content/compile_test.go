package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile(t *testing.T) {
	envelopes := []*PageEnvelope{
		{PageKind: KindHome, Path: "/", Home: json.RawMessage(`{"hero":"one"}`)},
		{PageKind: KindSEOPage, Path: "/plumbing", SEOPage: json.RawMessage(`{"h1":"Plumbing"}`)},
		nil,
		{PageKind: KindSkip, Path: "/contact-us", Reason: "fixed content"},
		{PageKind: KindAbout, Path: "/about", About: json.RawMessage(`{"heading":"About"}`)},
		{PageKind: KindSEOPage, Path: "/heating", SEOPage: json.RawMessage(`{"h1":"Heating"}`)},
		{PageKind: KindUtility, Path: "/privacy", UtilityPage: json.RawMessage(`{"title":"Privacy"}`)},
	}

	final := Compile(envelopes)

	assert.JSONEq(t, `{"hero":"one"}`, string(final.Home))
	assert.JSONEq(t, `{"heading":"About"}`, string(final.About))
	assert.Len(t, final.SEOPages, 2)
	assert.JSONEq(t, `{"h1":"Plumbing"}`, string(final.SEOPages[0]))
	assert.JSONEq(t, `{"h1":"Heating"}`, string(final.SEOPages[1]))
	assert.Len(t, final.UtilityPages, 1)
}

func TestCompileLaterSingularWins(t *testing.T) {
	final := Compile([]*PageEnvelope{
		{PageKind: KindHome, Home: json.RawMessage(`{"v":1}`)},
		{PageKind: KindHome, Home: json.RawMessage(`{"v":2}`)},
	})
	assert.JSONEq(t, `{"v":2}`, string(final.Home))
}

func TestCompileEmptyInputKeepsShape(t *testing.T) {
	final := Compile(nil)

	raw, err := json.Marshal(final)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"home":{},"about":{},"seo_pages":[],"utility_pages":[]}`, string(raw))
}

func TestCompileIgnoresMismatchedPayload(t *testing.T) {
	// An envelope claiming "home" without a home payload contributes nothing.
	final := Compile([]*PageEnvelope{
		{PageKind: KindHome, About: json.RawMessage(`{"heading":"wrong slot"}`)},
	})
	assert.JSONEq(t, `{}`, string(final.Home))
	assert.JSONEq(t, `{}`, string(final.About))
}

func TestKindCounts(t *testing.T) {
	counts := KindCounts([]*PageEnvelope{
		{PageKind: KindSEOPage},
		{PageKind: KindSEOPage},
		{PageKind: KindSkip},
		{},
		nil,
	})
	assert.Equal(t, map[string]int{KindSEOPage: 2, KindSkip: 1, "unknown": 1}, counts)
}
