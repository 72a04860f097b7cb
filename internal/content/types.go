// Package content defines the data shapes flowing through the generation
// pipeline. Page payloads are opaque JSON at this layer; only the envelope
// level (page kind, path) is modeled, the business schema belongs to the
// generation assistant and the destination site.
package content

import "encoding/json"

// Page kinds produced by the generation assistant.
const (
	KindHome    = "home"
	KindAbout   = "about"
	KindSEOPage = "seo_page"
	KindUtility = "utility_page"
	KindSkip    = "skip"
)

// SitemapRow is one planned page of the site.
type SitemapRow struct {
	Path               string `json:"path"`
	PageType           string `json:"page_type"`
	PageTitle          string `json:"page_title"`
	HTMLTitle          string `json:"html_title"`
	MetaDescription    string `json:"meta_description"`
	Index              bool   `json:"index"`
	Follow             bool   `json:"follow"`
	Canonical          string `json:"canonical"`
	SortOrder          int    `json:"sort_order"`
	Locale             string `json:"locale"`
	Notes              string `json:"notes"`
	GenerativeContent  bool   `json:"generative_content"`
	ContentPageType    string `json:"content_page_type"`
	NavigationCategory string `json:"navigation_category,omitempty"`
	NavigationLabel    string `json:"navigation_label,omitempty"`
}

// SitemapDoc is the generated site plan. Meta and headers are passed
// through untouched.
type SitemapDoc struct {
	Version string          `json:"version"`
	Meta    json.RawMessage `json:"meta"`
	Headers json.RawMessage `json:"headers"`
	Rows    []SitemapRow    `json:"rows"`
}

// PageEnvelope is one generated page. Exactly one of the payload fields is
// set, matching PageKind.
type PageEnvelope struct {
	PageKind    string          `json:"page_kind"`
	Path        string          `json:"path"`
	Home        json.RawMessage `json:"home,omitempty"`
	About       json.RawMessage `json:"about,omitempty"`
	SEOPage     json.RawMessage `json:"seo_page,omitempty"`
	UtilityPage json.RawMessage `json:"utility_page,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// FinalDocument is the compiled deliverable: one home payload, one about
// payload and ordered lists of SEO and utility pages. Missing sections stay
// empty objects so the destination always receives the full shape.
type FinalDocument struct {
	Home         json.RawMessage   `json:"home"`
	About        json.RawMessage   `json:"about"`
	SEOPages     []json.RawMessage `json:"seo_pages"`
	UtilityPages []json.RawMessage `json:"utility_pages"`
}

// GenerationInput is the opaque intake payload plus the per-page context
// handed to the generation assistant.
type GenerationInput struct {
	Metadata    json.RawMessage `json:"metadata"`
	UserData    json.RawMessage `json:"userdata"`
	SitemapData *SitemapDoc     `json:"sitemap_data,omitempty"`
	ThisPage    *SitemapRow     `json:"this_page,omitempty"`
}
