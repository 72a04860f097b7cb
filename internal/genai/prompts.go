package genai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/content-pipeline/internal/content"
)

const sitemapInstructions = `You are a website information architect. From the business
metadata and questionnaire answers below, plan the site's pages.

Respond with a single JSON object:
  {"version": "1", "meta": {...}, "headers": [...], "rows": [...]}

Each row must include: path, page_type, page_title, html_title,
meta_description, index, follow, canonical, sort_order, locale, notes,
generative_content, content_page_type. Paths start with "/". Set
generative_content to false for pages whose copy is fixed (contact forms,
thank-you pages). Respond with JSON only, no markdown.`

const pageInstructions = `You are a copywriter producing one page of a website. Use the
business metadata, questionnaire answers and full site plan for context;
write copy only for the target page.

Respond with a single JSON object:
  {"page_kind": "...", "path": "...", "<kind>": {...}}

page_kind is one of home, about, seo_page, utility_page or skip, and the
payload field must match it (e.g. page_kind "home" carries a "home" object).
Use "skip" with a "reason" when the page needs no generated copy. Respond
with JSON only, no markdown.`

func sitemapPrompt(metadata, userData json.RawMessage) (string, error) {
	var sb strings.Builder
	sb.WriteString(sitemapInstructions)
	if err := writeSection(&sb, "BUSINESS METADATA", metadata); err != nil {
		return "", err
	}
	if err := writeSection(&sb, "QUESTIONNAIRE ANSWERS", userData); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func pagePrompt(input content.GenerationInput) (string, error) {
	var sb strings.Builder
	sb.WriteString(pageInstructions)
	if err := writeSection(&sb, "BUSINESS METADATA", input.Metadata); err != nil {
		return "", err
	}
	if err := writeSection(&sb, "QUESTIONNAIRE ANSWERS", input.UserData); err != nil {
		return "", err
	}

	plan, err := json.Marshal(input.SitemapData)
	if err != nil {
		return "", fmt.Errorf("encode site plan: %w", err)
	}
	if err := writeSection(&sb, "SITE PLAN", plan); err != nil {
		return "", err
	}

	row, err := json.Marshal(input.ThisPage)
	if err != nil {
		return "", fmt.Errorf("encode target page: %w", err)
	}
	return sb.String() + fmt.Sprintf("\n\nTARGET PAGE:\n%s\n", row), nil
}

func writeSection(sb *strings.Builder, title string, doc json.RawMessage) error {
	if len(doc) == 0 {
		doc = json.RawMessage("{}")
	}
	if !json.Valid(doc) {
		return fmt.Errorf("%s is not valid JSON", strings.ToLower(title))
	}
	fmt.Fprintf(sb, "\n\n%s:\n%s", title, doc)
	return nil
}
