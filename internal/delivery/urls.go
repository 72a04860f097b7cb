// Package delivery performs the outbound half of the pipeline: destination
// URL construction, the HTTP handoff of compiled content, and the readiness
// probe of a destination's preview site.
package delivery

import (
	"fmt"
	"strings"
	"unicode"
)

// Slugify lowercases a client name and collapses every non-alphanumeric run
// into a single hyphen: "Acme Plumbing & Heating" -> "acme-plumbing-heating".
func Slugify(name string) string {
	var sb strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			sb.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

// CondenseName strips everything but letters and digits and lowercases:
// "Acme Plumbing & Heating" -> "acmeplumbingheating". Used for preview
// hostnames, which allow no hyphenated separators between words.
func CondenseName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// BuildDefaultTargetURL renders the destination endpoint from the base URL
// template ({slug} placeholder) and the target path template ({namespace}
// placeholder).
func BuildDefaultTargetURL(baseTemplate, targetPath, namespace, clientName string) (string, error) {
	slug := Slugify(clientName)
	if slug == "" {
		return "", fmt.Errorf("client name %q produces an empty slug", clientName)
	}

	base := strings.ReplaceAll(baseTemplate, "{slug}", slug)
	path := strings.ReplaceAll(targetPath, "{namespace}", namespace)
	return strings.TrimSuffix(base, "/") + path, nil
}

// BuildPreviewURL renders the readiness probe target from the condensed
// client name and the preview hosting domain.
func BuildPreviewURL(previewBaseDomain, clientName string) (string, error) {
	host := CondenseName(clientName)
	if host == "" {
		return "", fmt.Errorf("client name %q produces an empty preview host", clientName)
	}
	return fmt.Sprintf("https://%s.%s/", host, previewBaseDomain), nil
}
