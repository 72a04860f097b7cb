package content

import "encoding/json"

var emptyObject = json.RawMessage(`{}`)

// Compile merges page envelopes into the final document. Later envelopes of
// a singular kind (home, about) win; seo and utility pages accumulate in
// arrival order. Skip and unknown envelopes are ignored.
func Compile(envelopes []*PageEnvelope) *FinalDocument {
	final := &FinalDocument{
		Home:         emptyObject,
		About:        emptyObject,
		SEOPages:     []json.RawMessage{},
		UtilityPages: []json.RawMessage{},
	}

	for _, env := range envelopes {
		if env == nil {
			continue
		}
		switch env.PageKind {
		case KindHome:
			if len(env.Home) > 0 {
				final.Home = env.Home
			}
		case KindAbout:
			if len(env.About) > 0 {
				final.About = env.About
			}
		case KindSEOPage:
			if len(env.SEOPage) > 0 {
				final.SEOPages = append(final.SEOPages, env.SEOPage)
			}
		case KindUtility:
			if len(env.UtilityPage) > 0 {
				final.UtilityPages = append(final.UtilityPages, env.UtilityPage)
			}
		}
	}
	return final
}

// KindCounts tallies envelope kinds for progress logging.
func KindCounts(envelopes []*PageEnvelope) map[string]int {
	counts := map[string]int{}
	for _, env := range envelopes {
		if env == nil {
			continue
		}
		kind := env.PageKind
		if kind == "" {
			kind = "unknown"
		}
		counts[kind]++
	}
	return counts
}
