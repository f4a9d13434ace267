// Package filter applies the user-supplied status/size/time/word-count
// filters to a classified response.
//
// ShouldFilter is stateless and does no I/O. Every check is independent, and
// a missing optional field on the response simply skips its corresponding
// clause.
package filter

import "github.com/scanhound/scanhound/internal/types"

// ShouldFilter reports whether resp should be suppressed under f.
func ShouldFilter(resp types.DetailedResponse, f types.FilterSet) bool {
	if codeMatches(resp.Status, f.Codes) {
		return true
	}
	if resp.ContentLength != nil && f.Size != nil && !f.Size.Contains(*resp.ContentLength) {
		return true
	}
	if f.TimeMs != nil {
		responseMs := resp.ResponseTime.Milliseconds()
		if responseMs > *f.TimeMs {
			return true
		}
	}
	if resp.WordCount != nil && f.WordCount != nil && !f.WordCount.Contains(int64(*resp.WordCount)) {
		return true
	}
	return false
}

func codeMatches(status int, codes []int) bool {
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}
