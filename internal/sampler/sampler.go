// Package sampler reduces an HTTP response to a fixed-size feature vector
// used to seed and query the wildcard detector.
//
// The body-prefix hash covers at most 1KiB, so it is immune to body-tail
// drift (trailing timestamps, request IDs) that full-body hashing would
// register as a difference. Title, error-phrase, and tag-count extraction
// are regex/substring scans over the same already-read body; no second I/O
// pass, no HTML parsing.
package sampler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/scanhound/scanhound/internal/types"
)

// prefixSize is the maximum number of body bytes hashed for the signature.
const prefixSize = 1024

// titleRE matches a <title>...</title> element case-insensitively.
var titleRE = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// tagRE matches an opening or closing HTML tag of the form </?\w+[^>]*>.
var tagRE = regexp.MustCompile(`</?\w+[^>]*>`)

// errorPhrases is ordered most-specific-first: longer, more distinctive
// phrases are checked before their shorter, more generic substrings so that
// e.g. "404 Not Found" is reported instead of the looser "Not Found".
var errorPhrases = []string{
	"404 Not Found",
	"403 Forbidden",
	"500 Internal Server Error",
	"Access Denied",
	"Not Found",
	"Forbidden",
}

// FromResponse builds a Sample from a response body, status code, and
// headers. It is a pure function: no I/O, deterministic in its inputs.
func FromResponse(body string, status int, headers http.Header) types.Sample {
	return types.Sample{
		Size:        int64(len(body)),
		SHA256:      prefixHash(body),
		Status:      status,
		Title:       extractTitle(body),
		ErrorPhrase: extractErrorPhrase(body),
		Headers:     snapshotHeaders(headers),
		LineCount:   countLines(body),
		WordCount:   countWords(body),
		TagCount:    len(tagRE.FindAllStringIndex(body, -1)),
	}
}

// prefixHash hashes the body, truncated to at most prefixSize bytes at a
// valid UTF-8 character boundary, and returns the lowercase hex digest.
//
// Truncating at a rune boundary (rather than a raw byte offset) keeps the
// hash well-defined for multi-byte encodings: it never splits a multi-byte
// rune in half, so the same logical prefix always hashes the same way.
func prefixHash(body string) string {
	prefix := body
	if len(body) > prefixSize {
		end := prefixSize
		for end > 0 && !utf8.RuneStart(body[end]) {
			end--
		}
		prefix = body[:end]
	}
	sum := sha256.Sum256([]byte(prefix))
	return hex.EncodeToString(sum[:])
}

// extractTitle returns the trimmed inner text of the first <title> element,
// or "" if none is present.
func extractTitle(body string) string {
	m := titleRE.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractErrorPhrase returns the first known error phrase that appears
// anywhere in the body, checked in errorPhrases order, or "" if none match.
func extractErrorPhrase(body string) string {
	for _, phrase := range errorPhrases {
		if strings.Contains(body, phrase) {
			return phrase
		}
	}
	return ""
}

// snapshotHeaders makes a shallow, single-valued copy of headers (first
// value per key).
func snapshotHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// countLines counts line-separators using standard text-line semantics: an
// empty body has 0 lines, and a body with n newline-terminated lines (with
// or without a trailing newline) counts n or n+1 consistently with
// strings.Count plus a final partial-line allowance.
func countLines(body string) int {
	if body == "" {
		return 0
	}
	n := strings.Count(body, "\n")
	if !strings.HasSuffix(body, "\n") {
		n++
	}
	return n
}

// countWords counts whitespace-delimited tokens.
func countWords(body string) int {
	return len(strings.Fields(body))
}
