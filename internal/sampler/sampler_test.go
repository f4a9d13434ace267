package sampler

import (
	"net/http"
	"strings"
	"testing"
)

// =============================================================================
// Section 1.1: Empty Body Sampling
// =============================================================================

// TestFromResponseEmptyBody tests that an empty body yields all-zero counts
// and absent title/error fields.
func TestFromResponseEmptyBody(t *testing.T) {
	s := FromResponse("", 404, http.Header{})

	if s.Size != 0 {
		t.Errorf("Size = %d, want 0", s.Size)
	}
	if s.Title != "" {
		t.Errorf("Title = %q, want empty", s.Title)
	}
	if s.ErrorPhrase != "" {
		t.Errorf("ErrorPhrase = %q, want empty", s.ErrorPhrase)
	}
	if s.LineCount != 0 {
		t.Errorf("LineCount = %d, want 0", s.LineCount)
	}
	if s.WordCount != 0 {
		t.Errorf("WordCount = %d, want 0", s.WordCount)
	}
	if s.TagCount != 0 {
		t.Errorf("TagCount = %d, want 0", s.TagCount)
	}
}

// =============================================================================
// Section 1.2: Title / Error Phrase Extraction
// =============================================================================

func TestFromResponseTitleExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"simple", "<html><head><title>Hello</title></head></html>", "Hello"},
		{"whitespace trimmed", "<title>  spaced out  </title>", "spaced out"},
		{"case insensitive tag", "<TITLE>Upper</TITLE>", "Upper"},
		{"absent", "<html><body>no title here</body></html>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := FromResponse(tt.body, 200, http.Header{})
			if s.Title != tt.want {
				t.Errorf("Title = %q, want %q", s.Title, tt.want)
			}
		})
	}
}

func TestFromResponseErrorPhrasePriority(t *testing.T) {
	// "404 Not Found" must win over the looser "Not Found" substring.
	s := FromResponse("Error: 404 Not Found - the resource was Not Found", 404, http.Header{})
	if s.ErrorPhrase != "404 Not Found" {
		t.Errorf("ErrorPhrase = %q, want %q", s.ErrorPhrase, "404 Not Found")
	}
}

func TestFromResponseErrorPhraseAbsent(t *testing.T) {
	s := FromResponse("Welcome to the site", 200, http.Header{})
	if s.ErrorPhrase != "" {
		t.Errorf("ErrorPhrase = %q, want empty", s.ErrorPhrase)
	}
}

// =============================================================================
// Section 1.3: Hash Stability & Multi-byte Safety
// =============================================================================

func TestFromResponseHashDeterministic(t *testing.T) {
	body := "identical body content"
	a := FromResponse(body, 200, http.Header{})
	b := FromResponse(body, 200, http.Header{})
	if a.SHA256 != b.SHA256 {
		t.Errorf("hash not deterministic: %q != %q", a.SHA256, b.SHA256)
	}
}

func TestFromResponseHashMultiByteBoundary(t *testing.T) {
	// Build a body whose byte 1024 lands mid-rune for a 3-byte UTF-8 char,
	// and verify FromResponse never panics and produces a stable hash.
	var sb strings.Builder
	for sb.Len() < prefixSize+100 {
		sb.WriteString("日本語テスト") // each rune is 3 bytes in UTF-8
	}
	body := sb.String()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("FromResponse panicked on multi-byte boundary: %v", r)
		}
	}()
	s1 := FromResponse(body, 200, http.Header{})
	s2 := FromResponse(body, 200, http.Header{})

	if s1.SHA256 != s2.SHA256 {
		t.Errorf("hash not stable across calls on multi-byte body")
	}
}

// =============================================================================
// Section 1.4: Headers Snapshot
// =============================================================================

func TestFromResponseHeaderSnapshot(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "text/html")
	h.Set("X-Custom", "value")

	s := FromResponse("<html></html>", 200, h)

	if s.Headers["Content-Type"] != "text/html" {
		t.Errorf("Headers[Content-Type] = %q, want text/html", s.Headers["Content-Type"])
	}
	if s.Headers["X-Custom"] != "value" {
		t.Errorf("Headers[X-Custom] = %q, want value", s.Headers["X-Custom"])
	}
}

// =============================================================================
// Section 1.5: Line / Word / Tag Counts
// =============================================================================

func TestFromResponseLineWordTagCounts(t *testing.T) {
	body := "<html>\n<body>hello world</body>\n</html>"
	s := FromResponse(body, 200, http.Header{})

	if s.LineCount != 3 {
		t.Errorf("LineCount = %d, want 3", s.LineCount)
	}
	// Tokens are whitespace-delimited, so markup glued to text counts as one
	// token: "<html>", "<body>hello", "world</body>", "</html>".
	if s.WordCount != 4 {
		t.Errorf("WordCount = %d, want 4", s.WordCount)
	}
	if s.TagCount != 4 {
		t.Errorf("TagCount = %d, want 4", s.TagCount)
	}
}
