package wildcard

import (
	"testing"

	"github.com/scanhound/scanhound/internal/sampler"
	"github.com/scanhound/scanhound/internal/types"
)

// =============================================================================
// Section 1.1: Self-Detection
// =============================================================================

// TestIsLikelyWildcardSelfMatch verifies that a profile containing only S
// classifies S itself as a wildcard.
func TestIsLikelyWildcardSelfMatch(t *testing.T) {
	body := "<html><head><title>404 Not Found</title></head><body>404 Not Found</body></html>"
	s := sampler.FromResponse(body, 404, nil)

	p := New()
	p.AddSample(s)

	if !p.IsLikelyWildcard(s) {
		t.Error("expected self-sample to be classified as wildcard")
	}
}

// TestIsLikelyWildcardRealHitNotFlagged verifies a distinct real page with
// its own title/body is NOT classified as a wildcard.
func TestIsLikelyWildcardRealHitNotFlagged(t *testing.T) {
	wildcardBody := "<html><head><title>404 Not Found</title></head><body>404 Not Found</body></html>"
	p := New()
	p.AddSample(sampler.FromResponse(wildcardBody, 404, nil))

	realBody := "<html><head><title>Welcome</title></head><body>Hello World</body></html>"
	real := sampler.FromResponse(realBody, 200, nil)

	if p.IsLikelyWildcard(real) {
		t.Error("real 200 hit should not be classified as wildcard")
	}
}

// =============================================================================
// Section 1.2: Range Merge Single-Pass Quirk
// =============================================================================

// TestMergeRangeSinglePass verifies mergeRange coalesces at most one existing
// interval per call.
func TestMergeRangeSinglePass(t *testing.T) {
	ranges := []types.SizeRange{{Min: 100, Max: 200}, {Min: 300, Max: 400}}

	got := mergeRange(ranges, 150, 250)

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0] != (types.SizeRange{Min: 100, Max: 250}) {
		t.Errorf("got[0] = %+v, want {100 250}", got[0])
	}
	if got[1] != (types.SizeRange{Min: 300, Max: 400}) {
		t.Errorf("got[1] = %+v, want {300 400}", got[1])
	}
}

// TestMergeRangeAppendsWhenNoOverlap verifies a non-overlapping interval is
// appended rather than merged.
func TestMergeRangeAppendsWhenNoOverlap(t *testing.T) {
	ranges := []types.SizeRange{{Min: 100, Max: 200}}
	got := mergeRange(ranges, 500, 600)

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[1] != (types.SizeRange{Min: 500, Max: 600}) {
		t.Errorf("got[1] = %+v, want {500 600}", got[1])
	}
}

// TestMergeRangeTouchingIntervalsMerge verifies intervals that merely touch
// (no gap) are still merged, per the "min <= b && a <= max" overlap test.
func TestMergeRangeTouchingIntervalsMerge(t *testing.T) {
	ranges := []types.SizeRange{{Min: 100, Max: 200}}
	got := mergeRange(ranges, 200, 300)

	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0] != (types.SizeRange{Min: 100, Max: 300}) {
		t.Errorf("got[0] = %+v, want {100 300}", got[0])
	}
}

// =============================================================================
// Section 1.3: Monotonicity & Range Non-Degeneracy
// =============================================================================

// TestAddSampleMonotonicHashes verifies AddSample never shrinks the hash set.
func TestAddSampleMonotonicHashes(t *testing.T) {
	p := New()
	p.AddSample(sampler.FromResponse("body one", 404, nil))
	n1 := len(p.hashes)

	p.AddSample(sampler.FromResponse("body one", 404, nil)) // duplicate
	if len(p.hashes) != n1 {
		t.Errorf("duplicate sample changed hash set size: %d -> %d", n1, len(p.hashes))
	}

	p.AddSample(sampler.FromResponse("body two", 404, nil))
	if len(p.hashes) != n1+1 {
		t.Errorf("new sample did not grow hash set: %d -> %d", n1, len(p.hashes))
	}
}

// TestAddSampleRangeNonDegeneracy verifies every (min,max) satisfies min<=max
// after every AddSample.
func TestAddSampleRangeNonDegeneracy(t *testing.T) {
	p := New()
	bodies := []string{"", "a", "short body", "a slightly longer body with more words in it"}
	for _, b := range bodies {
		p.AddSample(sampler.FromResponse(b, 200, nil))
		for _, r := range p.sizeRanges {
			if r.Min > r.Max {
				t.Fatalf("size range degenerate: %+v", r)
			}
		}
		for _, r := range p.lineCountRanges {
			if r.Min > r.Max {
				t.Fatalf("line range degenerate: %+v", r)
			}
		}
		for _, r := range p.wordCountRanges {
			if r.Min > r.Max {
				t.Fatalf("word range degenerate: %+v", r)
			}
		}
	}
}

// TestAddSampleTagRangeExpandsNeverShrinks verifies the tag-count range only
// ever widens.
func TestAddSampleTagRangeExpandsNeverShrinks(t *testing.T) {
	p := New()
	p.AddSample(sampler.FromResponse("<a><b></b></a>", 200, nil)) // 4 tags
	first := p.tagRange

	p.AddSample(sampler.FromResponse("<a></a>", 200, nil)) // 2 tags
	if p.tagRange.Min > first.Min {
		t.Errorf("tagRange.Min grew: %d -> %d", first.Min, p.tagRange.Min)
	}
	if p.tagRange.Max < first.Max {
		t.Errorf("tagRange.Max shrank: %d -> %d", first.Max, p.tagRange.Max)
	}
}

// =============================================================================
// Section 1.4: Decision Table Boundaries
// =============================================================================

// TestIsLikelyWildcard200RequiresStrongerEvidence verifies the stricter
// 200-status decision rule: confidence>=0.7 OR (matchCount>=3 AND confidence>=0.5).
func TestIsLikelyWildcard200RequiresStrongerEvidence(t *testing.T) {
	p := New()
	// Prime with the same body that is then checked: the hash (0.9) and the
	// size/line/word/tag ranges (0.3+0.2+0.2+0.2) all match, 1.8 confidence
	// with 4 matches, well past the 200 bar.
	body := "four simple words here"
	p.AddSample(sampler.FromResponse(body, 200, nil))

	s := sampler.FromResponse(body, 200, nil)
	if !p.IsLikelyWildcard(s) {
		t.Error("expected combined size/line/word match on 200 to cross threshold")
	}
}

func TestIsLikelyWildcardNon200LowerBar(t *testing.T) {
	p := New()
	body := "not much here"
	p.AddSample(sampler.FromResponse(body, 404, nil))

	// The identical sample matches the hash, the 404 status, and all four
	// ranges, so it crosses both the confidence>=0.5 and the matchCount>=2
	// branch of the non-200 rule.
	s := sampler.FromResponse(body, 404, nil)
	if !p.IsLikelyWildcard(s) {
		t.Error("expected non-200 sample with 2+ matches to classify as wildcard")
	}
}
