// Package wildcard aggregates probe samples into a signature robust enough
// to classify unseen responses as "soft 404" noise without false-positiving
// on real hits.
//
// # Architecture Overview
//
// A Profile starts empty, is fed a handful of probe samples at scan start,
// and is read-only for the remainder of the scan. There is no concurrency
// inside Profile itself - AddSample is called sequentially during priming,
// and IsLikelyWildcard is a pure read once priming is done.
//
// # Tolerance Bands
//
// Size, line-count, and word-count are tracked as lists of [min,max]
// intervals rather than single running ranges, because a wildcard
// host can serve more than one distinct soft-404 shape (e.g. one for missing
// files, a different one for missing directories). Each AddSample widens the
// relevant interval list by a tolerance band around the observed value,
// merging into an existing interval when it overlaps or touches.
//
// # Single-Pass Merge
//
// mergeRange coalesces a new interval into at most one existing interval per
// call. It does not chase a second overlap after the first merge, so two
// intervals in a list can end up overlapping; no later call merges existing
// intervals with each other.
package wildcard

import (
	"math"

	"github.com/scanhound/scanhound/internal/types"
)

// Profile is an aggregator of wildcard samples producing tolerance ranges, a
// hash set, and a scoring function.
//
// Profile is built once before dispatch and is safe for concurrent reads by
// multiple workers once priming (AddSample calls) has finished; it is not
// safe for concurrent AddSample calls.
type Profile struct {
	hashes       map[string]struct{}
	statusCodes  map[int]struct{}
	titles       map[string]struct{}
	errorPhrases map[string]struct{}
	headerValues map[string]map[string]struct{}

	sizeRanges      []types.SizeRange
	lineCountRanges []types.SizeRange
	wordCountRanges []types.SizeRange

	tagRange    types.SizeRange
	hasTagRange bool

	// threshold is the non-200 confidence bound; the 200-status bound is
	// always threshold+0.2. SetThreshold maps --wildcard-threshold onto it.
	threshold float64
}

const defaultThreshold = 0.5

// New returns an empty Profile ready for priming with AddSample.
func New() *Profile {
	return &Profile{
		hashes:       make(map[string]struct{}),
		statusCodes:  make(map[int]struct{}),
		titles:       make(map[string]struct{}),
		errorPhrases: make(map[string]struct{}),
		headerValues: make(map[string]map[string]struct{}),
		threshold:    defaultThreshold,
	}
}

// SetThreshold maps the CLI's 0..100 --wildcard-threshold value onto the
// classifier's confidence scale (pct/100), overriding the default 0.5 bound.
// Values outside 0..100 are clamped.
func (p *Profile) SetThreshold(pct int) {
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	p.threshold = float64(pct) / 100
}

// Tolerance bands: 5% around observed sizes, 10% around line/word counts.
const (
	sizeTolerancePct  = 0.05
	countTolerancePct = 0.10
)

// AddSample folds one observed sample into the profile.
//
// Every set this method touches only grows: hashes, statusCodes, titles,
// errorPhrases, and headerValues entries are never removed, and interval
// lists/tagRange only widen.
func (p *Profile) AddSample(s types.Sample) {
	p.statusCodes[s.Status] = struct{}{}
	p.hashes[s.SHA256] = struct{}{}

	for k, v := range s.Headers {
		set, ok := p.headerValues[k]
		if !ok {
			set = make(map[string]struct{})
			p.headerValues[k] = set
		}
		set[v] = struct{}{}
	}

	if s.Title != "" {
		p.titles[s.Title] = struct{}{}
	}
	if s.ErrorPhrase != "" {
		p.errorPhrases[s.ErrorPhrase] = struct{}{}
	}

	sizeTol := tolerance(s.Size, sizeTolerancePct)
	p.sizeRanges = mergeRange(p.sizeRanges, clampMin0(s.Size-sizeTol), s.Size+sizeTol)

	lineTol := tolerance(int64(s.LineCount), countTolerancePct)
	p.lineCountRanges = mergeRange(p.lineCountRanges, clampMin0(int64(s.LineCount)-lineTol), int64(s.LineCount)+lineTol)

	wordTol := tolerance(int64(s.WordCount), countTolerancePct)
	p.wordCountRanges = mergeRange(p.wordCountRanges, clampMin0(int64(s.WordCount)-wordTol), int64(s.WordCount)+wordTol)

	if !p.hasTagRange {
		p.tagRange = types.SizeRange{Min: int64(s.TagCount), Max: int64(s.TagCount)}
		p.hasTagRange = true
	} else {
		p.tagRange.Min = min64(p.tagRange.Min, int64(s.TagCount))
		p.tagRange.Max = max64(p.tagRange.Max, int64(s.TagCount))
	}
}

// tolerance computes ceil(|value| * pct) as an int64.
func tolerance(value int64, pct float64) int64 {
	return int64(math.Ceil(float64(value) * pct))
}

func clampMin0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// mergeRange scans list for an existing interval that overlaps or touches
// [min,max] and replaces the FIRST such interval with their union, stopping
// there. If no interval overlaps, [min,max] is appended as a new interval.
//
// This is intentionally a single-pass merge (see package doc). A second,
// later-discovered overlap with a different interval in the same list is
// not re-coalesced by this call or by any later one.
func mergeRange(list []types.SizeRange, min, max int64) []types.SizeRange {
	for i, r := range list {
		if min <= r.Max && r.Min <= max {
			list[i] = types.SizeRange{Min: min64(r.Min, min), Max: max64(r.Max, max)}
			return list
		}
	}
	return append(list, types.SizeRange{Min: min, Max: max})
}

// classification weights.
const (
	weightHash         = 0.9
	weightTitle        = 0.7
	weightErrorPhrase  = 0.8
	weightSize         = 0.3
	weightLineCount    = 0.2
	weightWordCount    = 0.2
	weightTagCount     = 0.2
	weightStatusNon200 = 0.6
)

// IsLikelyWildcard scores a sample against the profile and returns whether
// it should be classified as a soft-404/wildcard response.
func (p *Profile) IsLikelyWildcard(s types.Sample) bool {
	var confidence float64
	matchCount := 0

	if _, ok := p.hashes[s.SHA256]; ok {
		confidence += weightHash
	}

	if s.Title != "" {
		if _, ok := p.titles[s.Title]; ok {
			confidence += weightTitle
			matchCount++
		}
	}

	if s.ErrorPhrase != "" {
		if _, ok := p.errorPhrases[s.ErrorPhrase]; ok {
			confidence += weightErrorPhrase
			matchCount++
		}
	}

	if inAnyRange(p.sizeRanges, s.Size) {
		confidence += weightSize
		matchCount++
	}
	if inAnyRange(p.lineCountRanges, int64(s.LineCount)) {
		confidence += weightLineCount
		matchCount++
	}
	if inAnyRange(p.wordCountRanges, int64(s.WordCount)) {
		confidence += weightWordCount
		matchCount++
	}
	if p.hasTagRange && p.tagRange.Contains(int64(s.TagCount)) {
		confidence += weightTagCount
		matchCount++
	}

	if s.Status != 200 {
		if _, ok := p.statusCodes[s.Status]; ok {
			confidence += weightStatusNon200
		}
	}

	if s.Status == 200 {
		return confidence >= p.threshold+0.2 || (matchCount >= 3 && confidence >= p.threshold)
	}
	return confidence >= p.threshold || matchCount >= 2
}

func inAnyRange(ranges []types.SizeRange, v int64) bool {
	for _, r := range ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}
