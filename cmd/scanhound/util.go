package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/scanhound/scanhound/internal/types"
)

// parseRange parses a "--filter-words" style value: "100-500" -> (100,500),
// "404" -> (404,404). An empty or unparseable value yields nil, which
// disables the filter rather than failing the scan.
func parseRange(s string) *types.SizeRange {
	if min, max, ok := strings.Cut(s, "-"); ok {
		minVal, err := strconv.ParseInt(strings.TrimSpace(min), 10, 64)
		if err != nil {
			return nil
		}
		maxVal, err := strconv.ParseInt(strings.TrimSpace(max), 10, 64)
		if err != nil {
			return nil
		}
		return &types.SizeRange{Min: minVal, Max: maxVal}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &types.SizeRange{Min: n, Max: n}
}

// parseSizeRange parses a "--filter-size" value the same way parseRange does,
// except each bound goes through humanize.ParseBytes so byte suffixes work
// too: "1K-2M" -> (1000,2000000), "512" -> (512,512). An empty or
// unparseable value yields nil, which disables the filter.
func parseSizeRange(s string) *types.SizeRange {
	if min, max, ok := strings.Cut(s, "-"); ok {
		minVal, err := parseSize(min)
		if err != nil {
			return nil
		}
		maxVal, err := parseSize(max)
		if err != nil {
			return nil
		}
		return &types.SizeRange{Min: minVal, Max: maxVal}
	}

	n, err := parseSize(s)
	if err != nil {
		return nil
	}
	return &types.SizeRange{Min: n, Max: n}
}

// parseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func parseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// parseHeaders turns repeatable "Key: Value" strings into a header map.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected \"Key: Value\"", h)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// parseBasicAuth splits a "user:pass" string into its two parts.
func parseBasicAuth(s string) (user, pass string, err error) {
	u, p, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", fmt.Errorf("invalid --basic-auth %q, expected \"user:pass\"", s)
	}
	return u, p, nil
}

// validateProxyURL checks that a --proxy value parses as an absolute URL
// before any request goes through it.
func validateProxyURL(s string) error {
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid --proxy %q: %w", s, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid --proxy %q: must be an absolute URL", s)
	}
	return nil
}
