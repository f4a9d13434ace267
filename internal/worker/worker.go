// Package worker performs one retrying GET per candidate word and classifies
// the result.
//
// # Per-Attempt Flow
//
// Attempt runs up to retries+1 tries in a linear flow with early exits:
// check-stop -> sleep -> build request -> send -> classify. Classification
// decides whether to loop again, sleep first, or return a terminal
// BustResult. Each word yields exactly one result.
//
// # Evasion
//
// Every request carries rotated browser-emulation headers (user agent,
// X-Forwarded-For family, Referer/Accept-*), a cache-busting URL suffix,
// and occasionally a small padding body, so that request streams do not
// present a uniform fingerprint to the target or intermediaries.
package worker

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/scanhound/scanhound/internal/filter"
	"github.com/scanhound/scanhound/internal/sampler"
	"github.com/scanhound/scanhound/internal/types"
)

// defaultUserAgent is sent when rotation is off, and as the fallback when
// rotation is on but the configured list is empty.
const defaultUserAgent = "Mozilla/5.0 (compatible; scanhound/1.0)"

var referers = []string{
	"https://google.com",
	"https://bing.com",
	"https://duckduckgo.com",
	"https://github.com",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8",
	"fr-FR,fr;q=0.7",
	"de-DE,de;q=0.6",
	"es-ES,es;q=0.5",
}

var acceptEncodings = []string{
	"gzip, deflate, br",
	"gzip, deflate",
	"br",
	"*",
}

var transportFailureSubstrings = []string{"timeout", "connection", "dns"}

// Attempt performs one retrying GET for word and returns exactly one
// BustResult.
func Attempt(ctx context.Context, client *http.Client, word string, cfg *types.ScanConfig, state *types.ScanState) types.BustResult {
	// The cache-buster suffix is chosen once per word and reused across
	// retries; the word's clean URL (without the suffix) is what results
	// report.
	cleanURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/" + word
	requestURL := cleanURL + cacheBuster()

	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if state.ShouldStop.Load() {
			return errorResult(word, "Scan stopped by user")
		}

		sleepBeforeAttempt(ctx, cfg, state)

		req, err := buildRequest(ctx, requestURL, cfg)
		if err != nil {
			return errorResult(word, err.Error())
		}

		start := time.Now()
		resp, body, err := send(client, req)
		elapsed := time.Since(start)

		if err != nil {
			if isTransientTransportError(err) && attempt < cfg.Retries {
				sleep(ctx, time.Duration(1000*(attempt+1))*time.Millisecond)
				continue
			}
			return errorResult(word, err.Error())
		}

		result, retry, retryDelay := classify(word, cleanURL, resp, body, elapsed, attempt, cfg, state)
		if retry {
			sleep(ctx, retryDelay)
			continue
		}
		return result
	}
	return errorResult(word, "Max retries exceeded")
}

// errorResult builds a terminal Error BustResult.
func errorResult(word, message string) types.BustResult {
	return types.BustResult{Kind: types.ResultError, Word: word, Message: message}
}

// sleepBeforeAttempt sleeps for base+jitter ms, where base folds in the
// configured delay window and the adaptive global delay. When base is
// exactly 0 the sleep is skipped entirely; jitter alone never triggers one.
func sleepBeforeAttempt(ctx context.Context, cfg *types.ScanConfig, state *types.ScanState) {
	base := cfg.DelayMin
	if cfg.DelayMax > cfg.DelayMin {
		base = cfg.DelayMin + rand.Int64N(cfg.DelayMax-cfg.DelayMin+1)
	}
	base += state.GlobalDelayMs.Load()

	if base == 0 {
		return
	}

	jitter := rand.Int64N(100)
	sleep(ctx, time.Duration(base+jitter)*time.Millisecond)
}

// sleep blocks for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// cacheBuster returns a randomly chosen URL suffix so intermediate caches
// cannot answer for the origin.
func cacheBuster() string {
	switch rand.IntN(4) {
	case 0:
		return fmt.Sprintf("?_cb=%d", 10000+rand.IntN(90000))
	case 1:
		return fmt.Sprintf("#%d", 1000+rand.IntN(9000))
	case 2:
		return fmt.Sprintf(";sessionid=%d", 100000+rand.IntN(900000))
	default:
		return ""
	}
}

// buildRequest constructs the GET request with headers applied in a fixed
// order: user-agent, IP-header rotation, auth (raw header, then basic, then
// bearer), custom headers, then the browser-emulation headers. The emulation
// headers go last and so win over a same-named custom header.
func buildRequest(ctx context.Context, url string, cfg *types.ScanConfig) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, bodyReader())
	if err != nil {
		return nil, err
	}

	if cfg.RotateUserAgent {
		req.Header.Set("User-Agent", pickUserAgent(cfg.UserAgents))
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	if cfg.RotateIPHeaders {
		ip := randomIPv4()
		req.Header.Set("X-Forwarded-For", ip)
		req.Header.Set("X-Real-IP", ip)
		req.Header.Set("True-Client-IP", ip)
	}

	applyAuth(req, cfg.Auth)

	for k, v := range cfg.CustomHeaders {
		req.Header.Set(k, v)
	}

	applyEvasionHeaders(req)

	return req, nil
}

func pickUserAgent(agents []string) string {
	if len(agents) == 0 {
		return defaultUserAgent
	}
	return agents[rand.IntN(len(agents))]
}

func randomIPv4() string {
	a := 1 + rand.IntN(255)
	b := rand.IntN(256)
	c := rand.IntN(256)
	d := 1 + rand.IntN(255)
	return fmt.Sprintf("%d.%d.%d.%d", a, b, c, d)
}

func applyAuth(req *http.Request, auth types.AuthConfig) {
	switch {
	case auth.Header != "":
		req.Header.Set("Authorization", auth.Header)
	case auth.HasBasic:
		req.SetBasicAuth(auth.BasicUser, auth.BasicPass)
	case auth.Bearer != "":
		req.Header.Set("Authorization", "Bearer "+auth.Bearer)
	}
}

func applyEvasionHeaders(req *http.Request) {
	req.Header.Set("Referer", referers[rand.IntN(len(referers))])
	req.Header.Set("Accept-Language", acceptLanguages[rand.IntN(len(acceptLanguages))])
	req.Header.Set("Accept-Encoding", acceptEncodings[rand.IntN(len(acceptEncodings))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// bodyReader attaches a body of N spaces (N in 10..50) with probability
// 3/10.
func bodyReader() io.Reader {
	if rand.IntN(10) >= 3 {
		return nil
	}
	n := 10 + rand.IntN(41)
	return strings.NewReader(strings.Repeat(" ", n))
}

// send issues req and reads the full body, measuring elapsed time from just
// before send to end of body read.
func send(client *http.Client, req *http.Request) (*http.Response, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, "", err
	}
	return resp, string(data), nil
}

func isTransientTransportError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, substr := range transportFailureSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// classify maps a response to its outcome by status class. It returns either
// a terminal BustResult, or retry=true with the delay to sleep before the
// next attempt.
func classify(word, url string, resp *http.Response, body string, elapsed time.Duration, attempt int, cfg *types.ScanConfig, state *types.ScanState) (result types.BustResult, retry bool, retryDelay time.Duration) {
	status := resp.StatusCode
	detailed := buildDetailedResponse(word, url, status, body, elapsed)

	switch {
	case status >= 200 && status < 300:
		state.GlobalDelayMs.Store(0)
		if filter.ShouldFilter(detailed, cfg.Filters) {
			return filteredResult(detailed), false, 0
		}
		if cfg.DetectWildcards && state.WildcardProfile != nil {
			sample := sampler.FromResponse(body, status, resp.Header)
			if state.WildcardProfile.IsLikelyWildcard(sample) {
				return filteredResult(detailed), false, 0
			}
		}
		return types.BustResult{Kind: types.ResultSuccess, Response: detailed}, false, 0

	case status == 429:
		state.GlobalDelayMs.Add(500)
		if attempt < cfg.Retries {
			return types.BustResult{}, true, time.Duration(1000*(attempt+1)) * time.Millisecond
		}
		return errorResult(word, "Rate limited"), false, 0

	case status >= 500:
		if attempt < cfg.Retries {
			return types.BustResult{}, true, time.Duration(500*(attempt+1)) * time.Millisecond
		}
		return classifyNotFoundOrFiltered(detailed, cfg), false, 0

	default:
		return classifyNotFoundOrFiltered(detailed, cfg), false, 0
	}
}

func classifyNotFoundOrFiltered(detailed types.DetailedResponse, cfg *types.ScanConfig) types.BustResult {
	if filter.ShouldFilter(detailed, cfg.Filters) {
		return filteredResult(detailed)
	}
	return types.BustResult{Kind: types.ResultNotFound, Response: detailed}
}

func filteredResult(detailed types.DetailedResponse) types.BustResult {
	return types.BustResult{Kind: types.ResultFiltered, Response: detailed}
}

func buildDetailedResponse(word, url string, status int, body string, elapsed time.Duration) types.DetailedResponse {
	length := int64(len(body))
	wordCount := len(strings.Fields(body))
	return types.DetailedResponse{
		Word:          word,
		Status:        status,
		ContentLength: &length,
		ResponseTime:  elapsed,
		WordCount:     &wordCount,
		URL:           url,
	}
}
