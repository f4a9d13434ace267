// Package driver owns the shared client, semaphore, counters, cancellation
// flag, and wildcard profile, and fans workers out over the wordlist with
// bounded concurrency.
//
// # Architecture Overview
//
// Driver.Run uses three goroutine classes: WORKER goroutines bounded by a
// semaphore (one per word, at most `threads` in flight) that append out of
// order to a mutex-guarded results log, a WATCHER that turns context
// cancellation into the should-stop flag, and the calling goroutine as
// ORCHESTRATOR: it primes the wildcard profile, spawns workers, waits for
// them, then reports.
//
// Invariants:
//
//   - The results log is the only contended resource: its lock is held for
//     a single append, never across I/O.
//   - Counter atomics promise no cross-counter consistency mid-scan; totals
//     line up only once every worker has joined.
//   - The wildcard profile is written once, before any worker starts.
package driver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/scanhound/scanhound/internal/progress"
	"github.com/scanhound/scanhound/internal/sampler"
	"github.com/scanhound/scanhound/internal/types"
	"github.com/scanhound/scanhound/internal/wildcard"
	"github.com/scanhound/scanhound/internal/worker"
)

// probePaths are known-nonexistent paths used to prime the wildcard profile
// before dispatch.
var probePaths = []string{
	"does_not_exist_12345",
	"nonexistent_wildcard_test",
	"zzzzzzzzzzzzzzzzzzzz",
	"wildcard_probe_path",
}

const probeSleep = 200 * time.Millisecond

// Options configures a Driver beyond the immutable ScanConfig that is shared
// read-only with every worker.
type Options struct {
	Threads           int
	TimeoutSec        int
	ProxyURL          string
	UseCookieJar      bool
	ShowProgress      bool
	WildcardThreshold int // 0..100, see wildcard.Profile.SetThreshold
	OnResult          func(types.BustResult) // called synchronously as each result is collated; may be nil
}

// Driver runs one scan: build the wildcard profile, configure the shared
// HTTP client, dispatch workers over the wordlist, and collate results.
//
// Driver is designed for single-use: create with New, call Run once.
type Driver struct {
	cfg       *types.ScanConfig
	opts      Options
	words     []string
	state     *types.ScanState
	client    *http.Client
	results   types.ResultsLog
	bar       *progress.Bar
	bytesRead atomic.Int64
}

// New creates a Driver for scanning words against cfg.BaseURL.
func New(cfg *types.ScanConfig, words []string, opts Options) (*Driver, error) {
	client, err := buildClient(opts)
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}

	return &Driver{
		cfg:    cfg,
		opts:   opts,
		words:  words,
		state:  &types.ScanState{},
		client: client,
	}, nil
}

// buildClient configures the shared HTTP client: request timeout
// from opts, 10s connect timeout, 60s TCP keep-alive, 90s idle pool timeout,
// max idle conns per host = min(threads, 25), optional proxy and cookie jar.
func buildClient(opts Options) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: minInt(opts.Threads, 25),
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(opts.TimeoutSec) * time.Second,
	}

	if opts.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		client.Jar = jar
	}

	return client, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// stats is a fmt.Stringer over ScanState's atomics plus the running byte
// count; the progress bar renders it as its description line.
type stats struct {
	state     *types.ScanState
	bytesRead *atomic.Int64
	total     int
	processed func() int
	startTime time.Time
}

func (s *stats) String() string {
	c := s.state.Snapshot()
	return fmt.Sprintf("%d/%d words (%s): %d found, %d errors, %d filtered in %.1fs",
		s.processed(), s.total, humanize.IBytes(uint64(s.bytesRead.Load())),
		c.Found, c.Errors, c.Filtered, time.Since(s.startTime).Seconds())
}

// Run executes the scan end-to-end: prime the wildcard profile, dispatch
// workers bounded by a semaphore, collate results, and return them.
func (d *Driver) Run(ctx context.Context) []types.BustResult {
	// Translate context cancellation (interrupt signal) into the one-shot
	// should-stop flag workers poll at each pre-request check.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			d.state.ShouldStop.Store(true)
		case <-watchDone:
		}
	}()

	if d.cfg.DetectWildcards {
		d.primeWildcardProfile(ctx)
	}

	sem := types.NewSemaphore(d.opts.Threads)
	var wg sync.WaitGroup

	processed := 0
	var processedMu sync.Mutex
	incProcessed := func() {
		processedMu.Lock()
		processed++
		processedMu.Unlock()
	}
	readProcessed := func() int {
		processedMu.Lock()
		defer processedMu.Unlock()
		return processed
	}

	d.bar = progress.New(d.opts.ShowProgress, int64(len(d.words)))
	st := &stats{state: d.state, bytesRead: &d.bytesRead, total: len(d.words), processed: readProcessed, startTime: time.Now()}
	d.bar.Describe(st)

	for _, word := range d.words {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			sem.Acquire()
			defer sem.Release()

			result := worker.Attempt(ctx, d.client, w, d.cfg, d.state)
			d.collate(result)
			incProcessed()
			d.bar.Set(uint64(readProcessed()))
			d.bar.Describe(st)
		}(word)
	}

	wg.Wait()
	d.bar.Finish(st)

	return d.results.Items()
}

// collate updates counters, appends to the results log, and invokes the
// output callback: Success always emitted, NotFound/Error only when
// OnlySuccess is unset, Filtered never emitted (but still appended to the
// results log).
func (d *Driver) collate(result types.BustResult) {
	if result.Kind != types.ResultError && result.Response.ContentLength != nil {
		d.bytesRead.Add(*result.Response.ContentLength)
	}

	switch result.Kind {
	case types.ResultSuccess:
		d.state.FoundCount.Add(1)
	case types.ResultError:
		d.state.ErrorCount.Add(1)
	case types.ResultFiltered:
		d.state.FilteredCount.Add(1)
	case types.ResultNotFound:
		// NotFound is appended to the results log but has no atomic counter.
		// Callers that need a NotFound count derive it from the results
		// slice at report time.
	}

	d.results.Append(result)

	if d.opts.OnResult == nil {
		return
	}
	switch result.Kind {
	case types.ResultSuccess:
		d.opts.OnResult(result)
	case types.ResultNotFound, types.ResultError:
		if !d.cfg.OnlySuccess {
			d.opts.OnResult(result)
		}
	case types.ResultFiltered:
		// never emitted to output
	}
}

// primeWildcardProfile builds the wildcard profile before dispatch: GET each
// probe path, fold successful samples into the profile, and sleep between
// probes. Failed probes are silently skipped.
func (d *Driver) primeWildcardProfile(ctx context.Context) {
	profile := wildcard.New()
	profile.SetThreshold(d.opts.WildcardThreshold)

	spin := progress.New(d.opts.ShowProgress, -1)
	ps := &probeStats{total: len(probePaths)}
	spin.Describe(ps)

	for _, probe := range probePaths {
		func() {
			target := d.cfg.BaseURL
			if len(target) > 0 && target[len(target)-1] != '/' {
				target += "/"
			}
			target += probe

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return
			}
			resp, err := d.client.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return
			}

			sample := sampler.FromResponse(string(data), resp.StatusCode, resp.Header)
			profile.AddSample(sample)
		}()

		ps.done++
		spin.Set(uint64(ps.done))
		spin.Describe(ps)
		sleep(ctx, probeSleep)
	}

	spin.Finish(ps)
	d.state.WildcardProfile = profile
}

// probeStats renders the wildcard-priming spinner description. Priming is
// sequential, so a plain int is enough.
type probeStats struct {
	done  int
	total int
}

func (p *probeStats) String() string {
	return fmt.Sprintf("probing wildcard behavior: %d/%d probes", p.done, p.total)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
