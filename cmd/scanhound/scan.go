package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/scanhound/scanhound/internal/driver"
	"github.com/scanhound/scanhound/internal/report"
	"github.com/scanhound/scanhound/internal/types"
	"github.com/scanhound/scanhound/internal/wordlist"
)

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	url      string
	wordlist string

	threads  int
	timeout  int
	delayMin int64
	delayMax int64
	retries  int

	onlySuccess       bool
	noProgress        bool
	showContentLength bool
	showResponseTime  bool

	rotateUserAgent bool
	rotateIPHeaders bool
	userAgentsFile  string
	proxy           string
	cookieJar       bool

	authHeader string
	basicAuth  string
	bearer     string
	headers    []string

	filterCodes []int
	filterSize  string
	filterTime  int64
	filterWords string

	detectWildcards   bool
	wildcardThreshold int

	outputFormat string
	outputFile   string
}

type flagGroup struct {
	title string
	flags []string
}

var helpGroups = []flagGroup{
	{"TARGET", []string{"url", "word-list"}},
	{"CONCURRENCY", []string{"threads", "timeout", "delay-min", "delay-max", "retries"}},
	{"DISPLAY", []string{"only-success", "no-progress", "show-content-length", "show-response-time"}},
	{"EVASION", []string{"rotate-user-agent", "rotate-ip-headers", "user-agents", "proxy", "cookie-jar"}},
	{"AUTH", []string{"auth-header", "basic-auth", "bearer-token", "headers"}},
	{"FILTERS", []string{"filter-codes", "filter-size", "filter-time", "filter-words"}},
	{"WILDCARD", []string{"detect-wildcards", "wildcard-threshold"}},
	{"OUTPUT", []string{"output-format", "output-file"}},
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{
		threads:           20,
		timeout:           5,
		retries:           2,
		wildcardThreshold: 50,
		outputFormat:      "text",
	}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Enumerate paths against a target URL",
		Long: `Issues one GET per candidate word from the wordlist against --url, classifies
each response, and reports discoveries. Soft-404 wildcard pages can be
detected and suppressed with --detect-wildcards.`,
		Example: `  scanhound scan --url https://example.com --word-list common.txt
  scanhound scan --url https://example.com --word-list common.txt --detect-wildcards
  scanhound scan --url https://example.com --word-list common.txt --filter-codes 403 --filter-size 0-0
  scanhound scan --url https://example.com --word-list common.txt --output-format json --output-file scan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	bindFlags(cmd, opts)

	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		w := os.Stdout
		fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n", cmd.Long, cmd.UseLine())
		fmt.Fprintf(w, "\nExamples:\n%s\n", cmd.Example)
		fmt.Fprintf(w, "\nFlags:\n")
		for _, g := range helpGroups {
			fmt.Fprintf(w, "\n%s:\n", g.title)
			for _, name := range g.flags {
				if f := cmd.Flags().Lookup(name); f != nil {
					fmt.Fprintln(w, formatFlag(f))
				}
			}
		}
		fmt.Fprintln(w)
	})

	return cmd
}

func bindFlags(cmd *cobra.Command, opts *scanOptions) {
	f := cmd.Flags()

	f.StringVarP(&opts.url, "url", "u", "", "Target base URL (required)")
	f.StringVarP(&opts.wordlist, "word-list", "w", "", "Path to the wordlist file (required)")

	f.IntVarP(&opts.threads, "threads", "t", opts.threads, "Number of concurrent workers")
	f.IntVar(&opts.timeout, "timeout", opts.timeout, "Per-request HTTP timeout in seconds")
	f.Int64Var(&opts.delayMin, "delay-min", 0, "Minimum pre-request delay in ms")
	f.Int64Var(&opts.delayMax, "delay-max", 0, "Maximum pre-request delay in ms")
	f.IntVar(&opts.retries, "retries", opts.retries, "Retry attempts per word")

	f.BoolVar(&opts.onlySuccess, "only-success", false, "Only emit console lines for Success results")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	f.BoolVar(&opts.showContentLength, "show-content-length", false, "Show response content-length in console lines")
	f.BoolVar(&opts.showResponseTime, "show-response-time", false, "Show response time in console lines")

	f.BoolVar(&opts.rotateUserAgent, "rotate-user-agent", false, "Rotate the User-Agent header per request")
	f.BoolVar(&opts.rotateIPHeaders, "rotate-ip-headers", false, "Rotate X-Forwarded-For/X-Real-IP/True-Client-IP per request")
	f.StringVar(&opts.userAgentsFile, "user-agents", "", "Custom user-agent list file (default: built-in list)")
	f.StringVar(&opts.proxy, "proxy", "", "HTTP/SOCKS proxy URL")
	f.BoolVar(&opts.cookieJar, "cookie-jar", false, "Persist cookies across requests for this scan")

	f.StringVar(&opts.authHeader, "auth-header", "", "Raw Authorization header value")
	f.StringVar(&opts.basicAuth, "basic-auth", "", "Basic auth as user:pass")
	f.StringVar(&opts.bearer, "bearer-token", "", "Bearer token")
	f.StringSliceVarP(&opts.headers, "headers", "H", nil, "Custom header as 'Key: Value' (repeatable)")

	f.IntSliceVar(&opts.filterCodes, "filter-codes", nil, "Status codes to filter out (repeatable/comma-separated)")
	f.StringVar(&opts.filterSize, "filter-size", "", "Content-length filter: min-max or n (suffixes like 1K, 2MiB accepted)")
	f.Int64Var(&opts.filterTime, "filter-time", 0, "Filter responses slower than this (ms); 0 disables")
	f.StringVar(&opts.filterWords, "filter-words", "", "Body word-count filter: min-max or n")

	f.BoolVar(&opts.detectWildcards, "detect-wildcards", false, "Enable soft-404 wildcard detection")
	f.IntVar(&opts.wildcardThreshold, "wildcard-threshold", opts.wildcardThreshold, "Wildcard confidence threshold (0-100)")

	f.StringVar(&opts.outputFormat, "output-format", opts.outputFormat, "Output format: text, json, xml, csv")
	f.StringVar(&opts.outputFile, "output-file", "", "Write the final report to this file")
}

// drainErrors consumes errors from a channel and writes them to stderr.
// Clears progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}

// runScan validates flags, builds the ScanConfig, and drives the scan.
func runScan(ctx context.Context, opts *scanOptions) error {
	if opts.url == "" || opts.wordlist == "" {
		return fmt.Errorf("--url and --word-list are required")
	}
	if err := validateProxyURL(opts.proxy); err != nil {
		return err
	}

	words, err := wordlist.Load(opts.wordlist)
	if err != nil {
		return fmt.Errorf("load wordlist: %w", err)
	}
	if len(words) == 0 {
		fmt.Println("No words to process!")
		return nil
	}

	userAgents, err := wordlist.LoadUserAgents(opts.userAgentsFile)
	if err != nil {
		return fmt.Errorf("load user agents: %w", err)
	}

	cfg, err := buildScanConfig(opts, userAgents)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var out *os.File
	if opts.outputFile != "" {
		out, err = os.Create(opts.outputFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer out.Close()
	}

	// Terminal Error results go through a shared error channel to stderr so
	// they never collide with the progress bar line; hits and misses print to
	// stdout as console lines.
	errs := make(chan error, 100)
	go drainErrors(errs)
	defer close(errs)

	onResult := func(r types.BustResult) {
		if r.Kind == types.ResultError {
			errs <- fmt.Errorf("%s: %s", r.Word, r.Message)
			return
		}
		fmt.Fprintln(os.Stdout, report.ConsoleLine(r, opts.showContentLength, opts.showResponseTime))
	}

	d, err := driver.New(cfg, words, driver.Options{
		Threads:           opts.threads,
		TimeoutSec:        opts.timeout,
		ProxyURL:          opts.proxy,
		UseCookieJar:      opts.cookieJar,
		ShowProgress:      !opts.noProgress,
		WildcardThreshold: opts.wildcardThreshold,
		OnResult:          onResult,
	})
	if err != nil {
		return fmt.Errorf("build driver: %w", err)
	}

	start := time.Now()
	results := d.Run(ctx)
	end := time.Now()

	counters := reduceCounters(results)

	if out != nil {
		summary := report.BuildSummary(opts.url, start, end, counters, len(words), results)
		if err := report.Serialize(out, report.Format(opts.outputFormat), summary); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Results saved to: %s\n", opts.outputFile)
	}

	report.PrintSummary(os.Stdout, counters, len(words), end.Sub(start))

	return nil
}

// reduceCounters derives a ResultCounters snapshot directly from the results
// slice for the post-scan report, independent of the driver's live atomics.
func reduceCounters(results []types.BustResult) types.ResultCounters {
	var c types.ResultCounters
	for _, r := range results {
		switch r.Kind {
		case types.ResultSuccess:
			c.Found++
		case types.ResultError:
			c.Errors++
		case types.ResultFiltered:
			c.Filtered++
		case types.ResultNotFound:
			c.NotFound++
		}
	}
	return c
}

func buildScanConfig(opts *scanOptions, userAgents []string) (*types.ScanConfig, error) {
	sizeRange := parseSizeRange(opts.filterSize)
	wordRange := parseRange(opts.filterWords)
	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return nil, err
	}

	auth := types.AuthConfig{Header: opts.authHeader, Bearer: opts.bearer}
	if opts.basicAuth != "" {
		user, pass, err := parseBasicAuth(opts.basicAuth)
		if err != nil {
			return nil, err
		}
		auth.BasicUser, auth.BasicPass, auth.HasBasic = user, pass, true
	}

	filters := types.FilterSet{Codes: opts.filterCodes, Size: sizeRange, WordCount: wordRange}
	if opts.filterTime > 0 {
		filters.TimeMs = &opts.filterTime
	}

	return &types.ScanConfig{
		BaseURL:         strings.TrimRight(opts.url, "/"),
		Retries:         opts.retries,
		DelayMin:        opts.delayMin,
		DelayMax:        opts.delayMax,
		RotateUserAgent: opts.rotateUserAgent,
		RotateIPHeaders: opts.rotateIPHeaders,
		UserAgents:      userAgents,
		Auth:            auth,
		CustomHeaders:   headers,
		Filters:         filters,
		OnlySuccess:     opts.onlySuccess,
		DetectWildcards: opts.detectWildcards,
	}, nil
}

func formatFlag(f *pflag.Flag) string {
	var left string
	if f.Shorthand != "" {
		left = fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	} else {
		left = fmt.Sprintf("    --%s", f.Name)
	}

	typ := f.Value.Type()
	if typ != "bool" {
		left += " " + typ
	}

	const col = 36
	for len(left) < col {
		left += " "
	}

	right := f.Usage
	def := f.DefValue
	if def != "" && def != "false" && def != "0" && def != "0s" && def != "[]" {
		right += fmt.Sprintf(" (default %s)", def)
	}

	return "   " + left + right
}
