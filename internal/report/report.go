// Package report formats scan results for the console and serializes them to
// the supported output-file formats: text, json, csv, xml.
//
// Only Success and NotFound results are ever serialized; Filtered
// never appears in a report, and Error entries are surfaced only through the
// console line / error channel, never through Serialize.
package report

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/scanhound/scanhound/internal/types"
)

// Format names the supported --output-format values.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// ConsoleLine renders one non-filtered result the way a terminal operator
// reads it, colorized by outcome: Success green, Error red, NotFound (when
// shown) dim.
func ConsoleLine(r types.BustResult, showContentLength, showResponseTime bool) string {
	if r.Kind == types.ResultError {
		return color.HiRedString("[ERR]") + " " + r.Word + ": " + r.Message
	}

	resp := r.Response
	line := fmt.Sprintf("[%d] %s", resp.Status, resp.URL)

	if showContentLength && resp.ContentLength != nil {
		line += fmt.Sprintf(" (Size: %d)", *resp.ContentLength)
	}
	if showResponseTime {
		line += fmt.Sprintf(" (Time: %s)", resp.ResponseTime.Round(time.Millisecond))
	}

	switch r.Kind {
	case types.ResultSuccess:
		return color.GreenString(line)
	case types.ResultNotFound:
		return color.HiBlackString(line)
	default:
		return line
	}
}

// PrintSummary writes the end-of-scan summary block: totals, outcome
// counters, elapsed time, and request rate.
func PrintSummary(w io.Writer, counters types.ResultCounters, total int, elapsed time.Duration) {
	rate := 0.0
	if elapsed > 0 {
		rate = float64(total) / elapsed.Seconds()
	}

	fmt.Fprintf(w, "\n%s\n", color.New(color.Bold, color.Underline, color.FgBlue).Sprint("Summary:"))
	fmt.Fprintf(w, "%-15s%d\n", "Total words:", total)
	fmt.Fprintf(w, "%-15s%s\n", "Found:", color.GreenString("%d", counters.Found))
	fmt.Fprintf(w, "%-15s%s\n", "Errors:", color.RedString("%d", counters.Errors))
	fmt.Fprintf(w, "%-15s%s\n", "Filtered:", color.YellowString("%d", counters.Filtered))
	fmt.Fprintf(w, "%-15s%s\n", "Elapsed:", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "%-15s%.2f req/sec\n", "Rate:", rate)
}

// Summary is the serialized top-level object for json; the xml, csv, and
// text formats write only its Results.
type Summary struct {
	Target        string       `json:"target"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       time.Time    `json:"end_time"`
	Duration      float64      `json:"duration"`
	TotalRequests int          `json:"total_requests"`
	SuccessCount  int          `json:"success_count"`
	ErrorCount    int          `json:"error_count"`
	FilteredCount int          `json:"filtered_count"`
	RatePerSec    float64      `json:"rate"`
	Results       []ResultItem `json:"results"`
}

// ResultItem is one reported Success/NotFound entry.
type ResultItem struct {
	Word           string `json:"word"`
	Status         int    `json:"status"`
	ContentLength  int64  `json:"content_length"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	WordCount      int    `json:"word_count"`
	URL            string `json:"url"`
}

// xmlResultItem is the XML-only projection of a ResultItem: the <result>
// element carries word, status, content_length, response_time_ms, and url,
// but no word_count.
type xmlResultItem struct {
	Word           string `xml:"word"`
	Status         int    `xml:"status"`
	ContentLength  int64  `xml:"content_length"`
	ResponseTimeMs int64  `xml:"response_time_ms"`
	URL            string `xml:"url"`
}

// xmlReport wraps results under a <scan_results> root, since encoding/xml
// needs a distinct root element name from the json "results" key.
type xmlReport struct {
	XMLName xml.Name        `xml:"scan_results"`
	Results []xmlResultItem `xml:"result"`
}

func toXMLResults(items []ResultItem) []xmlResultItem {
	out := make([]xmlResultItem, len(items))
	for i, item := range items {
		out[i] = xmlResultItem{
			Word:           item.Word,
			Status:         item.Status,
			ContentLength:  item.ContentLength,
			ResponseTimeMs: item.ResponseTimeMs,
			URL:            item.URL,
		}
	}
	return out
}

// BuildSummary reduces raw results and counters into the reportable Summary,
// keeping only Success/NotFound entries.
func BuildSummary(target string, start, end time.Time, counters types.ResultCounters, total int, results []types.BustResult) Summary {
	items := make([]ResultItem, 0, len(results))
	for _, r := range results {
		if r.Kind != types.ResultSuccess && r.Kind != types.ResultNotFound {
			continue
		}
		items = append(items, toResultItem(r))
	}

	duration := end.Sub(start)
	rate := 0.0
	if duration > 0 {
		rate = float64(total) / duration.Seconds()
	}

	return Summary{
		Target:        target,
		StartTime:     start,
		EndTime:       end,
		Duration:      duration.Seconds(),
		TotalRequests: total,
		SuccessCount:  int(counters.Found),
		ErrorCount:    int(counters.Errors),
		FilteredCount: int(counters.Filtered),
		RatePerSec:    rate,
		Results:       items,
	}
}

func toResultItem(r types.BustResult) ResultItem {
	item := ResultItem{
		Word:   r.Response.Word,
		Status: r.Response.Status,
		URL:    r.Response.URL,
	}
	if r.Response.ContentLength != nil {
		item.ContentLength = *r.Response.ContentLength
	}
	item.ResponseTimeMs = r.Response.ResponseTime.Milliseconds()
	if r.Response.WordCount != nil {
		item.WordCount = *r.Response.WordCount
	}
	return item
}

// Serialize writes summary to w in the requested format.
func Serialize(w io.Writer, format Format, summary Summary) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)

	case FormatCSV:
		return writeCSV(w, summary)

	case FormatXML:
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		return enc.Encode(xmlReport{Results: toXMLResults(summary.Results)})

	case FormatText:
		return writeText(w, summary)

	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeCSV(w io.Writer, summary Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Word", "Status", "Content-Length", "Response-Time-MS", "Word-Count", "URL"}); err != nil {
		return err
	}
	for _, item := range summary.Results {
		row := []string{
			item.Word,
			fmt.Sprintf("%d", item.Status),
			fmt.Sprintf("%d", item.ContentLength),
			fmt.Sprintf("%d", item.ResponseTimeMs),
			fmt.Sprintf("%d", item.WordCount),
			item.URL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeText(w io.Writer, summary Summary) error {
	for _, item := range summary.Results {
		if _, err := fmt.Fprintf(w, "[%d] %s\n", item.Status, item.URL); err != nil {
			return err
		}
	}
	return nil
}
