// Package wordlist loads the candidate-path and user-agent files that feed
// the scan driver.
//
// Both file formats are the same: UTF-8 text, one entry per line,
// leading/trailing whitespace trimmed, empty lines skipped. Loading is a
// one-shot, synchronous read done before dispatch starts; no streaming.
package wordlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultUserAgents is used when --user-agents is not supplied:
// a built-in five-entry Chrome/Safari/Firefox/iPhone/self list.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	"scanhound/1.0",
}

// Load reads path as a newline-delimited list, trimming whitespace and
// skipping empty lines. An empty path is a caller error here; user-agent
// lists go through LoadUserAgents, which maps an empty path to the built-in
// defaults instead.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wordlist: %w", err)
	}
	defer f.Close()

	return readLines(f)
}

// LoadUserAgents reads path the same way Load does, except an empty path
// returns DefaultUserAgents instead of erroring.
func LoadUserAgents(path string) ([]string, error) {
	if path == "" {
		return DefaultUserAgents, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open user-agents file: %w", err)
	}
	defer f.Close()

	return readLines(f)
}

func readLines(f *os.File) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return lines, nil
}
