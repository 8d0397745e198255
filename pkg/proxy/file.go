package proxy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/entrhq/browserforge/pkg/forgeerr"
)

// LineError describes an unparseable line of a proxy list.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

// LoadFile reads a proxy list: one URL per line, blank lines and lines
// starting with # ignored. Invalid lines are logged and skipped.
func LoadFile(path string) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, forgeerr.Config(
				fmt.Sprintf("proxy file not found: %s", path),
				"Check the path to the proxy list",
			).WithCode(forgeerr.CodeProxyList)
		}
		return nil, forgeerr.Config(fmt.Sprintf("failed to open proxy file: %s", path), "").
			WithCode(forgeerr.CodeProxyList).WithCause(err)
	}
	defer f.Close()

	endpoints, invalid, err := ParseList(f)
	if err != nil {
		return nil, forgeerr.Config(fmt.Sprintf("failed to read proxy file: %s", path), "").
			WithCode(forgeerr.CodeProxyList).WithCause(err)
	}
	for _, le := range invalid {
		debugLog.Warnf("Invalid proxy in %s: %v", path, le)
	}
	return endpoints, nil
}

// ParseList parses a proxy list from r, returning the valid endpoints and the
// rejected lines.
func ParseList(r io.Reader) ([]Endpoint, []LineError, error) {
	var (
		endpoints []Endpoint
		invalid   []LineError
	)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := ParseURL(line)
		if err != nil {
			invalid = append(invalid, LineError{Line: lineNum, Text: line, Err: err})
			continue
		}
		endpoints = append(endpoints, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return endpoints, invalid, nil
}
