package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"proxyrank/internal/shared/logger"
	"proxyrank/proxypool/model"
)

// ReadEndpointList reads one host:port per line. Blank lines are ignored, invalid
// entries are skipped with a warning and repeats keep their first position.
// A missing file yields an empty list.
func ReadEndpointList(path string) ([]string, error) {
	l := logger.WithComponent("ProxyPool/Storage")

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.Warn().Str("path", path).Msg("Endpoint list not found, treating as empty.")
			return nil, nil
		}
		return nil, fmt.Errorf("opening endpoint list %s: %w", path, err)
	}
	defer file.Close()

	var addrs []string
	seen := make(map[string]struct{})
	skipped := 0
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		addr, err := model.NormalizeAddress(line)
		if err != nil {
			skipped++
			l.Warn().Str("path", path).Int("line", lineNum).Err(err).Msg("Skipping invalid endpoint.")
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading endpoint list %s: %w", path, err)
	}

	l.Info().Str("path", path).Int("count", len(addrs)).Int("skipped", skipped).Msg("Loaded endpoint list.")
	return addrs, nil
}

// WriteLines atomically replaces path with one line per entry.
func WriteLines(path string, lines []string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		for _, line := range lines {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteEndpoints writes protocol-qualified endpoints, one per line, in the given order.
func WriteEndpoints(path string, eps []model.Endpoint) error {
	lines := make([]string, len(eps))
	for i, ep := range eps {
		lines[i] = ep.URL()
	}
	return WriteLines(path, lines)
}
