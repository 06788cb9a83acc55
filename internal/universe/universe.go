// Package universe manages the ordered list of tickers the bot scans.
// The list is loaded once at startup and is immutable for the run: the
// position of a symbol in the file defines the resumption index.
package universe

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load reads the symbol universe from a file, one ticker per line.
// Order is preserved; blank lines are skipped.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		symbol := strings.TrimSpace(scanner.Text())
		if symbol == "" {
			continue
		}
		symbols = append(symbols, symbol)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}

	return symbols, nil
}

// Save writes the symbol universe to a file, one ticker per line.
func Save(path string, symbols []string) error {
	var b strings.Builder
	for _, symbol := range symbols {
		b.WriteString(symbol)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write symbols file: %w", err)
	}
	return nil
}
