package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseText splits free-form input into raw keywords. Comma-separated
// input wins over newline-separated; the common chat case is one line
// of comma-separated terms.
func ParseText(text string) []string {
	var parts []string
	if strings.Contains(text, ",") {
		parts = strings.Split(text, ",")
	} else {
		parts = strings.Split(text, "\n")
	}

	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keywords = append(keywords, p)
		}
	}
	return keywords
}

// ParseCSV reads keywords from a CSV file, preferring a column named
// "keyword" and falling back to the first column.
func ParseCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := 0
	start := 0
	for i, name := range records[0] {
		if strings.EqualFold(strings.TrimSpace(name), "keyword") {
			col = i
			start = 1
			break
		}
	}
	// Without a keyword header, treat the first row as data unless it
	// looks like any other header row.
	if start == 0 && looksLikeHeader(records[0][0]) {
		start = 1
	}

	var keywords []string
	for _, record := range records[start:] {
		if col >= len(record) {
			continue
		}
		if kw := strings.TrimSpace(record[col]); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords, nil
}

func looksLikeHeader(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "keywords", "term", "terms", "query", "queries":
		return true
	}
	return false
}
