package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Parse reads TLE data from r and returns the parsed entries in input order.
// The name line is optional: an entry is either a name followed by lines 1
// and 2, or lines 1 and 2 alone. Malformed entries are skipped with a
// warning. When a NORAD ID repeats, the entry with the latest epoch wins.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var (
		entries []TLEEntry
		seen    = make(map[int]int)
	)
	for i := 0; i < len(lines); {
		name := ""
		if !isLine(lines[i], '1') {
			name = strings.TrimSpace(strings.TrimPrefix(lines[i], "0 "))
			i++
		}
		if i+1 >= len(lines) || !isLine(lines[i], '1') || !isLine(lines[i+1], '2') {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			if i < len(lines) && !isLine(lines[i], '1') {
				continue
			}
			i++
			continue
		}
		line1, line2 := lines[i], lines[i+1]
		i += 2

		entry, err := parseEntry(name, line1, line2)
		if err != nil {
			logger.Warn("skipping TLE entry", "name", name, "error", err)
			continue
		}
		if entry.Name == "" {
			entry.Name = strconv.Itoa(entry.NORADID)
		}

		if j, dup := seen[entry.NORADID]; dup {
			if entry.Epoch.After(entries[j].Epoch) {
				entries[j] = entry
			}
			continue
		}
		seen[entry.NORADID] = len(entries)
		entries = append(entries, entry)
	}

	return entries, nil
}

// ParseFile parses the TLE file at path.
func ParseFile(path string, logger *slog.Logger) ([]TLEEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening TLE file: %w", err)
	}
	defer f.Close()
	return Parse(f, logger)
}

func isLine(s string, n byte) bool {
	return len(s) > 2 && s[0] == n && s[1] == ' '
}

func parseEntry(name, line1, line2 string) (TLEEntry, error) {
	if len(line1) < 32 || len(line2) < 7 {
		return TLEEntry{}, fmt.Errorf("short element lines")
	}

	// NORAD ID in columns 3-7 of both lines.
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return TLEEntry{}, fmt.Errorf("invalid NORAD ID %q", noradStr)
	}
	if other := strings.TrimSpace(line2[2:7]); other != noradStr {
		return TLEEntry{}, fmt.Errorf("NORAD ID mismatch: line 1 %q, line 2 %q", noradStr, other)
	}

	// Epoch in columns 19-32 of line 1.
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return TLEEntry{}, err
	}

	return TLEEntry{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Years 00-56 are 2000s, 57-99 are 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// Day 1.0 is midnight on Jan 1.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))).Round(time.Microsecond), nil
}
