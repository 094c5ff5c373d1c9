package tle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058"
	newLine1 = "1 25544U 98067A   25046.50000000  .00016717  00000+0  30099-3 0  9990"
	hstLine1 = "1 20580U 90037B   25045.50000000  .00001000  00000+0  50000-4 0  9992"
	hstLine2 = "2 20580  28.4700 100.0000 0002500  90.0000 270.0000 15.10000000    02"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ids   []int
		names []string
	}{
		{
			name:  "three line",
			input: strings.Join([]string{issName, issLine1, issLine2, "HST", hstLine1, hstLine2}, "\n"),
			ids:   []int{25544, 20580},
			names: []string{issName, "HST"},
		},
		{
			name:  "two line gets NORAD ID as name",
			input: strings.Join([]string{issLine1, issLine2}, "\r\n"),
			ids:   []int{25544},
			names: []string{"25544"},
		},
		{
			name:  "zero-prefixed name line",
			input: strings.Join([]string{"0 HST", hstLine1, hstLine2}, "\n"),
			ids:   []int{20580},
			names: []string{"HST"},
		},
		{
			name:  "garbage between entries",
			input: strings.Join([]string{issName, issLine1, "garbage", "HST", hstLine1, hstLine2}, "\n"),
			ids:   []int{20580},
			names: []string{"HST"},
		},
		{
			name:  "mismatched NORAD IDs",
			input: strings.Join([]string{"MIX", issLine1, hstLine2}, "\n"),
		},
		{
			name:  "latest epoch wins",
			input: strings.Join([]string{issName, issLine1, issLine2, "ISS NEW", newLine1, issLine2}, "\n"),
			ids:   []int{25544},
			names: []string{"ISS NEW"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse(strings.NewReader(tt.input), testLogger)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(entries) != len(tt.ids) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.ids))
			}
			for i, e := range entries {
				if e.NORADID != tt.ids[i] || e.Name != tt.names[i] {
					t.Errorf("entry %d = %d %q, want %d %q", i, e.NORADID, e.Name, tt.ids[i], tt.names[i])
				}
			}
		})
	}
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		err  bool
	}{
		{"25045.50000000", time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC), false},
		{"99001.00000000", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"57001.25000000", time.Date(1957, 1, 1, 6, 0, 0, 0, time.UTC), false},
		{"24366.00000000", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"25", time.Time{}, true},
		{"xx001.0", time.Time{}, true},
		{"25000.5", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseEpoch(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("parseEpoch(%q) error = %v, want error %v", tt.in, err, tt.err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseEpoch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iss.tle")
	if err := os.WriteFile(path, []byte(issName+"\n"+issLine1+"\n"+issLine2+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := ParseFile(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].NORADID != 25544 {
		t.Errorf("entries = %+v", entries)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing"), testLogger); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDataset(t *testing.T) {
	entries, err := Parse(strings.NewReader(strings.Join([]string{issName, issLine1, issLine2, "HST", hstLine1, hstLine2}, "\n")), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	fetched := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	ds := NewDataset("test", fetched, entries)

	if !ds.EpochRange.Min.Equal(entries[0].Epoch) || !ds.EpochRange.Max.Equal(entries[1].Epoch) {
		t.Errorf("epoch range = %+v", ds.EpochRange)
	}
	if e, ok := ds.Find(20580); !ok || e.Name != "HST" {
		t.Errorf("Find(20580) = %+v, %v", e, ok)
	}
	if _, ok := ds.Find(1); ok {
		t.Error("Find(1) should miss")
	}

	literal := &TLEDataset{Satellites: entries}
	if e, ok := literal.Find(25544); !ok || e.Name != issName {
		t.Errorf("unindexed Find(25544) = %+v, %v", e, ok)
	}
}
