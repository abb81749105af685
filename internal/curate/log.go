// Package curate keeps the images on which a detector found many regions,
// together with their label files, to build a denser training subset.
//
// Detection counts come either from a detector's console log or from a
// directory of prediction label files.
package curate

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/logging"
)

// Entry is the detection count of one image.
type Entry struct {
	// Line is the 1-based log line, or 0 for entries from prediction files.
	Line int `json:"line,omitempty"`

	// Index is the position of the entry among all parsed entries.
	Index int `json:"index"`

	// Stem identifies the image when the source names it. Entries from the
	// stream log form have no stem and are resolved by Index.
	Stem string `json:"stem,omitempty"`

	// Counts maps the detector's class name, as printed, to its count.
	Counts map[string]int `json:"counts"`

	Total int `json:"total"`
}

var (
	// image 3/20 /data/x.jpg: 640x480 2 lows, 3 normals, 11.2ms
	imageLine = regexp.MustCompile(`^image \d+/\d+ (.+?): \d+x\d+ ?(.*)$`)

	// 0: 640x480 2 lows, 1 normal, 9.1ms
	streamLine = regexp.MustCompile(`^\d+: \d+x\d+ ?(.*)$`)

	countGroup = regexp.MustCompile(`^(\d+) (\D.*)$`)
)

// ParseLog reads a detector prediction log. Lines that are neither detection
// form are logged and skipped.
func ParseLog(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	logger = logging.OrDiscard(logger)

	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var stem, rest string
		if m := imageLine.FindStringSubmatch(line); m != nil {
			stem, rest = dataset.Stem(m[1]), m[2]
		} else if m := streamLine.FindStringSubmatch(line); m != nil {
			rest = m[1]
		} else {
			logger.Warn("unrecognised log line", "line", n, "text", line)
			continue
		}

		counts := parseCounts(rest)
		total := 0
		for _, c := range counts {
			total += c
		}
		entries = append(entries, Entry{
			Line:   n,
			Index:  len(entries),
			Stem:   stem,
			Counts: counts,
			Total:  total,
		})
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("failed to read log: %w", err)
	}
	return entries, nil
}

// ParseLogFile is ParseLog on a file.
func ParseLogFile(path string, logger *slog.Logger) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()
	return ParseLog(f, logger)
}

// parseCounts reads "2 lows, 3 normals, 11.2ms" into {"lows": 2, "normals": 3}.
// "(no detections)" and timings contribute nothing.
func parseCounts(s string) map[string]int {
	counts := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		m := countGroup.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		counts[m[2]] += v
	}
	return counts
}

// CountPredictions builds entries from a directory of prediction label
// files, counting one region per non-blank line.
func CountPredictions(dir string) ([]Entry, error) {
	names, err := dataset.ListFiles(dir, dataset.HasExt(".txt"))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		counts := make(map[string]int)
		total := 0
		for _, line := range strings.Split(string(data), "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			counts[fields[0]]++
			total++
		}
		entries = append(entries, Entry{
			Index:  i,
			Stem:   dataset.Stem(name),
			Counts: counts,
			Total:  total,
		})
	}
	return entries, nil
}
