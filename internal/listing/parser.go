package listing

import (
	"strconv"
	"strings"
)

const (
	// headerLines is the fixed preamble of a dir listing: volume label,
	// serial number, blank, "Directory of ...", blank.
	headerLines = 5

	dirMarker = "<DIR>"
)

// ParseListing parses the output of a dir command run against dir (a
// share-relative path, "" for the root). Header lines are skipped, parsing
// stops at the summary trailer, and malformed lines are dropped.
func ParseListing(raw, dir string) []FileEntry {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) > headerLines {
		lines = lines[headerLines:]
	} else {
		lines = nil
	}

	var entries []FileEntry
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Directory of") {
			continue
		}
		if isTrailer(line) {
			break
		}

		entry, ok := parseLine(line)
		if !ok {
			continue
		}
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		entry.Path = JoinPath(dir, entry.Name)
		entries = append(entries, entry)
	}
	return entries
}

// isTrailer reports whether line is one of the summary lines that end a
// listing ("Total Files Listed:", "3 File(s) 1,024 bytes", "2 Dir(s) ...").
func isTrailer(line string) bool {
	if strings.HasPrefix(line, "Total Files Listed") {
		return true
	}
	fields := strings.Fields(line)
	return len(fields) >= 2 && (fields[1] == "File(s)" || fields[1] == "Dir(s)")
}

func parseLine(line string) (FileEntry, bool) {
	parts := strings.Fields(line)
	if len(parts) < 4 {
		return FileEntry{}, false
	}

	date, clock := parts[0], parts[1]
	rest := parts[2:]
	// 12-hour locales print the meridiem as its own token.
	if m := strings.ToUpper(rest[0]); m == "AM" || m == "PM" {
		clock += " " + m
		rest = rest[1:]
		if len(rest) < 2 {
			return FileEntry{}, false
		}
	}

	sizeOrDir := rest[0]
	name := strings.Join(rest[1:], " ")
	entry := FileEntry{
		Name:     name,
		Modified: NormalizeDate(date) + " " + clock,
	}

	if sizeOrDir == dirMarker {
		entry.IsDirectory = true
		return entry, true
	}

	size, err := strconv.ParseUint(stripSeparators(sizeOrDir), 10, 64)
	if err != nil {
		return FileEntry{}, false
	}
	entry.Size = size
	return entry, true
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', ' ', '\'':
			return -1
		}
		return r
	}, s)
}

// NormalizeDate reorders DD-MM-YYYY (and DD.MM.YYYY) dates to YYYY-MM-DD.
// Slash dates are ambiguous between locales and, like ISO dates and anything
// unrecognised, are returned as is.
func NormalizeDate(s string) string {
	if len(s) != 10 {
		return s
	}
	sep := s[2]
	if (sep != '-' && sep != '.') || s[5] != sep {
		return s
	}
	day, month, year := s[0:2], s[3:5], s[6:10]
	if !allDigits(day) || !allDigits(month) || !allDigits(year) {
		return s
	}
	return year + "-" + month + "-" + day
}

// ParseSearchOutput returns the non-empty trimmed lines of a bare
// recursive search listing.
func ParseSearchOutput(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ParseCountOutput counts the non-empty lines of a bare listing.
func ParseCountOutput(raw string) int {
	return len(ParseSearchOutput(raw))
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
