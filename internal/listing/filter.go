package listing

// FilesOnly drops directories.
func FilesOnly(entries []FileEntry) []FileEntry {
	var out []FileEntry
	for _, e := range entries {
		if !e.IsDirectory {
			out = append(out, e)
		}
	}
	return out
}

// FilterByCategory keeps entries whose extension falls in c. Other is the
// complement of every categorised extension.
func FilterByCategory(entries []FileEntry, c Category) []FileEntry {
	var out []FileEntry
	for _, e := range entries {
		if CategoryOf(e.Name) == c {
			out = append(out, e)
		}
	}
	return out
}

// EntryDate returns the YYYY-MM-DD prefix of e.Modified, or false when the
// entry carries no parseable date.
func EntryDate(e FileEntry) (string, bool) {
	if len(e.Modified) < 10 {
		return "", false
	}
	d := e.Modified[:10]
	if !IsISODate(d) {
		return "", false
	}
	return d, true
}

// FilterByDateRange keeps entries dated within [start, end], both inclusive.
// Fixed-width ISO dates compare correctly as strings. Undated entries are
// excluded.
func FilterByDateRange(entries []FileEntry, start, end string) []FileEntry {
	var out []FileEntry
	for _, e := range entries {
		d, ok := EntryDate(e)
		if !ok {
			continue
		}
		if d >= start && d <= end {
			out = append(out, e)
		}
	}
	return out
}

// IsISODate reports whether s has the shape YYYY-MM-DD. Day ranges are not
// checked against the month length.
func IsISODate(s string) bool {
	return len(s) == 10 && s[4] == '-' && s[7] == '-' &&
		allDigits(s[0:4]) && allDigits(s[5:7]) && allDigits(s[8:10])
}

// Breakdown sums file sizes per category.
func Breakdown(entries []FileEntry) map[Category]uint64 {
	totals := make(map[Category]uint64, len(Categories))
	for _, c := range Categories {
		totals[c] = 0
	}
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		totals[CategoryOf(e.Name)] += e.Size
	}
	return totals
}
