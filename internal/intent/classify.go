package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
)

// Fixed replies.
const (
	GreetingText = "Hello! I'm your AI file assistant. How can I help you with your files today?"
	MoveHelpText = "Please specify what to move and where to move it to."
	UsageText    = "I'm not sure what you mean. Try commands like: 'show me files', " +
		"'create a folder called photos', 'how many files are in documents', " +
		"or 'delete old_backup.txt'"

	defaultFolderName = "new_folder"
)

var (
	greetingRe = regexp.MustCompile(`^(hi|hello|hey|greetings|good (morning|afternoon|evening))\b`)

	listRe     = regexp.MustCompile(`\b(?:show|list|display)\b(.*?)\b(?:files?|contents?)\b`)
	mediaNoun  = regexp.MustCompile(`\b(images?|videos?|audios?|documents?)\b`)
	whatsInRe  = regexp.MustCompile(`\b(what's|what is)\b.*\b(in|inside)\b`)
	countRe    = regexp.MustCompile(`\b(how many|count)\b.*\b(files?|items?)\b|\bfile count\b`)
	createRe   = regexp.MustCompile(`\b(create|make|new)\b.*\b(folder|directory)\b`)
	deleteRe   = regexp.MustCompile(`\b(delete|remove|erase)\b.*\b(files?|folders?)\b|\bdelete\b`)
	moveRe     = regexp.MustCompile(`\b(move|transfer)\b.*(to|into)\b`)
	searchRe   = regexp.MustCompile(`\b(find|search|look for)\b`)
	mediaRe    = regexp.MustCompile(`\b(show|list)\b.*\b(images?|videos?|audios?|documents?)\b`)
	lastYearRe = regexp.MustCompile(`\blast year\b`)
	yearRe     = regexp.MustCompile(`\b((?:19|20)\d\d)\b`)
	monthRe    = regexp.MustCompile(`\b(` + monthAlt + `)\b`)

	// A date phrase is "<month> <year>", "from|in|during <month>" or
	// "last year". A month word on its own ("may i?") is not one.
	datePhraseRe = regexp.MustCompile(`(?:\b(?:from|in|during)\s+)?\b(?:` + monthAlt + `)\s+(?:19|20)\d\d\b` +
		`|\b(?:from|in|during)\s+(?:` + monthAlt + `)\b` +
		`|(?:\b(?:from|in|during)\s+)?\blast year\b`)
	// datedSubjectRe marks text that asks for files at all.
	datedSubjectRe = regexp.MustCompile(`\b(show|list|display|files?|images?|photos?|pictures?|videos?|audios?|documents?)\b`)

	// Path extraction captures everything after the preposition, so trailing
	// words and punctuation stay part of the path.
	pathRe = regexp.MustCompile(`\b(?:inside|in|from|of|at)\s+(?:the\s+)?(.+)$`)

	namedRe        = regexp.MustCompile(`\b(?:called|named)\s+(\S+)`)
	folderTokenRe  = regexp.MustCompile(`\b(?:folder|directory)\s+(\S+)`)
	targetTokenRe  = regexp.MustCompile(`\b(?:file|folder|directory)\s+(\S+)`)
	targetBeforeRe = regexp.MustCompile(`\b(?:delete|remove|erase)\s+(?:the\s+)?(\S+)\s+(?:file|folder|directory)\b`)
	targetAfterRe  = regexp.MustCompile(`\b(?:delete|remove|erase)\s+(?:the\s+)?(\S+)`)
	moveArgsRe     = regexp.MustCompile(`\bmove\s+(\S+).*(?:to|into)\s+(\S+)`)
	queryRe        = regexp.MustCompile(`\b(?:for|containing)\s+(\S+)`)
)

const monthAlt = `january|february|march|april|may|june|july|august|september|october|november|december`

var months = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Classifier maps request text to an Action. It holds no state besides the
// clock used to resolve "this year" and "last year".
type Classifier struct {
	Now func() time.Time
}

// NewClassifier returns a Classifier on the wall clock.
func NewClassifier() *Classifier {
	return &Classifier{Now: time.Now}
}

// Classify uses the wall clock.
func Classify(text string) Action {
	return NewClassifier().Classify(text)
}

// Classify never fails: text no rule recognises yields a Message with usage
// hints. Rules are tried in priority order and the first match wins.
func (c *Classifier) Classify(text string) Action {
	s := strings.ToLower(strings.TrimSpace(text))
	dated := datePhraseRe.MatchString(s) && datedSubjectRe.MatchString(s)

	if greetingRe.MatchString(s) {
		return Message{Text: GreetingText}
	}
	if !dated {
		if path, ok := listingPath(s); ok {
			return List{Path: path}
		}
	}

	switch {
	case countRe.MatchString(s):
		return CountFiles{Path: extractPath(s)}

	case createRe.MatchString(s):
		return CreateFolder{Path: folderName(s)}

	case deleteRe.MatchString(s):
		path := deleteTarget(s)
		if strings.Contains(s, "folder") || strings.Contains(s, "directory") {
			return DeleteFolder{Path: path}
		}
		return DeleteFile{Path: path}

	case moveRe.MatchString(s):
		m := moveArgsRe.FindStringSubmatch(s)
		if m == nil {
			return Message{Text: MoveHelpText}
		}
		return Move{Source: unquote(m[1]), Destination: unquote(m[2])}

	case searchRe.MatchString(s):
		return SearchFiles{Query: firstGroup(queryRe, s), Path: ""}

	case !dated && mediaRe.MatchString(s):
		t := mediaType(s)
		if t == "" {
			t = listing.Other
		}
		return ListByType{Path: extractPath(s), Type: t}

	case dated:
		return c.dateRange(s)
	}

	return Message{Text: UsageText}
}

// dateRange resolves the four dated variants: month with an explicit year,
// month of last year, month of the current year, and the whole of last year.
// Month ranges always end on day 31.
func (c *Classifier) dateRange(s string) Action {
	year := c.Now().Year()
	lastYear := lastYearRe.MatchString(s)
	if lastYear {
		year--
	} else if m := yearRe.FindStringSubmatch(s); m != nil {
		year, _ = strconv.Atoi(m[1])
	}

	a := ListByDateRange{Path: extractPath(datePhraseRe.ReplaceAllString(s, " ")), Type: mediaType(s)}
	if m := monthRe.FindStringSubmatch(s); m != nil {
		mm := monthNumber(m[1])
		a.StartDate = fmt.Sprintf("%04d-%s-01", year, mm)
		a.EndDate = fmt.Sprintf("%04d-%s-31", year, mm)
		return a
	}
	a.StartDate = fmt.Sprintf("%04d-01-01", year)
	a.EndDate = fmt.Sprintf("%04d-12-31", year)
	return a
}

func monthNumber(name string) string {
	for i, m := range months {
		if m == name {
			return fmt.Sprintf("%02d", i+1)
		}
	}
	return "01"
}

// mediaType checks image, video, audio, document in that order by substring.
func mediaType(s string) listing.Category {
	for _, c := range []listing.Category{listing.Image, listing.Video, listing.Audio, listing.Document} {
		if strings.Contains(s, string(c)) {
			return c
		}
	}
	return ""
}

// listingPath reports whether s asks for a directory listing and returns the
// path it names. A media noun before "files" makes it a typed listing
// instead. The path is looked for after the "files" token so that "the
// list of files" does not name a folder called "files".
func listingPath(s string) (string, bool) {
	if m := listRe.FindStringSubmatchIndex(s); m != nil && !mediaNoun.MatchString(s[m[2]:m[3]]) {
		return extractPath(s[m[1]:]), true
	}
	if whatsInRe.MatchString(s) {
		return extractPath(s), true
	}
	return "", false
}

func extractPath(s string) string {
	return normalizeRoot(firstGroup(pathRe, s))
}

// normalizeRoot maps the names users give the share root to "".
func normalizeRoot(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "/mnt/ssd") {
		p = strings.TrimLeft(strings.TrimPrefix(p, "/mnt/ssd"), "/")
	}
	bare := strings.TrimSuffix(strings.TrimSuffix(p, " directory"), " folder")
	switch bare {
	case "root", "/", "mnt/ssd", "main":
		return ""
	}
	return p
}

func folderName(s string) string {
	if name := firstGroup(namedRe, s); name != "" {
		return name
	}
	if name := firstGroup(folderTokenRe, s); name != "" {
		return name
	}
	return defaultFolderName
}

func deleteTarget(s string) string {
	for _, re := range []*regexp.Regexp{targetTokenRe, targetBeforeRe, targetAfterRe} {
		switch name := firstGroup(re, s); name {
		case "", "file", "folder", "directory", "the":
		default:
			return name
		}
	}
	return ""
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return unquote(m[1])
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `'"`)
}
