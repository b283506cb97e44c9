// Package classifier decides whether OCR text looks like a student document.
//
// The rule is: at least two distinct keywords AND (a document marker OR an
// ID-like number). Two independent keyword hits are always required.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"StudentVerify/internal/core/domain"
)

// MinKeywordMatches is the anti-false-positive floor.
const MinKeywordMatches = 2

const (
	minIDDigits = 6
	maxIDDigits = 12
)

type marker struct {
	name string
	re   *regexp.Regexp
}

// Markers run against lowercased text, in this order.
var markers = []marker{
	{"student_card", regexp.MustCompile(`студенческ\S*\s+(?:билет|удостоверени)|зач[её]тн\S*\s+книжк|student\s*(?:id|card)`)},
	{"institution", regexp.MustCompile(`(?:государственн|федеральн|национальн|технический|педагогическ)\S*\s+(?:\S+\s+)?(?:университет|институт|академи)|(?:state|national|technical)\s+university|(?:university|college|institute)\s+of\s`)},
	{"faculty", regexp.MustCompile(`факультет\S*\s+\S+|faculty\s+of\s`)},
	{"study_form", regexp.MustCompile(`форм\S*\s+обучени|(?:очн|заочн)\S*\s+форм|full[-\s]time|part[-\s]time`)},
	{"enrollment", regexp.MustCompile(`(?:курс|групп\S*)\s*[:№#]?\s*\d|(?:year|course|group)\s*[:№#]?\s*\d`)},
}

var digitRun = regexp.MustCompile(`\d+`)

// Result is the classifier output.
type Result struct {
	Passed  bool
	Matches int
	Signals domain.Signals // only the content fields are set
}

// Classifier holds the keyword list. It is safe for concurrent use.
type Classifier struct {
	keywords []string
}

// New builds a classifier; keywords are lowercased and deduplicated.
func New(keywords []string) *Classifier {
	seen := make(map[string]struct{}, len(keywords))
	var kws []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		kws = append(kws, kw)
	}
	return &Classifier{keywords: kws}
}

// Classify is deterministic: the same text always yields the same Result.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)

	hits := []string{}
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}

	fired := []string{}
	for _, m := range markers {
		if m.re.MatchString(lower) {
			fired = append(fired, m.name)
		}
	}

	idLike := 0
	for _, run := range digitRun.FindAllString(lower, -1) {
		if len(run) >= minIDDigits && len(run) <= maxIDDigits {
			idLike++
		}
	}

	passed := len(hits) >= MinKeywordMatches && (len(fired) > 0 || idLike > 0)

	sig := domain.Signals{
		Stage:           domain.StageClassify,
		KeywordHits:     hits,
		Markers:         fired,
		HasIDLikeNumber: idLike > 0,
		IDLikeCount:     idLike,
		TextLength:      utf8.RuneCountInString(text),
	}
	if !passed {
		sig.RejectReason = domain.RejectReasonKeywordNotMatched
	}

	return Result{Passed: passed, Matches: len(hits), Signals: sig}
}

// Preview keeps the leading maxChars runes of the trimmed text.
func Preview(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}
