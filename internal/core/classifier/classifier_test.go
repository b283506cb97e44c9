package classifier

import (
	"strings"
	"testing"
	"unicode/utf8"

	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/shared/config"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := New(config.DefaultKeywords)

	testCases := []struct {
		name        string
		text        string
		wantPassed  bool
		wantMatches int
		wantMarkers []string
		wantIDLike  bool
	}{
		{
			name:        "two keywords and a nine digit number",
			text:        "Студент Московского университет имени 123456789",
			wantPassed:  true,
			wantMatches: 2,
			wantMarkers: []string{},
			wantIDLike:  true,
		},
		{
			name:        "single keyword only",
			text:        "Университет",
			wantPassed:  false,
			wantMatches: 1,
			wantMarkers: []string{},
		},
		{
			name:        "two keywords without marker or id",
			text:        "student at the university",
			wantPassed:  false,
			wantMatches: 2,
			wantMarkers: []string{},
		},
		{
			name:        "two keywords with student card marker",
			text:        "СТУДЕНЧЕСКИЙ БИЛЕТ\nФакультет экономики\nУниверситет",
			wantPassed:  true,
			wantMatches: 2,
			wantMarkers: []string{"student_card", "faculty"},
		},
		{
			name:        "marker and id but one keyword",
			text:        "Student ID 00123456",
			wantPassed:  false,
			wantMatches: 1,
			wantMarkers: []string{"student_card"},
			wantIDLike:  true,
		},
		{
			name:        "english card with enrollment year",
			text:        "Technical University of Denmark. Student card. Year 2",
			wantPassed:  true,
			wantMatches: 2,
			wantMarkers: []string{"student_card", "institution", "enrollment"},
		},
		{
			name:        "repeated keyword counts once",
			text:        "студент студент студент 1234567",
			wantPassed:  false,
			wantMatches: 1,
			wantMarkers: []string{},
			wantIDLike:  true,
		},
		{
			name:        "empty text",
			text:        "",
			wantPassed:  false,
			wantMatches: 0,
			wantMarkers: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := c.Classify(tc.text)
			assert.Equal(t, tc.wantPassed, res.Passed)
			assert.Equal(t, tc.wantMatches, res.Matches)
			assert.Equal(t, tc.wantMatches, len(res.Signals.KeywordHits))
			assert.Equal(t, tc.wantMarkers, res.Signals.Markers)
			assert.Equal(t, tc.wantIDLike, res.Signals.HasIDLikeNumber)
			assert.Equal(t, utf8.RuneCountInString(tc.text), res.Signals.TextLength)
			if tc.wantPassed {
				assert.Empty(t, res.Signals.RejectReason)
			} else {
				assert.Equal(t, domain.RejectReasonKeywordNotMatched, res.Signals.RejectReason)
			}
		})
	}
}

func TestClassify_IDLikeBounds(t *testing.T) {
	c := New([]string{"student", "university"})

	testCases := []struct {
		digits string
		want   bool
	}{
		{"12345", false},
		{"123456", true},
		{"123456789012", true},
		{"1234567890123", false},
	}
	for _, tc := range testCases {
		t.Run(tc.digits, func(t *testing.T) {
			res := c.Classify("student university " + tc.digits)
			assert.Equal(t, tc.want, res.Signals.HasIDLikeNumber)
			assert.Equal(t, tc.want, res.Passed)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(config.DefaultKeywords)
	text := "Студенческий билет № 4455667788, факультет права, университет"

	first := c.Classify(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(text))
	}
}

func TestNew_NormalizesKeywords(t *testing.T) {
	c := New([]string{" Student ", "STUDENT", "", "college"})
	assert.Equal(t, []string{"student", "college"}, c.keywords)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("  abc \n", 10))
	assert.Equal(t, "сту", Preview("студент", 3))
	assert.Equal(t, "студент", Preview("студент", 0))

	long := strings.Repeat("я", 1500)
	p := Preview(long, 1000)
	assert.Equal(t, 1000, utf8.RuneCountInString(p))
	assert.True(t, utf8.ValidString(p))
}
