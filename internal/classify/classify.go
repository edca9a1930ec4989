// Package classify infers the type of a spreadsheet column.
//
// A column is classified from its values by majority vote: every non-blank
// value counts toward exactly one bucket (date, number, yes/no, long text,
// short text) and the first bucket that reaches its threshold wins. Columns
// without data fall back to keyword matching on the header.
//
// The result is a pair: a field type, used by clients as an input hint, and
// a coarser data type used for validation.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Field types.
const (
	FieldNumber   = "number"
	FieldDateTime = "datetime-local"
	FieldTextarea = "textarea"
	FieldYesNo    = "select-yesno"
	FieldText     = "text"
)

// Data types.
const (
	DataNumber   = "number"
	DataDate     = "date"
	DataBoolean  = "boolean"
	DataText     = "text"
	DataTextOnly = "text_only"
	DataAny      = "any"
)

// Type is the outcome of classifying a column.
type Type struct {
	Field string `json:"field_type"`
	Data  string `json:"data_type"`
}

var (
	typeDate     = Type{FieldDateTime, DataDate}
	typeNumber   = Type{FieldNumber, DataNumber}
	typeYesNo    = Type{FieldYesNo, DataBoolean}
	typeLongText = Type{FieldTextarea, DataText}
	typeTextOnly = Type{FieldText, DataTextOnly}
	typeAny      = Type{FieldText, DataAny}
)

const (
	majorityThreshold = 0.6
	longTextThreshold = 0.4
	longTextLength    = 100
)

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`),
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`),
		regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`),
	}
	numberPattern = regexp.MustCompile(`^-?\d+([.,]\d+)?$`)
)

type bucket int

const (
	bucketDate bucket = iota
	bucketNumber
	bucketYesNo
	bucketLongText
	bucketShortText
	numBuckets
)

// Classifier classifies columns using one keyword set.
type Classifier struct {
	kw    Keywords
	yesNo map[string]struct{}
}

// New returns a Classifier backed by kw.
func New(kw Keywords) *Classifier {
	yesNo := make(map[string]struct{}, len(kw.Data.YesNoValues))
	for _, v := range kw.Data.YesNoValues {
		yesNo[v] = struct{}{}
	}
	return &Classifier{kw: kw, yesNo: yesNo}
}

var defaultClassifier = New(DefaultKeywords())

// Default returns the Classifier built from the embedded keyword set.
func Default() *Classifier { return defaultClassifier }

// Version reports the keyword set version in use.
func (c *Classifier) Version() int { return c.kw.Version }

// Classify returns the type of a column from its raw values. Values are
// native cell values: nil, string, numeric kinds, bool, time.Time (dates and
// times of day) and time.Duration.
func (c *Classifier) Classify(values []any, header string) Type {
	var counts [numBuckets]int
	total := 0
	for _, v := range values {
		b, ok := c.bucketOf(v)
		if !ok {
			continue
		}
		counts[b]++
		total++
	}
	if total == 0 {
		return c.ByHeader(header)
	}

	share := func(b bucket) float64 { return float64(counts[b]) / float64(total) }
	switch {
	case share(bucketDate) >= majorityThreshold:
		return typeDate
	case share(bucketNumber) >= majorityThreshold:
		return typeNumber
	case share(bucketYesNo) >= majorityThreshold:
		return typeYesNo
	case share(bucketLongText) >= longTextThreshold:
		return typeLongText
	}

	if containsAny(strings.ToLower(header), c.kw.Data.TextOnly) {
		return typeTextOnly
	}
	return typeAny
}

// bucketOf assigns v to a bucket. ok is false for nil and blank values.
func (c *Classifier) bucketOf(v any) (bucket, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		return bucketDate, true
	case time.Duration:
		return bucketNumber, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return bucketNumber, true
	case string:
		return c.bucketOfString(x)
	default:
		return c.bucketOfString(fmt.Sprint(x))
	}
}

func (c *Classifier) bucketOfString(s string) (bucket, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if _, ok := c.yesNo[strings.ToLower(s)]; ok {
		return bucketYesNo, true
	}
	for _, re := range datePatterns {
		if re.MatchString(s) {
			return bucketDate, true
		}
	}
	if numberPattern.MatchString(strings.ReplaceAll(s, " ", "")) {
		return bucketNumber, true
	}
	if utf8.RuneCountInString(s) > longTextLength {
		return bucketLongText, true
	}
	return bucketShortText, true
}

// ByHeader classifies a column from its header alone.
func (c *Classifier) ByHeader(header string) Type {
	name := strings.ToLower(strings.TrimSpace(header))
	h := c.kw.Header

	switch {
	case containsExact(name, h.RowNumber):
		return typeNumber
	case containsAny(name, h.Date):
		return typeDate
	case containsAny(name, h.Number):
		return typeNumber
	case containsAny(name, h.LongText):
		return typeLongText
	case containsAny(name, h.YesNo):
		return typeYesNo
	case containsAny(name, h.TextOnly):
		return typeTextOnly
	}
	return typeAny
}

// Required reports whether a header names a mandatory column.
func (c *Classifier) Required(header string) bool {
	return containsExact(strings.ToLower(strings.TrimSpace(header)), c.kw.Required)
}

// Classify classifies with the default keyword set.
func Classify(values []any, header string) Type { return defaultClassifier.Classify(values, header) }

// ByHeader classifies a header with the default keyword set.
func ByHeader(header string) Type { return defaultClassifier.ByHeader(header) }

// Required checks a header against the default keyword set.
func Required(header string) bool { return defaultClassifier.Required(header) }

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func containsExact(s string, words []string) bool {
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}
