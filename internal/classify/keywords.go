package classify

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed keywords.toml
var defaultKeywords []byte

// Keywords is a versioned set of keyword lists driving classification.
type Keywords struct {
	Version  int            `toml:"version"`
	Required []string       `toml:"required"`
	Header   HeaderKeywords `toml:"header"`
	Data     DataKeywords   `toml:"data"`
}

// HeaderKeywords are matched against a header when a column has no data.
type HeaderKeywords struct {
	RowNumber []string `toml:"row_number"`
	Date      []string `toml:"date"`
	Number    []string `toml:"number"`
	LongText  []string `toml:"long_text"`
	YesNo     []string `toml:"yes_no"`
	TextOnly  []string `toml:"text_only"`
}

// DataKeywords are used while classifying actual column values.
type DataKeywords struct {
	YesNoValues []string `toml:"yes_no_values"`
	TextOnly    []string `toml:"text_only"`
}

// DefaultKeywords returns the keyword set compiled into the binary.
func DefaultKeywords() Keywords {
	kw, err := ParseKeywords(bytes.NewReader(defaultKeywords))
	if err != nil {
		panic(fmt.Sprintf("classify: embedded keywords: %v", err))
	}
	return kw
}

// ParseKeywords decodes a TOML keyword set. Unknown keys are rejected so a
// typo in a list name does not silently disable a rule.
func ParseKeywords(r io.Reader) (Keywords, error) {
	var kw Keywords
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&kw); err != nil {
		return Keywords{}, fmt.Errorf("decode keywords: %w", err)
	}
	if err := kw.Validate(); err != nil {
		return Keywords{}, err
	}
	kw.normalize()
	return kw, nil
}

// LoadKeywordsFile reads a keyword set from path.
func LoadKeywordsFile(path string) (Keywords, error) {
	f, err := os.Open(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()
	return ParseKeywords(f)
}

// Validate checks that the lists needed by every rule are present.
func (k Keywords) Validate() error {
	var errs []error
	if k.Version < 1 {
		errs = append(errs, errors.New("version must be >= 1"))
	}
	required := map[string][]string{
		"header.row_number":  k.Header.RowNumber,
		"header.date":        k.Header.Date,
		"header.number":      k.Header.Number,
		"header.long_text":   k.Header.LongText,
		"header.yes_no":      k.Header.YesNo,
		"header.text_only":   k.Header.TextOnly,
		"data.yes_no_values": k.Data.YesNoValues,
		"data.text_only":     k.Data.TextOnly,
	}
	for name, list := range required {
		if len(list) == 0 {
			errs = append(errs, fmt.Errorf("%s is empty", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid keywords: %w", errors.Join(errs...))
	}
	return nil
}

// normalize lowercases every entry; headers are lowercased before matching.
func (k *Keywords) normalize() {
	for _, list := range []*[]string{
		&k.Required,
		&k.Header.RowNumber, &k.Header.Date, &k.Header.Number,
		&k.Header.LongText, &k.Header.YesNo, &k.Header.TextOnly,
		&k.Data.YesNoValues, &k.Data.TextOnly,
	} {
		for i, s := range *list {
			(*list)[i] = strings.ToLower(s)
		}
	}
}
