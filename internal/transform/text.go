package transform

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/autods/internal/frame"
)

// Text cleaning methods.
const (
	TextStrip             = "strip"
	TextLower             = "lower"
	TextUpper             = "upper"
	TextTitle             = "title"
	TextCapitalize        = "capitalize"
	TextCollapseSpaces    = "collapse_spaces"
	TextRemoveDigits      = "remove_digits"
	TextKeepDigits        = "keep_digits"
	TextRemovePunctuation = "remove_punctuation"
	TextRemoveNonASCII    = "remove_non_ascii"
	TextReplace           = "replace"
)

var (
	spacesRe   = regexp.MustCompile(`\s+`)
	digitsRe   = regexp.MustCompile(`\d+`)
	nonDigitRe = regexp.MustCompile(`\D+`)
)

// asciiPunct is the ASCII punctuation set.
const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var textMethods = []string{
	TextStrip, TextLower, TextUpper, TextTitle, TextCapitalize, TextCollapseSpaces,
	TextRemoveDigits, TextKeepDigits, TextRemovePunctuation, TextRemoveNonASCII, TextReplace,
}

// cleanText rewrites every non-null value of one string column.
func cleanText(f *frame.Frame, p Params) (Result, error) {
	c, err := p.column(f)
	if err != nil {
		return Result{}, err
	}
	if c.Kind() != frame.KindString {
		return Result{}, fmt.Errorf("column %q is %s, text cleaning needs a string column", c.Name(), c.Kind())
	}
	method, err := p.str("method")
	if err != nil {
		return Result{}, err
	}
	if err := oneOf("method", method, textMethods...); err != nil {
		return Result{}, err
	}

	var fn func(string) string
	switch method {
	case TextStrip:
		fn = strings.TrimSpace
	case TextLower:
		fn = strings.ToLower
	case TextUpper:
		fn = strings.ToUpper
	case TextTitle:
		fn = titleCase
	case TextCapitalize:
		fn = capitalize
	case TextCollapseSpaces:
		fn = func(s string) string { return spacesRe.ReplaceAllString(s, " ") }
	case TextRemoveDigits:
		fn = func(s string) string { return digitsRe.ReplaceAllString(s, "") }
	case TextKeepDigits:
		fn = func(s string) string { return nonDigitRe.ReplaceAllString(s, "") }
	case TextRemovePunctuation:
		fn = func(s string) string {
			return strings.Map(func(r rune) rune {
				if strings.ContainsRune(asciiPunct, r) {
					return -1
				}
				return r
			}, s)
		}
	case TextRemoveNonASCII:
		fn = func(s string) string {
			return strings.Map(func(r rune) rune {
				if r > unicode.MaxASCII {
					return -1
				}
				return r
			}, s)
		}
	case TextReplace:
		old, err := p.optStr("old", "")
		if err != nil {
			return Result{}, err
		}
		if old == "" {
			return Result{}, errors.New(`parameter "old" is required for method replace`)
		}
		repl, err := p.optStr("new", "")
		if err != nil {
			return Result{}, err
		}
		fn = func(s string) string { return strings.ReplaceAll(s, old, repl) }
	}

	values := c.Values()
	changed := 0
	for i, v := range values {
		if v == nil {
			continue
		}
		s := v.(string)
		if out := fn(s); out != s {
			values[i] = out
			changed++
		}
	}
	nc, err := frame.NewColumn(c.Name(), frame.KindString, values)
	if err != nil {
		return Result{}, err
	}
	out, err := f.Replace(nc)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Frame:       out,
		Description: fmt.Sprintf("Cleaned text in '%s' using %s (%d values changed)", c.Name(), method, changed),
	}, nil
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

// capitalize upper-cases the first character and lower-cases the rest.
func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}
