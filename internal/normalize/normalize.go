// Package normalize turns raw partner-supplied strings into the canonical
// values the ILS accepts.
//
// Every normalizer returns the empty string to mean "reject, leave the field
// out". None of them panic or return errors for malformed input; callers
// record the rejection and carry on.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/asaskevich/govalidator"
	"golang.org/x/text/unicode/norm"

	pstrings "ilsgate/pkg/platform/strings"
)

var (
	emailRe  = regexp.MustCompile(`^[A-Za-z0-9._%+'\-]+@(?:[A-Za-z0-9\-]+\.)+[A-Za-z]{2,}$`)
	phoneRe  = regexp.MustCompile(`^[0-9\-]{3,16}$`)
	postalRe = regexp.MustCompile(`^[A-Za-z][0-9][A-Za-z][0-9][A-Za-z][0-9]$`)
	streetRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}\s.,#'/&]*[\p{L}\p{N}.]`)
	letterRe = regexp.MustCompile(`\p{L}`)

	phoneStripper  = strings.NewReplacer("+", "", "(", "", ")", "", ".", "", "/", "")
	postalStripper = strings.NewReplacer("-", "", " ", "", "\t", "")
)

// Email accepts local@domain.tld shapes. Case is preserved.
func Email(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.Count(s, "@") != 1 {
		return ""
	}
	if !govalidator.IsEmail(s) || !emailRe.MatchString(s) {
		return ""
	}
	return s
}

// Phone strips decoration, joins digit groups with hyphens and accepts
// 3 to 16 digits/hyphens.
func Phone(raw string) string {
	s := pstrings.CollapseSpace(phoneStripper.Replace(raw), "-")
	if !phoneRe.MatchString(s) {
		return ""
	}
	return s
}

// PostalCode accepts Canadian A1A1A1 codes in any case and spacing and
// returns them upper-cased without separators.
func PostalCode(raw string) string {
	s := postalStripper.Replace(strings.TrimSpace(raw))
	if !postalRe.MatchString(s) {
		return ""
	}
	return strings.ToUpper(s)
}

// Street lower-cases, turns hyphens into spaces, keeps the first
// alphanumeric-led run and capitalizes it.
func Street(raw string) string {
	s := strings.ToLower(strings.ReplaceAll(norm.NFC.String(raw), "-", " "))
	m := streetRe.FindString(s)
	if m == "" {
		return ""
	}
	return Capitalize(m)
}

// Capitalize upper-cases the first letter of each word and lower-cases the
// rest. Hyphenated groups stay hyphenated; whitespace collapses to one space.
// Capitalize(Capitalize(s)) == Capitalize(s).
func Capitalize(raw string) string {
	groups := strings.Split(norm.NFC.String(raw), "-")
	for i, g := range groups {
		words := strings.Fields(g)
		for j, w := range words {
			words[j] = capitalizeWord(w)
		}
		groups[i] = strings.Join(words, " ")
	}
	return strings.Join(groups, "-")
}

func capitalizeWord(w string) string {
	runes := []rune(strings.ToLower(w))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Name capitalizes a single first or last name. Values without a letter
// are rejected.
func Name(raw string) string {
	s := Capitalize(raw)
	if !letterRe.MatchString(s) {
		return ""
	}
	return s
}

// SplitName splits a full name into first and last. "Last, First" is
// honoured when a comma is present; otherwise the first word is the first
// name and the remaining words are the last name.
func SplitName(full string) (first, last string) {
	if before, after, ok := strings.Cut(full, ","); ok {
		return Name(after), Name(before)
	}
	words := strings.Fields(full)
	switch len(words) {
	case 0:
		return "", ""
	case 1:
		return Name(words[0]), ""
	}
	return Name(words[0]), Name(strings.Join(words[1:], " "))
}

// Text trims and collapses whitespace for free-form fields such as city.
func Text(raw string) string {
	return pstrings.CollapseSpace(norm.NFC.String(raw), " ")
}
