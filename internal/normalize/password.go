package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	DefaultPasswordMinimum = 4
	DefaultPasswordMaximum = 125
)

// Characters the OPAC login accepts. Everything else, notably
// ; & " / \ ` % ? ' : $ ^ # * ( ) = { } [ ] < > . , ~ and whitespace,
// breaks the downstream login form.
var opacSafeRe = regexp.MustCompile(`^[A-Za-z0-9!@_+|\-]+$`)

// PasswordRules bounds an acceptable password. Zero bounds take the
// defaults; a nil Pattern means the OPAC-safe character set.
type PasswordRules struct {
	Minimum       int
	Maximum       int
	Pattern       *regexp.Regexp
	PasswordToPIN bool
}

// Password validates raw against rules and returns the value to store: the
// password itself, or its 4-digit PIN when PasswordToPIN is set.
func Password(raw string, rules PasswordRules) string {
	s := strings.TrimSpace(raw)
	lo, hi := rules.Minimum, rules.Maximum
	if lo <= 0 {
		lo = DefaultPasswordMinimum
	}
	if hi <= 0 {
		hi = DefaultPasswordMaximum
	}
	n := utf8.RuneCountInString(s)
	if n < lo || n > hi {
		return ""
	}
	pattern := rules.Pattern
	if pattern == nil {
		pattern = opacSafeRe
	}
	if !pattern.MatchString(s) {
		return ""
	}
	if rules.PasswordToPIN {
		return FourDigitPIN(s)
	}
	return s
}

// HashCode is the 31-multiplier string hash over UTF-16 code units with
// 32-bit signed wraparound, returned as an absolute value. PINs issued
// from passwords depend on it staying bit-exact.
func HashCode(s string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// FourDigitPIN reduces HashCode(s) modulo 10000. The result is not
// zero-padded: "letmein" yields "72".
func FourDigitPIN(s string) string {
	return strconv.FormatInt(HashCode(s)%10000, 10)
}
