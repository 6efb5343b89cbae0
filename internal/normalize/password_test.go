package normalize

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashCode(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{input: "", expected: 0},
		{input: "HelloWorld", expected: 439329280},
		{input: "IlikeBread", expected: 1651039880},
		{input: "sunshine", expected: 1717911905},
		// hashes to math.MinInt32; the absolute value must not wrap.
		{input: "polygenelubricants", expected: 2147483648},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, HashCode(tt.input))
			assert.Equal(t, tt.expected, HashCode(tt.input), "must be stable across calls")
		})
	}
}

func TestFourDigitPIN(t *testing.T) {
	assert.Equal(t, "9280", FourDigitPIN("HelloWorld"))
	assert.Equal(t, "9880", FourDigitPIN("IlikeBread"))
	assert.Equal(t, "3648", FourDigitPIN("polygenelubricants"))
	// not zero-padded
	assert.Equal(t, "72", FourDigitPIN("letmein"))
	assert.Equal(t, "617", FourDigitPIN("Bread1"))
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		rules    PasswordRules
		expected string
	}{
		{name: "default rules accept alnum", input: "IlikeBread", expected: "IlikeBread"},
		{name: "default rules accept safe punctuation", input: "pass_word-1!@+|", expected: "pass_word-1!@+|"},
		{name: "trimmed", input: "  IlikeBread ", expected: "IlikeBread"},
		{name: "too short", input: "abc", expected: ""},
		{name: "minimum length", input: "abcd", expected: "abcd"},
		{name: "too long", input: strings.Repeat("a", 126), expected: ""},
		{name: "maximum length", input: strings.Repeat("a", 125), expected: strings.Repeat("a", 125)},
		{name: "semicolon", input: "bread;drop", expected: ""},
		{name: "ampersand", input: "bread&butter", expected: ""},
		{name: "quote", input: `say"hi"`, expected: ""},
		{name: "period", input: "bread.loaf", expected: ""},
		{name: "inner space", input: "i like bread", expected: ""},
		{name: "empty", input: "", expected: ""},
		{
			name:     "caller bounds",
			input:    "123456",
			rules:    PasswordRules{Minimum: 4, Maximum: 4},
			expected: "",
		},
		{
			name:     "custom pattern",
			input:    "1234",
			rules:    PasswordRules{Pattern: regexp.MustCompile(`^[0-9]{4}$`)},
			expected: "1234",
		},
		{
			name:     "custom pattern rejects",
			input:    "abcd",
			rules:    PasswordRules{Pattern: regexp.MustCompile(`^[0-9]{4}$`)},
			expected: "",
		},
		{
			name:     "password to pin",
			input:    "HelloWorld",
			rules:    PasswordRules{PasswordToPIN: true},
			expected: "9280",
		},
		{
			name:     "invalid password never becomes a pin",
			input:    "Hello;World",
			rules:    PasswordRules{PasswordToPIN: true},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Password(tt.input, tt.rules))
		})
	}
}
