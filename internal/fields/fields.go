// Package fields names the canonical customer fields partners submit.
package fields

import "strings"

const (
	FirstName  = "firstName"
	LastName   = "lastName"
	DOB        = "dob"
	Gender     = "gender"
	Email      = "email"
	Phone      = "phone"
	Street     = "street"
	City       = "city"
	Province   = "province"
	Country    = "country"
	PostalCode = "postalCode"
	Barcode    = "barcode"
	PIN        = "pin"
	Type       = "type"
	Expiry     = "expiry"
	Branch     = "branch"
	Status     = "status"
	Notes      = "notes"
)

// All lists the canonical fields in record order.
var All = []string{
	FirstName, LastName, DOB, Gender, Email, Phone, Street, City, Province,
	Country, PostalCode, Barcode, PIN, Type, Expiry, Branch, Status, Notes,
}

// DefaultRequired are the fields a registration cannot be loaded without.
var DefaultRequired = []string{FirstName, LastName, Barcode, PIN}

var canonical = func() map[string]struct{} {
	m := make(map[string]struct{}, len(All))
	for _, f := range All {
		m[f] = struct{}{}
	}
	return m
}()

var folded = func() map[string]string {
	m := make(map[string]string, len(All))
	for _, f := range All {
		m[strings.ToLower(f)] = f
	}
	return m
}()

// Canonical returns the canonical spelling of name, ignoring case and
// surrounding whitespace.
func Canonical(name string) (string, bool) {
	f, ok := folded[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Rank orders fields for the record: canonical fields in All order, then
// everything else.
func Rank(name string) int {
	for i, f := range All {
		if f == name {
			return i
		}
	}
	return len(All)
}

// IsCanonical reports whether name is one of All.
func IsCanonical(name string) bool {
	_, ok := canonical[name]
	return ok
}

// IsDate reports whether the field carries a calendar date.
func IsDate(name string) bool {
	return name == DOB || name == Expiry
}
