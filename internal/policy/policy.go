// Package policy holds the library-wide and partner-specific registration
// rules, merges them, and resolves each customer field against the result.
//
// Precedence for any field, highest first:
//  1. a non-empty customer value that passes its normalizer
//  2. the partner default or map entry
//  3. the library default or map entry
//  4. nothing, which the validator reports if the field is required
package policy

// Policy is the recognized subset of a library or partner configuration.
// Zero values mean "not configured".
type Policy struct {
	// Defaults holds fallback values keyed by canonical field name.
	Defaults map[string]string `mapstructure:"defaults"`
	// Maps holds value translations keyed by canonical field name,
	// gathered from "<field>Map" keys (genderMap, statusMap, ...).
	Maps map[string]map[string]string `mapstructure:"maps"`
	// TypeProfiles maps customer types to ILS profiles.
	TypeProfiles map[string]string `mapstructure:"typeProfiles"`
	Barcodes     BarcodePolicy     `mapstructure:"barcodes"`
	Passwords    PasswordPolicy    `mapstructure:"passwords"`
	Age          AgePolicy         `mapstructure:"age"`
	Expiry       ExpiryPolicy      `mapstructure:"expiry"`
	Branch       BranchPolicy      `mapstructure:"branch"`
	Required     []string          `mapstructure:"required" validate:"dive,canonical"`
	// FlatDefaults are ILS tag values injected into every flat record.
	// Partner entries override library entries for recognized tags only.
	FlatDefaults map[string]string `mapstructure:"flatDefaults"`
	Notes        NotesPolicy       `mapstructure:"notes"`
}

type BarcodePolicy struct {
	Prefix  string `mapstructure:"prefix" validate:"omitempty,alphanum"`
	Minimum int    `mapstructure:"minimum" validate:"gte=0"`
	Maximum int    `mapstructure:"maximum" validate:"gte=0"`
	Regex   string `mapstructure:"regex" validate:"omitempty,regexp"`
}

// PasswordPolicy bounds accepted passwords. PasswordToPin is nil when the
// policy does not say, so an explicit partner false can override a library
// true.
type PasswordPolicy struct {
	Minimum       int    `mapstructure:"minimum" validate:"gte=0"`
	Maximum       int    `mapstructure:"maximum" validate:"gte=0"`
	PasswordToPin *bool  `mapstructure:"passwordToPin"`
	Regex         string `mapstructure:"regex" validate:"omitempty,regexp"`
}

// ToPIN reports whether accepted passwords are converted to PINs.
func (p PasswordPolicy) ToPIN() bool {
	return p.PasswordToPin != nil && *p.PasswordToPin
}

// AgePolicy bounds the customer's age in whole years. Non-positive bounds
// are not enforced.
type AgePolicy struct {
	Minimum int `mapstructure:"minimum"`
	Maximum int `mapstructure:"maximum"`
}

// ExpiryPolicy sets the default privilege expiry: either a literal Date
// ("NEVER" or a date string) or a number of Days from today.
type ExpiryPolicy struct {
	Date string `mapstructure:"date" validate:"excluded_with=Days"`
	Days int    `mapstructure:"days" validate:"gte=0"`
}

type BranchPolicy struct {
	Default string   `mapstructure:"default"`
	Valid   []string `mapstructure:"valid"`
}

// NotesPolicy selects and configures the note hook run before serialization.
type NotesPolicy struct {
	Hook       string            `mapstructure:"hook"`
	Tag        string            `mapstructure:"tag"`
	Prefix     string            `mapstructure:"prefix"`
	Categories map[string]string `mapstructure:"categories"`
}

// Never is the literal expiry the ILS treats as "does not expire".
const Never = "NEVER"

func (p Policy) clone() Policy {
	c := p
	c.Defaults = cloneMap(p.Defaults)
	c.TypeProfiles = cloneMap(p.TypeProfiles)
	c.FlatDefaults = cloneMap(p.FlatDefaults)
	c.Notes.Categories = cloneMap(p.Notes.Categories)
	if p.Maps != nil {
		c.Maps = make(map[string]map[string]string, len(p.Maps))
		for k, v := range p.Maps {
			c.Maps[k] = cloneMap(v)
		}
	}
	c.Required = append([]string(nil), p.Required...)
	c.Branch.Valid = append([]string(nil), p.Branch.Valid...)
	if p.Passwords.PasswordToPin != nil {
		v := *p.Passwords.PasswordToPin
		c.Passwords.PasswordToPin = &v
	}
	return c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
