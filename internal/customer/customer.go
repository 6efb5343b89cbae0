// Package customer turns a partner's raw registration into a normalized
// customer record plus the list of field problems found along the way.
package customer

import (
	"slices"
	"time"

	"ilsgate/internal/fields"
)

// Field is one normalized value. Calendar dates carry Date; everything else,
// including the expiry literal "NEVER", carries Value.
type Field struct {
	Name  string
	Value string
	Date  time.Time
}

// IsDate reports whether the field holds a calendar date.
func (f Field) IsDate() bool {
	return !f.Date.IsZero()
}

// String renders the value, dates in ISO form.
func (f Field) String() string {
	if f.IsDate() {
		return f.Date.Format("2006-01-02")
	}
	return f.Value
}

// Customer is an ordered set of normalized fields. Canonical fields keep
// their canonical order; tags added later (for example by a note hook)
// follow in insertion order.
type Customer struct {
	fields []Field
}

func New() *Customer {
	return &Customer{}
}

// Set stores a text value. An empty value removes the field.
func (c *Customer) Set(name, value string) {
	if value == "" {
		c.Delete(name)
		return
	}
	c.put(Field{Name: name, Value: value})
}

// SetDate stores a calendar date. A zero date removes the field.
func (c *Customer) SetDate(name string, d time.Time) {
	if d.IsZero() {
		c.Delete(name)
		return
	}
	c.put(Field{Name: name, Date: d})
}

func (c *Customer) put(f Field) {
	if i := c.indexOf(f.Name); i >= 0 {
		c.fields[i] = f
		return
	}
	rank := fields.Rank(f.Name)
	at := len(c.fields)
	for i, existing := range c.fields {
		if fields.Rank(existing.Name) > rank {
			at = i
			break
		}
	}
	c.fields = slices.Insert(c.fields, at, f)
}

func (c *Customer) indexOf(name string) int {
	if c == nil {
		return -1
	}
	return slices.IndexFunc(c.fields, func(f Field) bool { return f.Name == name })
}

// Get returns the named field.
func (c *Customer) Get(name string) (Field, bool) {
	i := c.indexOf(name)
	if i < 0 {
		return Field{}, false
	}
	return c.fields[i], true
}

// Value returns the named field as text, or "" when absent.
func (c *Customer) Value(name string) string {
	f, _ := c.Get(name)
	return f.String()
}

// Has reports whether the field is present.
func (c *Customer) Has(name string) bool {
	return c.indexOf(name) >= 0
}

func (c *Customer) Delete(name string) {
	if i := c.indexOf(name); i >= 0 {
		c.fields = slices.Delete(c.fields, i, i+1)
	}
}

// Fields returns the fields in record order. The slice is a copy.
func (c *Customer) Fields() []Field {
	if c == nil {
		return nil
	}
	return slices.Clone(c.fields)
}

func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	return &Customer{fields: slices.Clone(c.fields)}
}

func (c *Customer) Len() int {
	if c == nil {
		return 0
	}
	return len(c.fields)
}

// IsEmpty is true for a nil customer too.
func (c *Customer) IsEmpty() bool {
	return c.Len() == 0
}
