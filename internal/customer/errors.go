package customer

import "fmt"

// FieldError is one rejected or missing field. It is a report, not a Go
// error: validation never fails as a whole.
type FieldError struct {
	Field   string
	Message string
	// Missing marks a required field that ended up absent.
	Missing bool
}

// Errors is the ordered validation error list.
type Errors []FieldError

func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// AddMissing records a required field that has no value.
func (e *Errors) AddMissing(field string) {
	*e = append(*e, FieldError{Field: field, Message: fmt.Sprintf("%s is required", field), Missing: true})
}

// Missing returns the required fields reported absent.
func (e Errors) Missing() []string {
	var out []string
	for _, fe := range e {
		if fe.Missing {
			out = append(out, fe.Field)
		}
	}
	return out
}

// Strings returns the messages in the order they were recorded.
func (e Errors) Strings() []string {
	out := make([]string, len(e))
	for i, fe := range e {
		out[i] = fe.Message
	}
	return out
}

// Has reports whether any error was recorded against field.
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}
