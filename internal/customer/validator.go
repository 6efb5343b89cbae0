package customer

import (
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ilsgate/internal/fields"
	"ilsgate/internal/normalize"
	"ilsgate/internal/policy"
)

// Validator builds normalized customers from raw registrations. It holds
// no per-conversion state and is safe for concurrent use.
type Validator struct {
	logger   *slog.Logger
	now      func() time.Time
	barcodes *normalize.Barcodes
}

type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithClock sets the source of "today" for age and expiry rules.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func NewValidator(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	v.barcodes = normalize.NewBarcodes(normalize.DefaultBarcodeMinimum, v.logger)
	return v
}

// Resolver returns a policy resolver sharing the validator's clock and logger.
func (v *Validator) Resolver(effective policy.Policy) *policy.Resolver {
	return policy.NewResolver(effective,
		policy.WithClock(v.now),
		policy.WithLogger(v.logger),
		policy.WithBarcodes(v.barcodes),
	)
}

// Validate normalizes every field, applies policy defaults and checks the
// required fields. It never fails: problems are returned in Errors and the
// affected fields are left out of the customer.
func (v *Validator) Validate(raw Raw, effective policy.Policy) (*Customer, Errors) {
	r := v.Resolver(effective)
	c, errs := v.Normalize(raw, r)
	errs = v.ApplyDefaults(c, r, errs)
	return c, errs
}

// Normalize runs each supplied value through its normalizer. Unknown field
// names are logged and ignored. A lone name field holding a full name is
// split into first and last name.
func (v *Validator) Normalize(raw Raw, r *policy.Resolver) (*Customer, Errors) {
	values := v.canonicalize(raw)
	c := New()
	var errs Errors

	if strings.TrimSpace(values[fields.LastName]) == "" {
		if full := values[fields.FirstName]; strings.Contains(full, ",") || len(strings.Fields(full)) > 1 {
			values[fields.FirstName], values[fields.LastName] = normalize.SplitName(full)
		}
	}

	for _, field := range fields.All {
		res := r.Normalize(field, values[field])
		if res.Problem != "" {
			errs.Add(field, res.Problem)
		}
		set(c, field, res)
	}
	return c, errs
}

// ApplyDefaults fills every absent field from policy and records an error
// for each required field still missing.
func (v *Validator) ApplyDefaults(c *Customer, r *policy.Resolver, errs Errors) Errors {
	for _, field := range fields.All {
		if c.Has(field) {
			continue
		}
		set(c, field, r.Fallback(field))
	}

	required := r.Policy().Required
	if len(required) == 0 {
		required = fields.DefaultRequired
	}
	for _, field := range required {
		if !c.Has(field) {
			errs.AddMissing(field)
		}
	}
	return errs
}

func set(c *Customer, field string, res policy.Result) {
	switch {
	case !res.Date.IsZero():
		c.SetDate(field, res.Date)
	case res.Value != "":
		c.Set(field, res.Value)
	}
}

// canonicalize maps raw keys onto canonical field names. An exact key wins
// over a differently cased one.
func (v *Validator) canonicalize(raw Raw) map[string]string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(fields.All))
	for _, k := range keys {
		name, ok := fields.Canonical(k)
		if !ok {
			v.logger.Warn("ignoring unrecognized customer field", "field", k)
			continue
		}
		if _, seen := out[name]; seen && k != name {
			continue
		}
		out[name] = raw[k]
	}
	return out
}
