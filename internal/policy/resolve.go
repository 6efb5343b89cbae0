package policy

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"ilsgate/internal/fields"
	"ilsgate/internal/normalize"
	"ilsgate/pkg/ansidate"
	pstrings "ilsgate/pkg/platform/strings"
)

// Result is one resolved field. Dates carry Date; everything else, including
// the literal expiry "NEVER", carries Value. Problem is set when a supplied
// customer value was rejected or could not be mapped.
type Result struct {
	Value   string
	Date    time.Time
	Problem string
}

// Present reports whether the field resolved to something.
func (r Result) Present() bool {
	return r.Value != "" || !r.Date.IsZero()
}

// String renders the result as text: "NEVER", an ISO date, or the value.
func (r Result) String() string {
	if !r.Date.IsZero() {
		return r.Date.Format("2006-01-02")
	}
	return r.Value
}

// LookupOutcome distinguishes "no map configured" from "map has no entry".
type LookupOutcome int

const (
	LookupNoMap LookupOutcome = iota
	LookupMapped
	LookupUnmapped
)

// Resolver applies one effective policy to customer values.
// It is safe for concurrent use.
type Resolver struct {
	policy     Policy
	barcodes   *normalize.Barcodes
	barcodeRe  *regexp.Regexp
	passwordRe *regexp.Regexp
	now        func() time.Time
	logger     *slog.Logger
}

type ResolverOption func(*Resolver)

func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithClock sets the source of "today".
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

func WithBarcodes(b *normalize.Barcodes) ResolverOption {
	return func(r *Resolver) {
		r.barcodes = b
	}
}

// NewResolver constructs a Resolver over an effective (already merged) policy.
func NewResolver(effective Policy, opts ...ResolverOption) *Resolver {
	r := &Resolver{policy: effective, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.barcodes == nil {
		r.barcodes = normalize.NewBarcodes(normalize.DefaultBarcodeMinimum, r.logger)
	}
	r.barcodeRe = r.compile("barcodes.regex", effective.Barcodes.Regex)
	r.passwordRe = r.compile("passwords.regex", effective.Passwords.Regex)
	return r
}

func (r *Resolver) compile(key, expr string) *regexp.Regexp {
	if expr == "" {
		return nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		r.logger.Warn("ignoring invalid policy regex", "key", key, "error", err)
		return nil
	}
	return re
}

// Policy returns the effective policy.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// ResolveField merges partner over library and resolves one field.
func ResolveField(field, raw string, partner, library Policy, opts ...ResolverOption) (Result, error) {
	effective, err := Merge(library, partner)
	if err != nil {
		return Result{}, err
	}
	return NewResolver(effective, opts...).Resolve(field, raw), nil
}

// Resolve applies the full precedence chain to one field.
func (r *Resolver) Resolve(field, raw string) Result {
	res := r.Normalize(field, raw)
	if res.Present() {
		return res
	}
	fb := r.Fallback(field)
	fb.Problem = res.Problem
	return fb
}

// Normalize validates a customer-supplied value. An empty Result with no
// Problem means the customer gave nothing usable and nothing wrong, as with
// a branch outside the allow-list or a past expiry that a default replaces.
func (r *Resolver) Normalize(field, raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}
	}

	var v string
	switch field {
	case fields.FirstName, fields.LastName:
		v = normalize.Name(raw)
	case fields.Email:
		v = normalize.Email(raw)
	case fields.Phone:
		v = normalize.Phone(raw)
	case fields.PostalCode:
		v = normalize.PostalCode(raw)
	case fields.Street:
		v = normalize.Street(raw)
	case fields.City, fields.Province, fields.Country, fields.Notes:
		v = normalize.Text(raw)
	case fields.Barcode:
		v = r.Barcode(raw)
	case fields.PIN:
		v = r.Password(raw)
	case fields.Branch:
		return Result{Value: r.preferredBranch(raw)}
	case fields.Gender, fields.Status, fields.Type:
		mapped, outcome := r.Lookup(field, raw)
		if outcome == LookupUnmapped {
			return Result{Problem: fmt.Sprintf("no %s mapping for %q", field, raw)}
		}
		return Result{Value: mapped}
	case fields.DOB:
		dob, ok := r.DateOfBirth(raw)
		if !ok {
			return Result{Problem: "invalid or out of range date of birth"}
		}
		return Result{Date: dob}
	case fields.Expiry:
		return r.customerExpiry(raw)
	default:
		v = normalize.Text(raw)
	}

	if v == "" {
		return Result{Problem: rejection(field, raw)}
	}
	return Result{Value: v}
}

func rejection(field, raw string) string {
	if field == fields.PIN {
		return "invalid pin"
	}
	return fmt.Sprintf("invalid %s %q", field, raw)
}

// Fallback returns the policy-derived value for a field the customer did
// not supply, or whose value was rejected. Date defaults come back as
// dates; one that does not parse is dropped.
func (r *Resolver) Fallback(field string) Result {
	switch field {
	case fields.Expiry:
		if res := r.defaultExpiry(ansidate.Midnight(r.now())); res.Present() {
			return res
		}
		return r.dateDefault(field)
	case fields.DOB:
		return r.dateDefault(field)
	case fields.Branch:
		return Result{Value: r.defaultBranch()}
	}
	return Result{Value: r.Default(field)}
}

func (r *Resolver) dateDefault(field string) Result {
	raw := r.Default(field)
	if raw == "" {
		return Result{}
	}
	if field == fields.Expiry && strings.EqualFold(raw, Never) {
		return Result{Value: Never}
	}
	d, err := ansidate.Parse(raw, r.now().Location())
	if err != nil {
		r.logger.Warn("ignoring unparseable date default", "field", field, "value", raw)
		return Result{}
	}
	return Result{Date: d}
}

// Default returns the configured default for field.
func (r *Resolver) Default(field string) string {
	return r.policy.Defaults[field]
}

// Lookup translates raw through the field's map. Keys are matched exactly
// first, then case-insensitively in sorted key order.
func (r *Resolver) Lookup(field, raw string) (string, LookupOutcome) {
	m := r.mapFor(field)
	if len(m) == 0 {
		return raw, LookupNoMap
	}
	if v, ok := m[raw]; ok {
		return v, LookupMapped
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, raw) {
			return m[k], LookupMapped
		}
	}
	return "", LookupUnmapped
}

func (r *Resolver) mapFor(field string) map[string]string {
	if field == fields.Type && len(r.policy.TypeProfiles) > 0 {
		return r.policy.TypeProfiles
	}
	return r.policy.Maps[field]
}

// Password validates a password under the password policy, converting it
// to a PIN when passwordToPin is set.
func (r *Resolver) Password(raw string) string {
	pp := r.policy.Passwords
	return normalize.Password(raw, normalize.PasswordRules{
		Minimum:       pp.Minimum,
		Maximum:       pp.Maximum,
		Pattern:       r.passwordRe,
		PasswordToPIN: pp.ToPIN(),
	})
}

// Barcode applies the barcode policy. Without one, the loose form is used.
// With a prefix, the prefix is prepended to the numeric body and the whole
// must fit the configured window. A body that already carries the prefix
// and fits is taken as is.
func (r *Resolver) Barcode(raw string) string {
	bp := r.policy.Barcodes
	if bp == (BarcodePolicy{}) {
		return r.barcodes.Loose(raw)
	}

	body := strings.TrimSpace(raw)
	if r.barcodeRe != nil {
		if !r.barcodeRe.MatchString(body) {
			return ""
		}
	} else if r.barcodes.Numeric(body, normalize.DefaultBarcodeMinimum, normalize.DefaultBarcodeMaximum) == "" {
		return ""
	}

	lo, hi := r.barcodes.Window(bp.Minimum, bp.Maximum)
	full := body
	if bp.Prefix != "" && !(strings.HasPrefix(body, bp.Prefix) && fits(body, lo, hi)) {
		full = bp.Prefix + body
	}
	if !fits(full, lo, hi) {
		return ""
	}
	return strings.ToUpper(full)
}

func fits(s string, lo, hi int) bool {
	return len(s) >= lo && len(s) <= hi
}

// Branch returns the customer's preferred branch when the allow-list
// contains it, otherwise the configured default.
func (r *Resolver) Branch(preferred string) string {
	if b := r.preferredBranch(preferred); b != "" {
		return b
	}
	return r.defaultBranch()
}

func (r *Resolver) preferredBranch(preferred string) string {
	p := strings.ToUpper(strings.TrimSpace(preferred))
	if p == "" {
		return ""
	}
	if slices.Contains(pstrings.DedupeAndTrimUpper(r.policy.Branch.Valid), p) {
		return p
	}
	return ""
}

func (r *Resolver) defaultBranch() string {
	if d := r.policy.Branch.Default; d != "" {
		return d
	}
	return r.Default(fields.Branch)
}

// DateOfBirth parses a birth date and checks the age bounds relative to
// today. Future dates are never accepted.
func (r *Resolver) DateOfBirth(raw string) (time.Time, bool) {
	now := r.now()
	dob, err := ansidate.Parse(raw, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	age := ansidate.Age(dob, now)
	if age < 0 {
		return time.Time{}, false
	}
	if mn := r.policy.Age.Minimum; mn > 0 && age < mn {
		return time.Time{}, false
	}
	if mx := r.policy.Age.Maximum; mx > 0 && age > mx {
		return time.Time{}, false
	}
	return dob, true
}

// Expiry resolves the privilege expiry: a current customer date wins, then
// the policy default ("NEVER", a literal date, or today plus N days). A past
// customer date is replaced by the default when one exists.
func (r *Resolver) Expiry(raw string) Result {
	return r.Resolve(fields.Expiry, raw)
}

func (r *Resolver) customerExpiry(raw string) Result {
	now := r.now()
	d, err := ansidate.Parse(raw, now.Location())
	if err != nil {
		return Result{Problem: fmt.Sprintf("invalid expiry %q", raw)}
	}
	today := ansidate.Midnight(now)
	if ansidate.Before(d, today) && r.Fallback(fields.Expiry).Present() {
		return Result{}
	}
	return Result{Date: d}
}

func (r *Resolver) defaultExpiry(today time.Time) Result {
	ep := r.policy.Expiry
	if ep.Date != "" {
		if strings.EqualFold(ep.Date, Never) {
			return Result{Value: Never}
		}
		d, err := ansidate.Parse(ep.Date, today.Location())
		if err == nil {
			return Result{Date: d}
		}
		r.logger.Warn("ignoring unparseable expiry.date", "value", ep.Date)
	}
	if ep.Days > 0 {
		return Result{Date: ansidate.DaysFrom(today, ep.Days)}
	}
	return Result{}
}
