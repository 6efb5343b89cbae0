package flat

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"ilsgate/internal/customer"
	"ilsgate/internal/fields"
	"ilsgate/pkg/ansidate"
)

const (
	DocumentBoundary = "*** DOCUMENT BOUNDARY ***"
	FormHeader       = "FORM=LDUSER"
)

// ErrEmptyCustomer is the structural error for a missing or empty record.
const ErrEmptyCustomer = "customer record is empty"

// Defaults are the tag defaults layered under the customer's own values.
// Library defaults are trusted as given; partner overrides only apply to
// recognized tags.
type Defaults struct {
	Library map[string]string
	Partner map[string]string
}

// Record is one rendered flat document plus the problems met while
// rendering it.
type Record struct {
	lines  []string
	errors []string
}

// Lines returns the document lines. The slice is a copy.
func (r *Record) Lines() []string {
	return append([]string(nil), r.lines...)
}

func (r *Record) Errors() []string {
	return append([]string(nil), r.errors...)
}

// OK is true when the record has lines to write.
func (r *Record) OK() bool {
	return len(r.lines) > 0
}

func (r *Record) String() string {
	return strings.Join(r.lines, "\n")
}

// Serializer converts customers to flat records. Each call owns its own
// buffers, so one Serializer may be shared across goroutines.
type Serializer struct {
	logger *slog.Logger
}

type SerializerOption func(*Serializer)

func WithLogger(logger *slog.Logger) SerializerOption {
	return func(s *Serializer) {
		s.logger = logger
	}
}

func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// ToFlat renders c. Customer fields are emitted in record order, then
// defaults in sorted tag order, then the dates in ANSI form. Block tags are
// gathered and emitted after the inline lines, one BEGIN/END pair per
// non-empty block. Every tag appears once: a later customer field for the
// same tag replaces the earlier value in place, defaults only fill tags the
// record leaves empty, and a customer date beats a default for its tag.
func (s *Serializer) ToFlat(c *customer.Customer, defaults Defaults) *Record {
	if c.IsEmpty() {
		return &Record{errors: []string{ErrEmptyCustomer}}
	}

	d := newDocument()
	var dates []customer.Field
	dateRoutes := make(map[string]struct{})
	cityDone := false

	for _, f := range c.Fields() {
		switch {
		case fields.IsDate(f.Name):
			dates = append(dates, f)
			tag, _ := TagFor(f.Name)
			dateRoutes[Route{Tag: tag}.Key()] = struct{}{}
		case f.Name == fields.City || f.Name == fields.Province:
			if !cityDone {
				d.put(Route{Block: BlockAddr1, Tag: cityState}, composeCityState(c))
				cityDone = true
			}
		default:
			route, ok := s.routeField(f.Name)
			if !ok {
				s.logger.Warn("dropping unknown customer tag", "tag", f.Name)
				d.errors = append(d.errors, fmt.Sprintf("unknown tag %q dropped", f.Name))
				continue
			}
			d.put(route, f.Value)
		}
	}

	for _, kv := range s.mergeDefaults(defaults) {
		if _, isDate := dateRoutes[kv.route.Key()]; isDate || d.has(kv.route) {
			continue
		}
		d.put(kv.route, kv.value)
	}

	for _, f := range dates {
		tag, _ := TagFor(f.Name)
		v := f.Value
		if f.IsDate() {
			v = ansidate.ToANSI(f.Date)
		}
		d.put(Route{Tag: tag}, v)
	}

	return d.render()
}

func (s *Serializer) routeField(name string) (Route, bool) {
	if tag, ok := TagFor(name); ok {
		return Resolve(tag)
	}
	return Resolve(name)
}

func composeCityState(c *customer.Customer) string {
	city, province := c.Value(fields.City), c.Value(fields.Province)
	switch {
	case city != "" && province != "":
		return city + ", " + province
	case city != "":
		return city
	}
	return province
}

type defaultValue struct {
	route Route
	value string
}

// mergeDefaults layers partner overrides over library defaults. Unknown
// library tags are kept inline; unknown partner tags are dropped.
func (s *Serializer) mergeDefaults(defaults Defaults) []defaultValue {
	merged := make(map[string]defaultValue)
	for key, value := range defaults.Library {
		route, ok := Resolve(key)
		if !ok {
			if strings.Contains(key, ".") {
				s.logger.Warn("dropping unrecognized default tag", "tag", key)
				continue
			}
			route = Route{Tag: strings.ToUpper(strings.TrimSpace(key))}
		}
		merged[route.Key()] = defaultValue{route: route, value: value}
	}
	for key, value := range defaults.Partner {
		route, ok := Resolve(key)
		if !ok {
			s.logger.Warn("dropping unrecognized override tag", "tag", key)
			continue
		}
		merged[route.Key()] = defaultValue{route: route, value: value}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]defaultValue, 0, len(keys))
	for _, k := range keys {
		if merged[k].value == "" {
			continue
		}
		out = append(out, merged[k])
	}
	return out
}

// document is the per-call buffer: the inline section and each block keep
// their tags in first-put order, one value per tag.
type document struct {
	inline *block
	blocks map[string]*block
	errors []string
}

type block struct {
	tags   []string
	values map[string]string
}

func newBlock() *block {
	return &block{values: make(map[string]string)}
}

func (b *block) set(tag, value string) {
	if _, exists := b.values[tag]; !exists {
		b.tags = append(b.tags, tag)
	}
	b.values[tag] = value
}

func (b *block) lines() []string {
	out := make([]string, 0, len(b.tags))
	for _, tag := range b.tags {
		out = append(out, line(tag, b.values[tag]))
	}
	return out
}

func newDocument() *document {
	return &document{
		inline: newBlock(),
		blocks: make(map[string]*block, len(blockOrder)),
	}
}

func (d *document) section(r Route) (*block, bool) {
	if r.Block == "" {
		return d.inline, true
	}
	b, ok := d.blocks[r.Block]
	return b, ok
}

func (d *document) has(r Route) bool {
	b, ok := d.section(r)
	if !ok {
		return false
	}
	_, set := b.values[r.Tag]
	return set
}

func (d *document) put(r Route, value string) {
	if value == "" {
		return
	}
	b, ok := d.section(r)
	if !ok {
		b = newBlock()
		d.blocks[r.Block] = b
	}
	b.set(r.Tag, value)
}

func (d *document) render() *Record {
	lines := make([]string, 0, len(d.inline.tags)+8)
	lines = append(lines, DocumentBoundary, FormHeader)
	lines = append(lines, d.inline.lines()...)
	for _, name := range blockOrder {
		b, ok := d.blocks[name]
		if !ok || len(b.tags) == 0 {
			continue
		}
		lines = append(lines, "."+name+"_BEGIN.")
		lines = append(lines, b.lines()...)
		lines = append(lines, "."+name+"_END.")
	}
	return &Record{lines: lines, errors: d.errors}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func line(tag, value string) string {
	return fmt.Sprintf(".%s.   |a%s", tag, lineBreaks.Replace(value))
}
