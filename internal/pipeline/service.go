// Package pipeline converts partner registrations into ILS flat records:
// validate, apply defaults, run the partner's note hook, serialize.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"ilsgate/internal/customer"
	"ilsgate/internal/fields"
	"ilsgate/internal/flat"
	"ilsgate/internal/notes"
	"ilsgate/internal/platform/metrics"
	"ilsgate/internal/policy"
	dErrors "ilsgate/pkg/domain-errors"
	"ilsgate/pkg/platform/circuit"
)

// LibraryPartner labels conversions made under the library policy alone.
const LibraryPartner = "library"

// Result is the outcome of one conversion.
type Result struct {
	ID       string
	Partner  string
	Stage    Stage
	Customer *customer.Customer
	Errors   customer.Errors
	Record   *flat.Record
	// Warnings are non-fatal problems such as a failed note hook.
	Warnings []string
	// Err is set when the payload itself was unusable.
	Err error
	// Path is where the record was written, if it was written to a file.
	Path     string
	WriteErr error
}

// Outcome classifies the result for metrics and callers: rejected when the
// payload was unusable or a required field is missing, invalid when some
// fields were rejected, ok otherwise.
func (r *Result) Outcome() string {
	switch {
	case r.Err != nil || len(r.Errors.Missing()) > 0:
		return metrics.OutcomeRejected
	case len(r.Errors) > 0:
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeOK
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// FileName is the flat file name for the result: the barcode when there is
// one, the conversion id otherwise.
func (r *Result) FileName() string {
	name := unsafeFileChars.ReplaceAllString(r.Customer.Value(fields.Barcode), "_")
	if name == "" {
		name = r.ID
	}
	return name + ".flat"
}

// Service runs conversions against a policy catalog. It is safe for
// concurrent use.
type Service struct {
	catalog     *policy.Catalog
	validator   *customer.Validator
	hooks       *notes.Registry
	runner      *notes.Runner
	hookTimeout time.Duration
	breakerOpts []circuit.Option
	serializer  *flat.Serializer
	writer      *flat.Writer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	workers     int
	outputDir   string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithHooks sets the note hook registry. The built-in hooks are used when
// none is given.
func WithHooks(r *notes.Registry) Option {
	return func(s *Service) {
		s.hooks = r
	}
}

func WithHookTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.hookTimeout = d
	}
}

// WithHookBreaker sets when a failing note hook is skipped and for how long.
func WithHookBreaker(failures int, cooldown time.Duration) Option {
	return func(s *Service) {
		s.breakerOpts = []circuit.Option{circuit.WithFailureThreshold(failures), circuit.WithCooldown(cooldown)}
	}
}

// WithClock sets the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithWriter(w *flat.Writer) Option {
	return func(s *Service) {
		s.writer = w
	}
}

// WithWorkers bounds batch concurrency.
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.workers = n
	}
}

// WithOutputDir makes Write persist records under dir instead of sending
// them to the writer's sink.
func WithOutputDir(dir string) Option {
	return func(s *Service) {
		s.outputDir = dir
	}
}

func New(catalog *policy.Catalog, opts ...Option) (*Service, error) {
	if catalog == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy catalog is required")
	}
	s := &Service{
		catalog: catalog,
		now:     time.Now,
		workers: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.hooks == nil {
		s.hooks = notes.NewDefaultRegistry()
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.writer == nil {
		s.writer = flat.NewWriter(flat.WithWriterLogger(s.logger))
	}
	s.validator = customer.NewValidator(customer.WithLogger(s.logger), customer.WithClock(s.now))
	s.runner = notes.NewRunner(s.hooks,
		notes.WithLogger(s.logger),
		notes.WithTimeout(s.hookTimeout),
		notes.WithBreaker(append(s.breakerOpts, circuit.WithClock(s.now))...),
	)
	s.serializer = flat.NewSerializer(flat.WithLogger(s.logger))
	s.checkHookReferences()
	return s, nil
}

// checkHookReferences warns at startup about hooks no registry entry serves.
func (s *Service) checkHookReferences() {
	check := func(owner, name string) {
		if name == "" {
			return
		}
		if _, ok := s.hooks.Get(name); !ok {
			s.logger.Warn("policy names an unregistered note hook", "policy", owner, "hook", name)
		}
	}
	check(LibraryPartner, s.catalog.Library.Notes.Hook)
	for _, id := range s.catalog.PartnerIDs() {
		p, _ := s.catalog.Partner(id)
		check(id, p.Notes.Hook)
	}
}

// Convert runs one registration through the pipeline. The error is non-nil
// only for an unknown partner or a broken pipeline; data problems are
// reported on the Result.
func (s *Service) Convert(ctx context.Context, partnerID string, raw customer.Raw) (*Result, error) {
	effective, err := s.catalog.ForPartner(partnerID)
	if err != nil {
		return nil, err
	}
	return s.convert(ctx, partnerID, effective, raw)
}

// ConvertJSON parses a JSON object payload and converts it.
func (s *Service) ConvertJSON(ctx context.Context, partnerID string, data []byte) (*Result, error) {
	effective, err := s.catalog.ForPartner(partnerID)
	if err != nil {
		return nil, err
	}
	raw, err := customer.ParseRaw(data)
	if err != nil {
		return s.structural(partnerID, err), nil
	}
	return s.convert(ctx, partnerID, effective, raw)
}

// ConvertAndWrite converts and then writes the record. A write failure is
// returned alongside the still usable result.
func (s *Service) ConvertAndWrite(ctx context.Context, partnerID string, raw customer.Raw) (*Result, error) {
	res, err := s.Convert(ctx, partnerID, raw)
	if err != nil {
		return nil, err
	}
	return res, s.Write(res)
}

func (s *Service) convert(ctx context.Context, partnerID string, effective policy.Policy, raw customer.Raw) (*Result, error) {
	if raw == nil {
		return s.structural(partnerID, dErrors.New(dErrors.CodeInvalidInput, "customer payload is missing")), nil
	}

	res := &Result{ID: uuid.NewString(), Partner: partnerLabel(partnerID)}
	logger := s.logger.With("conversion_id", res.ID, "partner", res.Partner)

	r := s.validator.Resolver(effective)
	c, errs := s.validator.Normalize(raw, r)
	if err := advance(&res.Stage, StageFieldsNormalized); err != nil {
		return nil, err
	}

	errs = s.validator.ApplyDefaults(c, r, errs)
	if err := advance(&res.Stage, StageDefaultsApplied); err != nil {
		return nil, err
	}

	c, err := s.runner.Run(ctx, c, effective)
	if err != nil {
		hook := strings.ToLower(effective.Notes.Hook)
		logger.Warn("note hook failed, notes unchanged", "hook", hook, "error", err)
		s.metrics.IncrementHookFailure(hook)
		res.Warnings = append(res.Warnings, err.Error())
	}
	if msg, ok := notes.ExtractError(c, fields.Notes); ok {
		errs.Add(fields.Notes, msg)
	}
	if err := advance(&res.Stage, StageNoteHookApplied); err != nil {
		return nil, err
	}

	res.Customer, res.Errors = c, errs
	res.Record = s.serializer.ToFlat(c, s.flatDefaults(partnerID))
	res.Warnings = append(res.Warnings, res.Record.Errors()...)
	if err := advance(&res.Stage, StageDone); err != nil {
		return nil, err
	}

	s.finish(res, logger)
	return res, nil
}

// structural builds the result for a payload that could not be used at all.
func (s *Service) structural(partnerID string, err error) *Result {
	res := &Result{
		ID:      uuid.NewString(),
		Partner: partnerLabel(partnerID),
		Err:     err,
		Record:  s.serializer.ToFlat(nil, flat.Defaults{}),
	}
	s.finish(res, s.logger.With("conversion_id", res.ID, "partner", res.Partner))
	return res
}

func (s *Service) flatDefaults(partnerID string) flat.Defaults {
	d := flat.Defaults{Library: s.catalog.Library.FlatDefaults}
	if p, ok := s.catalog.Partner(partnerID); ok {
		d.Partner = p.FlatDefaults
	}
	return d
}

func (s *Service) finish(res *Result, logger *slog.Logger) {
	outcome := res.Outcome()
	s.metrics.IncrementConversion(res.Partner, outcome)
	for _, fe := range res.Errors {
		s.metrics.IncrementFieldRejection(fe.Field)
	}

	switch {
	case res.Err != nil:
		logger.Warn("customer payload rejected", "error", res.Err)
	case len(res.Errors) > 0:
		logger.Info("conversion finished with field errors", "outcome", outcome, "errors", res.Errors.Strings())
	default:
		logger.Info("conversion finished", "outcome", outcome)
	}
}

// Write sends the result's record to the output directory, or to the
// writer's sink when no directory is configured.
func (s *Service) Write(res *Result) error {
	path := ""
	if s.outputDir != "" {
		path = filepath.Join(s.outputDir, res.FileName())
	}
	err := s.writer.Write(res.Record, path)
	s.metrics.IncrementFlatWrite(err == nil)
	if err != nil {
		res.WriteErr = err
		s.logger.Error("failed to write flat record", "conversion_id", res.ID, "path", path, "error", err)
		return err
	}
	res.Path = path
	return nil
}

func partnerLabel(id string) string {
	if id == "" {
		return LibraryPartner
	}
	return strings.ToLower(id)
}
