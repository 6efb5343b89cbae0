package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ilsgate/internal/customer"
	"ilsgate/internal/fields"
	"ilsgate/internal/flat"
	"ilsgate/internal/notes"
	"ilsgate/internal/notes/mocks"
	"ilsgate/internal/platform/metrics"
	"ilsgate/internal/policy"
	dErrors "ilsgate/pkg/domain-errors"
)

type PipelineSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	hook    *mocks.MockHook
	catalog *policy.Catalog
	fs      afero.Fs
	metrics *metrics.Metrics
	logs    *bytes.Buffer
	service *Service
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.hook = mocks.NewMockHook(s.ctrl)
	s.hook.EXPECT().Name().Return("partner").AnyTimes()

	var err error
	s.catalog, err = policy.NewCatalog(map[string]any{
		"library": map[string]any{
			"defaults":     map[string]any{"city": "Edmonton", "province": "Alberta"},
			"branch":       map[string]any{"default": "EPLMNA"},
			"expiry":       map[string]any{"days": 365},
			"flatDefaults": map[string]any{"USER_ACCESS": "PUBLIC", "USER_LANGUAGE": "ENGLISH"},
		},
		"partners": map[string]any{
			"neos": map[string]any{
				"barcodes":     map[string]any{"prefix": "21221800", "minimum": 13, "maximum": 14},
				"expiry":       map[string]any{"date": "NEVER"},
				"notes":        map[string]any{"hook": "category", "categories": map[string]any{"staff": "STAFF"}},
				"flatDefaults": map[string]any{"USER_ACCESS": "STUDENT"},
			},
			"custom": map[string]any{
				"notes": map[string]any{"hook": "partner"},
			},
		},
	}, nil)
	s.Require().NoError(err)

	registry := notes.NewDefaultRegistry()
	s.Require().NoError(registry.Register(s.hook))

	s.fs = afero.NewMemMapFs()
	s.Require().NoError(s.fs.MkdirAll("/out", 0o755))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, nil))

	s.service, err = New(s.catalog,
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithHooks(registry),
		WithHookTimeout(100*time.Millisecond),
		WithClock(func() time.Time { return time.Date(2020, time.March, 1, 9, 0, 0, 0, time.UTC) }),
		WithWriter(flat.NewWriter(flat.WithFs(s.fs))),
		WithOutputDir("/out"),
		WithWorkers(3),
	)
	s.Require().NoError(err)
}

func (s *PipelineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func registration(barcode string) customer.Raw {
	return customer.Raw{
		"firstName": "Andrew",
		"lastName":  "Nisbet",
		"dob":       "1974-08-22",
		"barcode":   barcode,
		"pin":       "IlikeBread",
		"notes":     "Staff",
	}
}

func (s *PipelineSuite) TestNew() {
	s.Run("nil catalog", func() {
		_, err := New(nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unregistered hook reference is reported", func() {
		var logs bytes.Buffer
		_, err := New(s.catalog, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		s.Require().NoError(err)
		s.Contains(logs.String(), "unregistered note hook")
		s.Contains(logs.String(), "hook=partner")
	})
}

func (s *PipelineSuite) TestConvertPartner() {
	res, err := s.service.Convert(context.Background(), "NEOS", registration("123456"))
	s.Require().NoError(err)

	s.Equal(StageDone, res.Stage)
	s.Equal("neos", res.Partner)
	s.NotEmpty(res.ID)
	s.Empty(res.Errors)
	s.Equal(metrics.OutcomeOK, res.Outcome())

	s.Equal([]string{
		"*** DOCUMENT BOUNDARY ***",
		"FORM=LDUSER",
		".USER_FIRST_NAME.   |aAndrew",
		".USER_LAST_NAME.   |aNisbet",
		".USER_ID.   |a21221800123456",
		".USER_PIN.   |aIlikeBread",
		".USER_LIBRARY.   |aEPLMNA",
		".USER_CATEGORY3.   |aSTAFF",
		".USER_ACCESS.   |aSTUDENT",
		".USER_LANGUAGE.   |aENGLISH",
		".USER_BIRTH_DATE.   |a19740822",
		".USER_PRIV_EXPIRES.   |aNEVER",
		".USER_ADDR1_BEGIN.",
		".CITY/STATE.   |aEdmonton, Alberta",
		".USER_ADDR1_END.",
		".USER_XINFO_BEGIN.",
		".NOTE.   |aStaff",
		".USER_XINFO_END.",
	}, res.Record.Lines())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Conversions.WithLabelValues("neos", metrics.OutcomeOK)))
}

func (s *PipelineSuite) TestLibraryOnly() {
	res, err := s.service.Convert(context.Background(), "", registration("abc_123"))
	s.Require().NoError(err)
	s.Equal(LibraryPartner, res.Partner)
	s.Equal("ABC_123", res.Customer.Value(fields.Barcode))
	s.Equal("2021-03-01", res.Customer.Value(fields.Expiry))
	s.False(res.Customer.Has("USER_CATEGORY3"), "library policy names no hook")
}

func (s *PipelineSuite) TestUnknownPartner() {
	res, err := s.service.Convert(context.Background(), "nobody", registration("123456"))
	s.Nil(res)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PipelineSuite) TestStructuralInput() {
	for name, payload := range map[string]string{"array": `[1,2]`, "garbage": `{"firstName":`} {
		s.Run(name, func() {
			res, err := s.service.ConvertJSON(context.Background(), "neos", []byte(payload))
			s.Require().NoError(err)
			s.True(dErrors.HasCode(res.Err, dErrors.CodeInvalidInput))
			s.Empty(res.Record.Lines())
			s.Len(res.Record.Errors(), 1)
			s.Equal(metrics.OutcomeRejected, res.Outcome())
		})
	}
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Conversions.WithLabelValues("neos", metrics.OutcomeRejected)))
}

func (s *PipelineSuite) TestFieldErrors() {
	raw := registration("123456789")
	raw["email"] = "nope"

	res, err := s.service.Convert(context.Background(), "neos", raw)
	s.Require().NoError(err)
	s.Equal(StageDone, res.Stage, "processing completes despite failures")
	s.Equal([]string{`invalid email "nope"`, `invalid barcode "123456789"`, "barcode is required"}, res.Errors.Strings())
	s.Equal(metrics.OutcomeRejected, res.Outcome())
	s.True(res.Record.OK(), "best-effort record still rendered")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FieldRejections.WithLabelValues(fields.Email)))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.FieldRejections.WithLabelValues(fields.Barcode)))
}

func (s *PipelineSuite) TestHookFailureDegrades() {
	s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("partner api down"))

	res, err := s.service.Convert(context.Background(), "custom", registration("abc"))
	s.Require().NoError(err)
	s.Equal(metrics.OutcomeOK, res.Outcome())
	s.Equal("Staff", res.Customer.Value(fields.Notes))
	s.Require().Len(res.Warnings, 1)
	s.Contains(res.Warnings[0], "partner api down")
	s.Contains(s.logs.String(), "note hook failed")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.HookFailures.WithLabelValues("partner")))
}

func (s *PipelineSuite) TestFailingHookIsSkippedOnceCircuitOpens() {
	registry := notes.NewRegistry()
	s.Require().NoError(registry.Register(s.hook))
	service, err := New(s.catalog,
		WithHooks(registry),
		WithMetrics(s.metrics),
		WithHookBreaker(2, time.Minute),
	)
	s.Require().NoError(err)

	s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("partner api down")).Times(2)
	for range 3 {
		res, err := service.Convert(context.Background(), "custom", registration("abc"))
		s.Require().NoError(err)
		s.Equal("Staff", res.Customer.Value(fields.Notes))
		s.Require().Len(res.Warnings, 1)
	}

	res, err := service.Convert(context.Background(), "custom", registration("abc"))
	s.Require().NoError(err)
	s.Contains(res.Warnings[0], "circuit open")
	s.Equal(4.0, testutil.ToFloat64(s.metrics.HookFailures.WithLabelValues("partner")))
}

func (s *PipelineSuite) TestErrorShapedNotes() {
	s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *customer.Customer, _ policy.Policy) error {
			c.Set(fields.Notes, notes.ErrorPrefix+" card already issued")
			return nil
		})

	res, err := s.service.Convert(context.Background(), "custom", registration("abc"))
	s.Require().NoError(err)
	s.Equal([]string{"card already issued"}, res.Errors.Strings())
	s.Equal(metrics.OutcomeInvalid, res.Outcome())
	s.False(res.Customer.Has(fields.Notes))
	s.NotContains(res.Record.String(), "NOTE")
}

func (s *PipelineSuite) TestConvertAndWrite() {
	res, err := s.service.ConvertAndWrite(context.Background(), "neos", registration("123456"))
	s.Require().NoError(err)
	s.Equal("/out/21221800123456.flat", res.Path)

	data, err := afero.ReadFile(s.fs, res.Path)
	s.Require().NoError(err)
	s.Equal(res.Record.String()+"\n", string(data))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FlatWrites.WithLabelValues("ok")))

	s.Run("write failure keeps the result", func() {
		svc, err := New(s.catalog,
			WithWriter(flat.NewWriter(flat.WithFs(s.fs))),
			WithOutputDir("/missing"),
			WithMetrics(s.metrics),
		)
		s.Require().NoError(err)
		res, err := svc.ConvertAndWrite(context.Background(), "", registration("abc"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Require().NotNil(res)
		s.True(res.Record.OK())
		s.Empty(res.Path)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.FlatWrites.WithLabelValues("error")))
	})
}

func (s *PipelineSuite) TestConvertBatch() {
	raws := make([]customer.Raw, 0, 21)
	for i := range 20 {
		raws = append(raws, registration(fmt.Sprintf("%06d", i)))
	}
	raws = append(raws, nil)

	results, err := s.service.ConvertBatch(context.Background(), "neos", raws, BatchOptions{Write: true})
	s.Require().NoError(err)
	s.Require().Len(results, 21)

	for i := range 20 {
		barcode := fmt.Sprintf("21221800%06d", i)
		s.Equal(barcode, results[i].Customer.Value(fields.Barcode), "input order kept")
		exists, err := afero.Exists(s.fs, "/out/"+barcode+".flat")
		s.Require().NoError(err)
		s.True(exists)
	}
	last := results[20]
	s.Equal(metrics.OutcomeRejected, last.Outcome())
	s.Error(last.WriteErr)
}

func (s *PipelineSuite) TestConvertBatchCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.service.ConvertBatch(ctx, "neos", []customer.Raw{registration("1")}, BatchOptions{})
	s.ErrorIs(err, context.Canceled)
}

func TestAdvance(t *testing.T) {
	stage := StageStart
	assert.NoError(t, advance(&stage, StageFieldsNormalized))
	assert.NoError(t, advance(&stage, StageDefaultsApplied))

	err := advance(&stage, StageDone)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.Contains(t, err.Error(), "defaults_applied -> done")
	assert.Equal(t, StageDefaultsApplied, stage)

	assert.Error(t, advance(&stage, StageDefaultsApplied), "no repeats")
	assert.NoError(t, advance(&stage, StageNoteHookApplied))
	assert.NoError(t, advance(&stage, StageDone))
	assert.Equal(t, "done", stage.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}
