package notes

//go:generate mockgen -source=hook.go -destination=mocks/mocks.go -package=mocks Hook

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ilsgate/internal/customer"
	"ilsgate/internal/fields"
	"ilsgate/internal/notes/mocks"
	"ilsgate/internal/policy"
	dErrors "ilsgate/pkg/domain-errors"
	"ilsgate/pkg/platform/circuit"
	"ilsgate/pkg/platform/sentinel"
)

type RunnerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	hook     *mocks.MockHook
	registry *Registry
	runner   *Runner
	logs     *bytes.Buffer
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.hook = mocks.NewMockHook(s.ctrl)
	s.hook.EXPECT().Name().Return("partner").AnyTimes()
	s.registry = NewRegistry()
	s.Require().NoError(s.registry.Register(s.hook))
	s.logs = &bytes.Buffer{}
	s.runner = NewRunner(s.registry,
		WithLogger(slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithTimeout(50*time.Millisecond),
	)
}

func (s *RunnerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func withNotes(text string) *customer.Customer {
	c := customer.New()
	c.Set(fields.FirstName, "Andrew")
	c.Set(fields.Notes, text)
	return c
}

func partnerPolicy() policy.Policy {
	return policy.Policy{Notes: policy.NotesPolicy{Hook: "Partner"}}
}

func (s *RunnerSuite) TestNoHookConfigured() {
	c := withNotes("hello")
	out, err := s.runner.Run(context.Background(), c, policy.Policy{})
	s.NoError(err)
	s.Same(c, out)
}

func (s *RunnerSuite) TestMutationOnCopy() {
	s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *customer.Customer, _ policy.Policy) error {
			c.Set("USER_CATEGORY5", "STUDENT")
			c.Set(fields.Notes, "replaced")
			return nil
		})

	in := withNotes("original")
	out, err := s.runner.Run(context.Background(), in, partnerPolicy())
	s.Require().NoError(err)
	s.Equal("STUDENT", out.Value("USER_CATEGORY5"))
	s.Equal("replaced", out.Value(fields.Notes))
	s.Equal("original", in.Value(fields.Notes), "input untouched")
	s.False(in.Has("USER_CATEGORY5"))
	s.Contains(s.logs.String(), "note hook applied")
}

func (s *RunnerSuite) TestFailuresDegradeToNoMutation() {
	s.Run("hook error", func() {
		s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, c *customer.Customer, _ policy.Policy) error {
				c.Set(fields.Notes, "half done")
				return errors.New("partner service down")
			})
		in := withNotes("original")
		out, err := s.runner.Run(context.Background(), in, partnerPolicy())
		s.Require().Error(err)
		s.Contains(err.Error(), "partner service down")
		s.Same(in, out)
		s.Equal("original", out.Value(fields.Notes))
	})

	s.Run("hook panic", func() {
		s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, *customer.Customer, policy.Policy) error {
				panic("boom")
			})
		in := withNotes("original")
		out, err := s.runner.Run(context.Background(), in, partnerPolicy())
		s.Require().Error(err)
		s.Contains(err.Error(), "panicked")
		s.Same(in, out)
	})

	s.Run("hook timeout", func() {
		s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ *customer.Customer, _ policy.Policy) error {
				<-ctx.Done()
				return ctx.Err()
			})
		in := withNotes("original")
		out, err := s.runner.Run(context.Background(), in, partnerPolicy())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
		s.ErrorIs(err, sentinel.ErrUnavailable)
		s.Same(in, out)
	})

	s.Run("unregistered hook", func() {
		in := withNotes("original")
		out, err := s.runner.Run(context.Background(), in, policy.Policy{Notes: policy.NotesPolicy{Hook: "nobody"}})
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.Same(in, out)
	})
}

func (s *RunnerSuite) TestCircuitBreaker() {
	now := time.Date(2020, time.March, 1, 9, 0, 0, 0, time.UTC)
	runner := NewRunner(s.registry,
		WithLogger(slog.New(slog.NewTextHandler(s.logs, nil))),
		WithBreaker(
			circuit.WithFailureThreshold(2),
			circuit.WithCooldown(time.Minute),
			circuit.WithClock(func() time.Time { return now }),
		),
	)

	s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("partner service down")).Times(2)
	for range 2 {
		_, err := runner.Run(context.Background(), withNotes("original"), partnerPolicy())
		s.Require().Error(err)
	}
	s.True(runner.Breaker("Partner").IsOpen())
	s.Contains(s.logs.String(), "note hook circuit opened")

	s.Run("open circuit skips the hook", func() {
		in := withNotes("original")
		out, err := runner.Run(context.Background(), in, partnerPolicy())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.ErrorIs(err, sentinel.ErrUnavailable)
		s.Same(in, out)
	})

	s.Run("successful probe closes", func() {
		now = now.Add(time.Minute)
		s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		_, err := runner.Run(context.Background(), withNotes("original"), partnerPolicy())
		s.Require().NoError(err)
		s.Equal(circuit.StateClosed, runner.Breaker("partner").State())
		s.Contains(s.logs.String(), "note hook circuit closed")
	})
}

func (s *RunnerSuite) TestCallerCancellationNotCounted() {
	runner := NewRunner(s.registry, WithBreaker(circuit.WithFailureThreshold(1)))
	ctx, cancel := context.WithCancel(context.Background())
	s.hook.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *customer.Customer, policy.Policy) error {
			cancel()
			return context.Canceled
		})
	_, err := runner.Run(ctx, withNotes("original"), partnerPolicy())
	s.Require().Error(err)
	s.False(runner.Breaker("partner").IsOpen())
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{"annotate", "category"}, r.Names())

	h, ok := r.Get(" Category ")
	require.True(t, ok)
	assert.Equal(t, "category", h.Name())

	err := r.Register(CategoryHook{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestCategoryHook(t *testing.T) {
	p := policy.Policy{Notes: policy.NotesPolicy{Categories: map[string]string{"Staff": "STAFF", "student": "STUDENT"}}}

	tests := []struct {
		name  string
		notes string
		tag   string
		want  string
		note  string
	}{
		{name: "exact match", notes: "Staff", want: "STAFF", note: "Staff"},
		{name: "case-insensitive match", notes: "STUDENT", want: "STUDENT", note: "STUDENT"},
		{name: "unknown category becomes an error", notes: "alien", want: "", note: `ERROR: unknown category "alien"`},
		{name: "no notes", notes: "", want: "", note: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := withNotes(tt.notes)
			require.NoError(t, CategoryHook{}.Apply(context.Background(), c, p))
			assert.Equal(t, tt.want, c.Value(DefaultCategoryTag))
			assert.Equal(t, tt.note, c.Value(fields.Notes))
		})
	}

	t.Run("configured tag", func(t *testing.T) {
		tagged := p
		tagged.Notes.Tag = "USER_CATEGORY7"
		c := withNotes("staff")
		require.NoError(t, CategoryHook{}.Apply(context.Background(), c, tagged))
		assert.Equal(t, "STAFF", c.Value("USER_CATEGORY7"))
	})
}

func TestAnnotateHook(t *testing.T) {
	p := policy.Policy{Notes: policy.NotesPolicy{Prefix: "NEOS:"}}

	c := withNotes("walk-in")
	require.NoError(t, AnnotateHook{}.Apply(context.Background(), c, p))
	assert.Equal(t, "NEOS: walk-in", c.Value(fields.Notes))

	require.NoError(t, AnnotateHook{}.Apply(context.Background(), c, p))
	assert.Equal(t, "NEOS: walk-in", c.Value(fields.Notes), "applied once")

	empty := customer.New()
	require.NoError(t, AnnotateHook{}.Apply(context.Background(), empty, p))
	assert.Equal(t, "NEOS:", empty.Value(fields.Notes))
}

func TestExtractError(t *testing.T) {
	c := withNotes("ERROR: card already issued")
	msg, ok := ExtractError(c, fields.Notes)
	assert.True(t, ok)
	assert.Equal(t, "card already issued", msg)
	assert.False(t, c.Has(fields.Notes))

	c = withNotes("fine")
	_, ok = ExtractError(c, fields.Notes)
	assert.False(t, ok)
	assert.Equal(t, "fine", c.Value(fields.Notes))
}
