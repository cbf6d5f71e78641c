package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

type mockCompleter struct {
	mock.Mock
	name string
}

func (m *mockCompleter) Provider() string { return m.name }

func (m *mockCompleter) Complete(ctx context.Context, modelName string, req Request) (*Response, error) {
	args := m.Called(ctx, modelName, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func TestRouter_PrimarySucceeds(t *testing.T) {
	c := &mockCompleter{name: "anthropic"}
	c.On("Complete", mock.Anything, "primary", mock.Anything).Return(&Response{Text: "ok", Model: "primary"}, nil).Once()

	r := NewRouter([]Target{{c, "primary"}, {c, "fallback"}}, time.Minute)
	resp, err := r.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Model)
	c.AssertExpectations(t)
}

func TestRouter_FallsBackOnQuota(t *testing.T) {
	c := &mockCompleter{name: "anthropic"}
	c.On("Complete", mock.Anything, "primary", mock.Anything).
		Return(nil, resilience.NewQuotaError("anthropic", 30*time.Second, errors.New("429"))).Once()
	c.On("Complete", mock.Anything, "fallback", mock.Anything).
		Return(&Response{Text: "ok", Model: "fallback"}, nil).Twice()

	r := NewRouter([]Target{{c, "primary"}, {c, "fallback"}}, time.Minute)
	now := time.Unix(0, 0)
	r.now = func() time.Time { return now }

	resp, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Model)

	// Primary is still cooling, so it is not called again.
	now = now.Add(10 * time.Second)
	_, err = r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	c.AssertExpectations(t)
}

func TestRouter_CooldownExpires(t *testing.T) {
	c := &mockCompleter{name: "gemini"}
	c.On("Complete", mock.Anything, "m", mock.Anything).
		Return(nil, resilience.NewQuotaError("gemini", 0, nil)).Once()
	c.On("Complete", mock.Anything, "m", mock.Anything).
		Return(&Response{Text: "back"}, nil).Once()

	r := NewRouter([]Target{{c, "m"}}, 5*time.Second)
	now := time.Unix(0, 0)
	r.now = func() time.Time { return now }

	_, err := r.Complete(context.Background(), Request{})
	qe, ok := resilience.AsQuota(err)
	require.True(t, ok)
	assert.Equal(t, "llm", qe.Provider)
	assert.Equal(t, 5*time.Second, qe.RetryAfter)

	now = now.Add(2 * time.Second)
	_, err = r.Complete(context.Background(), Request{})
	assert.True(t, resilience.IsQuota(err), "still cooling")

	now = now.Add(4 * time.Second)
	resp, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "back", resp.Text)
	c.AssertExpectations(t)
}

func TestRouter_OtherErrorsReturnImmediately(t *testing.T) {
	c := &mockCompleter{name: "anthropic"}
	boom := errors.New("bad request")
	c.On("Complete", mock.Anything, "primary", mock.Anything).Return(nil, boom).Once()

	r := NewRouter([]Target{{c, "primary"}, {c, "fallback"}}, 0)
	_, err := r.Complete(context.Background(), Request{})
	assert.Equal(t, boom, err)
	c.AssertExpectations(t)
}

func TestRouter_Dedupes(t *testing.T) {
	a := &mockCompleter{name: "anthropic"}
	g := &mockCompleter{name: "gemini"}
	r := NewRouter([]Target{{a, "m1"}, {a, "m1"}, {g, "m1"}, {a, ""}, {nil, "x"}}, 0)
	assert.Equal(t, 2, r.Len())

	_, err := NewRouter(nil, 0).Complete(context.Background(), Request{})
	assert.Error(t, err)
}
