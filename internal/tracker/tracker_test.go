package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorres47/practice-tracker/internal/catalog"
	"github.com/dtorres47/practice-tracker/internal/metrics"
	"github.com/dtorres47/practice-tracker/internal/practice"
	"github.com/dtorres47/practice-tracker/internal/sqlite"
)

var hcm = time.FixedZone("ICT", 7*3600)

// 2026-10-14 20:00 UTC is already 2026-10-15 in Ho Chi Minh City.
func clock() time.Time { return time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC) }

func newService(t *testing.T) *Service {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "t.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store,
		WithLocation(hcm),
		WithClock(clock),
		WithDays(7),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
}

func TestSubmitDefaultsDateInZone(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	view, err := svc.Submit(ctx, practice.Submission{
		UserID: "u1", Name: "An", DharmaName: "Tâm Minh",
		Entries: []practice.Entry{{Practice: "Niệm Phật", Count: 108}, {Practice: "Lạy Phật"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 108, view.Total)
	assert.Equal(t, 1, view.Streak)
	require.Len(t, view.Window, 7)
	assert.Equal(t, "2026-10-15", view.Window[6].Date)
	assert.Equal(t, 108, view.Window[6].Total)

	detail, err := svc.DayDetail(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []practice.Record{{Date: "2026-10-15", Practice: "Niệm Phật", Count: 108}}, detail)
}

func TestSubmitRejectsInvalid(t *testing.T) {
	svc := newService(t)
	_, err := svc.Submit(context.Background(), practice.Submission{
		UserID: "u1", Name: "An", DharmaName: "Tâm Minh",
		Entries: []practice.Entry{{Practice: "Niệm Phật", Count: 0}},
	})
	assert.ErrorIs(t, err, practice.ErrInvalid)
}

func TestStreakAcrossSubmissions(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	for _, d := range []string{"2026-10-12", "2026-10-13", "2026-10-14"} {
		_, err := svc.Submit(ctx, practice.Submission{
			UserID: "u1", Name: "An", DharmaName: "Tâm Minh", Date: d,
			Entries: []practice.Entry{{Practice: "Niệm Phật", Count: 1}},
		})
		require.NoError(t, err)
	}
	view, err := svc.Summary(ctx, "u1", 21)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Streak, "today has no entry yet so the run ends yesterday")
	assert.Len(t, view.Window, 21)
	assert.Equal(t, 3, view.Total)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.Profile(ctx, "u1")
	assert.ErrorIs(t, err, practice.ErrNotFound)

	_, err = svc.Profile(ctx, " ")
	assert.ErrorIs(t, err, practice.ErrInvalid)

	saved, err := svc.SaveProfile(ctx, practice.Profile{UserID: " u1", Name: "An ", DharmaName: "Tâm Minh"})
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.UserID)

	got, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	_, err = svc.SaveProfile(ctx, practice.Profile{UserID: "u1"})
	assert.ErrorIs(t, err, practice.ErrInvalid)
}

func TestPracticesFallsBackToCatalog(t *testing.T) {
	require.NoError(t, catalog.Load())
	ps, err := newService(t).Practices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.Practices(), ps)
}

func TestDayDetailRejectsBadDate(t *testing.T) {
	_, err := newService(t).DayDetail(context.Background(), "u1", "yesterday")
	assert.ErrorIs(t, err, practice.ErrInvalid)
}

type failingBackend struct{ practice.Backend }

func (failingBackend) Submit(context.Context, practice.Submission) error {
	return practice.ErrUpstream
}

func (failingBackend) Summary(context.Context, string) (practice.Summary, error) {
	return practice.Summary{}, practice.ErrUpstream
}

// refreshFailingBackend accepts submissions but cannot read them back.
type refreshFailingBackend struct {
	practice.Backend
	submitted []practice.Submission
}

func (b *refreshFailingBackend) Submit(_ context.Context, sub practice.Submission) error {
	b.submitted = append(b.submitted, sub)
	return nil
}

func (*refreshFailingBackend) Summary(context.Context, string) (practice.Summary, error) {
	return practice.Summary{}, practice.ErrUpstream
}

func TestSubmitSucceedsWhenRefreshFails(t *testing.T) {
	backend := &refreshFailingBackend{}
	svc := New(backend, WithLocation(hcm), WithClock(clock), WithDays(7))

	view, err := svc.Submit(context.Background(), practice.Submission{
		UserID: "u1", Name: "An", DharmaName: "Tâm Minh",
		Entries: []practice.Entry{{Practice: "a", Count: 3}, {Practice: "b", Count: 2}},
	})
	require.NoError(t, err)
	require.Len(t, backend.submitted, 1)
	assert.True(t, view.Stale)
	assert.Equal(t, "u1", view.UserID)
	assert.Equal(t, 5, view.Total)
	assert.Equal(t, map[string]int{"a": 3, "b": 2}, view.Totals)
	require.Len(t, view.Window, 7)
	assert.Equal(t, "2026-10-15", view.Window[6].Date)
	assert.Equal(t, 5, view.Window[6].Total)
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	svc := New(failingBackend{}, WithClock(clock))

	_, err := svc.Submit(context.Background(), practice.Submission{
		UserID: "u1", Name: "An", DharmaName: "Tâm Minh",
		Entries: []practice.Entry{{Practice: "a", Count: 1}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, practice.ErrUpstream))

	_, err = svc.Summary(context.Background(), "u1", 0)
	assert.ErrorIs(t, err, practice.ErrUpstream)
}
