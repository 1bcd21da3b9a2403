// Package tracker is what the HTTP and CLI layers call: it validates input,
// hands it to a practice.Backend and turns summaries into views.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dtorres47/practice-tracker/internal/catalog"
	"github.com/dtorres47/practice-tracker/internal/metrics"
	"github.com/dtorres47/practice-tracker/internal/practice"
	"github.com/dtorres47/practice-tracker/internal/stats"
	"github.com/dtorres47/practice-tracker/internal/ws"
)

type Service struct {
	backend practice.Backend
	hub     *ws.Hub
	metrics *metrics.Metrics
	loc     *time.Location
	days    int
	now     func() time.Time
}

type Option func(*Service)

// WithHub broadcasts accepted submissions to connected pages.
func WithHub(h *ws.Hub) Option { return func(s *Service) { s.hub = h } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLocation sets the zone that decides what "today" is.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithDays sets the chart window width.
func WithDays(n int) Option { return func(s *Service) { s.days = n } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(backend practice.Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		loc:     time.Local,
		days:    stats.DefaultDays,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today returns the current time in the service's zone.
func (s *Service) Today() time.Time {
	return s.now().In(s.loc)
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", &practice.ValidationError{Field: "userId", Reason: "is required"}
	}
	return userID, nil
}

// Practices lists the backend's practices, falling back to the catalog.
func (s *Service) Practices(ctx context.Context) ([]practice.Practice, error) {
	ps, err := s.backend.ListPractices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practices: %w", err)
	}
	return catalog.OrDefault(ps), nil
}

func (s *Service) Profile(ctx context.Context, userID string) (practice.Profile, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return practice.Profile{}, err
	}
	p, err := s.backend.GetProfile(ctx, userID)
	if err != nil {
		return practice.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *Service) SaveProfile(ctx context.Context, p practice.Profile) (practice.Profile, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return practice.Profile{}, err
	}
	if err := s.backend.SaveProfile(ctx, p); err != nil {
		return practice.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	log.Info().Str("user", p.UserID).Msg("profile saved")
	s.hub.Publish(p.UserID, ws.Msg{Type: ws.TypeProfileSaved, Data: map[string]string{"userId": p.UserID}})
	return p, nil
}

// Summary returns the view for a user over a window of days; days <= 0
// uses the configured width.
func (s *Service) Summary(ctx context.Context, userID string, days int) (stats.View, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return stats.View{}, err
	}
	sum, err := s.backend.Summary(ctx, userID)
	if err != nil {
		return stats.View{}, fmt.Errorf("summary: %w", err)
	}
	if days <= 0 {
		days = s.days
	}
	return stats.Build(sum, s.Today(), days), nil
}

// DayDetail returns what a user logged on one date.
func (s *Service) DayDetail(ctx context.Context, userID, date string) ([]practice.Record, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	if date == "" {
		date = s.Today().Format(practice.DateLayout)
	}
	if _, err := time.Parse(practice.DateLayout, date); err != nil {
		return nil, &practice.ValidationError{Field: "date", Reason: "must be yyyy-mm-dd"}
	}
	sum, err := s.backend.Summary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("day detail: %w", err)
	}
	return stats.DayDetail(sum.Records, date), nil
}

// Submit records a day's counts and returns the refreshed view. Once the
// backend has accepted the entries Submit succeeds; if the refresh fails the
// view covers only this submission and is marked stale.
func (s *Service) Submit(ctx context.Context, sub practice.Submission) (stats.View, error) {
	sub = sub.Normalize(s.Today())
	if err := sub.Validate(); err != nil {
		s.metrics.Submission(err, 0)
		return stats.View{}, err
	}
	if err := s.backend.Submit(ctx, sub); err != nil {
		s.metrics.Submission(err, 0)
		log.Error().Err(err).Str("user", sub.UserID).Msg("submit failed")
		return stats.View{}, fmt.Errorf("submit: %w", err)
	}
	s.metrics.Submission(nil, sub.Sum())
	log.Info().
		Str("user", sub.UserID).
		Str("date", sub.Date).
		Int("entries", len(sub.Entries)).
		Int("count", sub.Sum()).
		Msg("entries submitted")

	view, err := s.Summary(ctx, sub.UserID, 0)
	if err != nil {
		log.Warn().Err(err).Str("user", sub.UserID).Msg("refresh after submit failed")
		view = stats.Build(submitted(sub), s.Today(), s.days)
		view.Stale = true
	}
	s.hub.Publish(sub.UserID, ws.Msg{Type: ws.TypeEntryAdded, Data: map[string]any{
		"userId": sub.UserID,
		"date":   sub.Date,
		"total":  view.Total,
	}})
	return view, nil
}

func submitted(sub practice.Submission) practice.Summary {
	sum := practice.Summary{UserID: sub.UserID}
	for _, e := range sub.Entries {
		sum.Records = append(sum.Records, practice.Record{Date: sub.Date, Practice: e.Practice, Count: e.Count})
	}
	return sum
}
