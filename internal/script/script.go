// Package script is the Backend for the spreadsheet-backed script endpoint.
//
// The endpoint speaks a small action protocol: reads are GET requests with
// an action query parameter, writes are urlencoded POSTs carrying an action
// field. Replies are JSON but loosely typed, so they are read with gjson.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dtorres47/practice-tracker/internal/metrics"
	"github.com/dtorres47/practice-tracker/internal/practice"
)

const (
	actionPractices   = "practices"
	actionProfile     = "profile"
	actionSummary     = "summary"
	actionSubmit      = "submit"
	actionSaveProfile = "saveProfile"
)

// errReply marks a reply the script sent with an error message.
var errReply = fmt.Errorf("script replied with an error: %w", practice.ErrUpstream)

// errEmpty marks an empty or null reply.
var errEmpty = fmt.Errorf("empty response: %w", practice.ErrUpstream)

type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	loc      *time.Location
	metrics  *metrics.Metrics
}

// New returns a client for endpoint. timeout bounds every call; zero means
// the caller's context alone decides. loc is the zone the sheet's date
// cells were written in; nil means UTC.
func New(endpoint string, httpClient *http.Client, timeout time.Duration, loc *time.Location, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{endpoint: endpoint, http: httpClient, timeout: timeout, loc: loc, metrics: m}
}

var _ practice.Backend = (*Client)(nil)

func (c *Client) ListPractices(ctx context.Context) ([]practice.Practice, error) {
	res, err := c.get(ctx, actionPractices, nil)
	if err != nil {
		return nil, err
	}
	list := res
	if !res.IsArray() {
		list = res.Get("practices")
	}

	out := []practice.Practice{}
	seen := map[string]bool{}
	list.ForEach(func(_, v gjson.Result) bool {
		name := v.String()
		if v.IsObject() {
			name = v.Get("name").String()
		}
		name = strings.TrimSpace(name)
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, practice.Practice{Name: name})
		}
		return true
	})
	return out, nil
}

func (c *Client) GetProfile(ctx context.Context, userID string) (practice.Profile, error) {
	res, err := c.get(ctx, actionProfile, url.Values{"userId": {userID}})
	if errors.Is(err, errReply) || errors.Is(err, errEmpty) {
		return practice.Profile{}, fmt.Errorf("profile %q: %w", userID, practice.ErrNotFound)
	}
	if err != nil {
		return practice.Profile{}, err
	}
	if p := res.Get("profile"); p.IsObject() {
		res = p
	}
	p := practice.Profile{
		UserID:     userID,
		Name:       strings.TrimSpace(res.Get("name").String()),
		DharmaName: strings.TrimSpace(res.Get("dharmaName").String()),
	}
	if p.Name == "" && p.DharmaName == "" {
		return practice.Profile{}, fmt.Errorf("profile %q: %w", userID, practice.ErrNotFound)
	}
	return p, nil
}

func (c *Client) SaveProfile(ctx context.Context, p practice.Profile) error {
	form := url.Values{
		"userId":     {p.UserID},
		"name":       {p.Name},
		"dharmaName": {p.DharmaName},
	}
	_, err := c.post(ctx, actionSaveProfile, form)
	return err
}

func (c *Client) Summary(ctx context.Context, userID string) (practice.Summary, error) {
	res, err := c.get(ctx, actionSummary, url.Values{"userId": {userID}})
	if err != nil {
		return practice.Summary{}, err
	}

	s := practice.Summary{
		UserID: userID,
		Total:  int(res.Get("total").Int()),
		Totals: map[string]int{},
	}
	if streak := res.Get("streak"); streak.Exists() {
		s.Streak = int(streak.Int())
		s.StreakKnown = true
	}
	res.Get("totals").ForEach(func(k, v gjson.Result) bool {
		s.Totals[k.String()] = int(v.Int())
		return true
	})
	res.Get("daily").ForEach(func(_, v gjson.Result) bool {
		r := practice.Record{
			Date:     normalizeDate(v.Get("date").String(), c.loc),
			Practice: strings.TrimSpace(v.Get("practice").String()),
			Count:    int(v.Get("count").Int()),
		}
		if r.Date != "" {
			s.Records = append(s.Records, r)
		}
		return true
	})
	practice.SortRecords(s.Records)
	return s, nil
}

func (c *Client) Submit(ctx context.Context, sub practice.Submission) error {
	entries, err := json.Marshal(sub.Entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	form := url.Values{
		"userId":     {sub.UserID},
		"name":       {sub.Name},
		"dharmaName": {sub.DharmaName},
		"date":       {sub.Date},
		"entries":    {string(entries)},
	}
	_, err = c.post(ctx, actionSubmit, form)
	return err
}

// normalizeDate accepts yyyy-mm-dd or a full timestamp. Sheets return a
// date cell as the UTC instant of local midnight, so timestamps are read
// back in loc.
func normalizeDate(s string, loc *time.Location) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(practice.DateLayout) {
		if _, err := time.Parse(practice.DateLayout, s[:len(practice.DateLayout)]); err == nil {
			if len(s) == len(practice.DateLayout) {
				return s
			}
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t.In(loc).Format(practice.DateLayout)
			}
			return s[:len(practice.DateLayout)]
		}
	}
	return ""
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) get(ctx context.Context, action string, q url.Values) (gjson.Result, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("action", action)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build %s request: %w", action, err)
	}
	return c.do(req, action)
}

func (c *Client) post(ctx context.Context, action string, form url.Values) (gjson.Result, error) {
	form.Set("action", action)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, action)
}

func (c *Client) do(req *http.Request, action string) (gjson.Result, error) {
	start := time.Now()
	defer c.metrics.ObserveUpstream(action, start)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w: %v", action, practice.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read response: %w: %v", action, practice.ErrUpstream, err)
	}
	log.Debug().
		Str("action", action).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("script call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, fmt.Errorf("%s: status %d: %w", action, resp.StatusCode, practice.ErrUpstream)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return gjson.Result{}, fmt.Errorf("%s: %w", action, errEmpty)
	}
	if !gjson.ValidBytes(trimmed) {
		return gjson.Result{}, fmt.Errorf("%s: response is not json: %w", action, practice.ErrUpstream)
	}

	res := gjson.ParseBytes(trimmed)
	if msg := res.Get("error"); msg.Exists() && msg.String() != "" {
		if strings.Contains(strings.ToLower(msg.String()), "not found") {
			return gjson.Result{}, fmt.Errorf("%s: %s: %w", action, msg.String(), practice.ErrNotFound)
		}
		return gjson.Result{}, fmt.Errorf("%s: %s: %w", action, msg.String(), errReply)
	}
	if strings.EqualFold(res.Get("status").String(), "error") {
		return gjson.Result{}, fmt.Errorf("%s: %s: %w", action, res.Get("message").String(), errReply)
	}
	return res, nil
}
