// Package stats derives the numbers shown next to the form: totals, the
// streak, and the sliding window behind the bar chart.
package stats

import (
	"sort"
	"time"

	"github.com/dtorres47/practice-tracker/internal/practice"
)

// DefaultDays is the width of the chart window.
const DefaultDays = 21

type Day struct {
	Date       string         `json:"date"`
	Total      int            `json:"total"`
	ByPractice map[string]int `json:"byPractice"`
}

type Dataset struct {
	Label string `json:"label"`
	Data  []int  `json:"data"`
}

// Chart is the window grouped for a stacked bar chart: one dataset per
// practice, each aligned with Labels.
type Chart struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// View is everything the page renders for one user.
type View struct {
	UserID string         `json:"userId"`
	Total  int            `json:"total"`
	Streak int            `json:"streak"`
	Totals map[string]int `json:"totals"`
	Window []Day          `json:"window"`
	Chart  Chart          `json:"chart"`
	// Stale is set when the view was built without a fresh summary.
	Stale bool `json:"stale,omitempty"`
}

func Total(rs []practice.Record) int {
	n := 0
	for _, r := range rs {
		n += r.Count
	}
	return n
}

func Totals(rs []practice.Record) map[string]int {
	out := map[string]int{}
	for _, r := range rs {
		out[r.Practice] += r.Count
	}
	return out
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Streak counts consecutive days with a positive count ending today. A day
// without entries yet does not break the run, so it may end yesterday.
func Streak(rs []practice.Record, today time.Time) int {
	logged := map[string]bool{}
	for _, r := range rs {
		if r.Count > 0 {
			logged[r.Date] = true
		}
	}

	d := day(today)
	if !logged[d.Format(practice.DateLayout)] {
		d = d.AddDate(0, 0, -1)
	}
	n := 0
	for logged[d.Format(practice.DateLayout)] {
		n++
		d = d.AddDate(0, 0, -1)
	}
	return n
}

// Window returns the last days calendar days ending today, oldest first,
// with missing days zero-filled.
func Window(rs []practice.Record, today time.Time, days int) []Day {
	if days <= 0 {
		days = DefaultDays
	}
	start := day(today).AddDate(0, 0, -(days - 1))
	out := make([]Day, days)
	index := make(map[string]int, days)
	for i := range out {
		date := start.AddDate(0, 0, i).Format(practice.DateLayout)
		out[i] = Day{Date: date, ByPractice: map[string]int{}}
		index[date] = i
	}
	for _, r := range rs {
		i, ok := index[r.Date]
		if !ok {
			continue
		}
		out[i].Total += r.Count
		out[i].ByPractice[r.Practice] += r.Count
	}
	return out
}

// Stacked groups a window by practice. Practices with the largest
// window total come first; ties break by name.
func Stacked(window []Day) Chart {
	c := Chart{Labels: make([]string, len(window)), Datasets: []Dataset{}}
	sums := map[string]int{}
	for i, d := range window {
		c.Labels[i] = d.Date
		for p, n := range d.ByPractice {
			sums[p] += n
		}
	}

	names := make([]string, 0, len(sums))
	for p := range sums {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool {
		if sums[names[i]] != sums[names[j]] {
			return sums[names[i]] > sums[names[j]]
		}
		return names[i] < names[j]
	})

	for _, p := range names {
		ds := Dataset{Label: p, Data: make([]int, len(window))}
		for i, d := range window {
			ds.Data[i] = d.ByPractice[p]
		}
		c.Datasets = append(c.Datasets, ds)
	}
	return c
}

// DayDetail returns the records logged on date, one per practice.
func DayDetail(rs []practice.Record, date string) []practice.Record {
	byPractice := map[string]int{}
	for _, r := range rs {
		if r.Date == date {
			byPractice[r.Practice] += r.Count
		}
	}
	out := make([]practice.Record, 0, len(byPractice))
	for p, n := range byPractice {
		out = append(out, practice.Record{Date: date, Practice: p, Count: n})
	}
	practice.SortRecords(out)
	return out
}

// Build derives a View from a backend summary. The backend's own total,
// totals and streak win when it reports them.
func Build(s practice.Summary, today time.Time, days int) View {
	v := View{
		UserID: s.UserID,
		Total:  s.Total,
		Streak: s.Streak,
		Totals: s.Totals,
	}
	if v.Total == 0 {
		v.Total = Total(s.Records)
	}
	if len(v.Totals) == 0 {
		v.Totals = Totals(s.Records)
	}
	if !s.StreakKnown {
		v.Streak = Streak(s.Records, today)
	}
	v.Window = Window(s.Records, today, days)
	v.Chart = Stacked(v.Window)
	return v
}
