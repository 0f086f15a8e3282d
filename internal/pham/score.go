// Package pham derives the four repository quality scores (popularity,
// hotness, activity, maturity) from API metadata fused with scraped HTML
// counters. The calibration constants are frozen: scores are comparable
// across runs and across repositories, and the tests pin every constant.
package pham

import (
	"math"
	"time"
)

// Calibration references. A raw component equals 1.0 exactly at its
// reference value, so a repo hitting every reference scores 1000.
const (
	popStarRef = 50000
	popSubRef  = 5000
	popForkRef = 10000

	hotRecentWeeks = 4
	hotHalfLife    = 4
	hotDecayWeeks  = 250
	hotYouthRamp   = 26
	hotYouthFloor  = 0.35
	hotPopScale    = 400
	hotStarThresh  = 400

	actAnnualRef = 1200

	matCommitsRef  = 5000
	matReleasesRef = 100
	matContribRef  = 200
	matAgeRefWeeks = 208
	matSizeRef     = 500
)

const (
	secondsPerWeek = 604800
	epsilon        = 1e-9
	// weeksSincePushDefault applies when neither pushed_at nor updated_at
	// is usable.
	weeksSincePushDefault = 52
)

// Input is the merged view of API metadata and scraped counters the engine
// scores. Commits, Releases and Contributors come from the HTML extractor;
// the rest from the repository JSON and the participation endpoint.
type Input struct {
	Stargazers  int
	Subscribers int
	Forks       int
	// SizeKB is the API's size field, expressed in kilobytes.
	SizeKB int

	CreatedAt time.Time
	// PushedAt is preferred; UpdatedAt is the fallback. When both are
	// zero the engine assumes a year since the last push.
	PushedAt  time.Time
	UpdatedAt time.Time

	// Participation holds up to 52 weekly commit counts, oldest first.
	Participation []int

	Commits      int
	Releases     int
	Contributors int
}

// Scores are the rounded dimension scores. They are deliberately unclamped;
// a runaway repo may exceed 1000.
type Scores struct {
	Popularity int `json:"p"`
	Hotness    int `json:"h"`
	Activity   int `json:"a"`
	Maturity   int `json:"m"`
}

// Result is the full scoring outcome.
type Result struct {
	Scores Scores
	// Avg averages popularity, activity and maturity; hotness is a
	// momentum measure and stays out of the average.
	Avg       int
	Highlight Highlight
}

// derived carries the intermediate quantities shared between the score
// formulas and highlight selection.
type derived struct {
	ageWeeks       float64
	weeksSincePush float64
	recentCommits  int
	annualCommits  int
	activeWeeks    int
	sizeMB         float64
	ratio          float64

	popularity float64
	hotness    float64
	activity   float64
	maturity   float64

	normCommits      float64
	normContributors float64
	normReleases     float64
}

// Compute scores the input at the given instant. Identical inputs yield
// identical results; now is explicit so callers control determinism.
func Compute(in Input, now time.Time) (*Result, error) {
	d := derive(in, now)

	highlight, err := selectHighlight(in, d)
	if err != nil {
		return nil, err
	}

	scores := Scores{
		Popularity: round(d.popularity),
		Hotness:    round(d.hotness),
		Activity:   round(d.activity),
		Maturity:   round(d.maturity),
	}
	avg := round(float64(scores.Popularity+scores.Activity+scores.Maturity) / 3)
	return &Result{Scores: scores, Avg: avg, Highlight: highlight}, nil
}

func derive(in Input, now time.Time) derived {
	var d derived

	if !in.CreatedAt.IsZero() {
		d.ageWeeks = math.Max(0, now.Sub(in.CreatedAt).Seconds()/secondsPerWeek)
	}
	switch {
	case !in.PushedAt.IsZero():
		d.weeksSincePush = math.Max(0, now.Sub(in.PushedAt).Seconds()/secondsPerWeek)
	case !in.UpdatedAt.IsZero():
		d.weeksSincePush = math.Max(0, now.Sub(in.UpdatedAt).Seconds()/secondsPerWeek)
	default:
		d.weeksSincePush = weeksSincePushDefault
	}

	participation := in.Participation
	if len(participation) > 52 {
		participation = participation[len(participation)-52:]
	}
	for i, weekly := range participation {
		d.annualCommits += weekly
		if weekly > 0 {
			d.activeWeeks++
		}
		if i >= len(participation)-hotRecentWeeks {
			d.recentCommits += weekly
		}
	}
	d.sizeMB = float64(in.SizeKB) / 1000

	// Popularity: log-scaled community size.
	d.popularity = 100 * (6*logNorm(float64(in.Stargazers), popStarRef) +
		2*logNorm(float64(in.Subscribers), popSubRef) +
		2*logNorm(float64(in.Forks), popForkRef))

	// Hotness: recency of pushes and commit momentum, damped for very old
	// and for very young repositories.
	recency := math.Pow(0.5, d.weeksSincePush/hotHalfLife)
	popMomentum := math.Min(1, d.popularity/math.Max(hotPopScale, 1))
	avgWeekly := 0.0
	if d.annualCommits > 0 {
		avgWeekly = float64(d.annualCommits) / 52
	}
	baseline := math.Max(1, avgWeekly*hotRecentWeeks)
	d.ratio = float64(d.recentCommits) / baseline
	momentum := 0.0
	if d.ratio > 0 {
		momentum = math.Log1p(d.ratio)
	}
	agePenalty := 1 / (1 + d.ageWeeks/hotDecayWeeks)
	youthDamping := hotYouthFloor
	if d.ageWeeks > 0 {
		youthDamping = clamp(d.ageWeeks/math.Max(hotYouthRamp, 1), hotYouthFloor, 1)
	}
	d.hotness = 100 * (1.5*recency + 1.5*momentum + 7*popMomentum) * agePenalty * youthDamping

	// Activity: sub-linear commit volume plus linear consistency.
	d.activity = 100 * (6.5*powNorm(float64(d.annualCommits), actAnnualRef, 0.6, 0) +
		3.5*linNorm(float64(d.activeWeeks), 52))

	// Maturity: accumulated history, each component capped.
	d.normCommits = powNorm(float64(in.Commits), matCommitsRef, 1.2, 3.5)
	d.normContributors = powNorm(float64(in.Contributors), matContribRef, 1.15, 3.0)
	d.normReleases = powNorm(float64(in.Releases), matReleasesRef, 1.1, 3.0)
	d.maturity = 100 * (3.5*d.normCommits +
		2.5*d.normContributors +
		2.0*d.normReleases +
		1.5*logNorm(d.ageWeeks, matAgeRefWeeks) +
		0.5*sizeNorm(d.sizeMB))

	return d
}

// logNorm maps v onto [0,1] logarithmically with 1.0 at the reference.
// Zero and negative values map to 0 rather than -Inf.
func logNorm(v, ref float64) float64 {
	if v <= 0 {
		return 0
	}
	if ref <= 0 {
		return math.Log1p(v)
	}
	return math.Log1p(v) / math.Log1p(ref)
}

func linNorm(v, ref float64) float64 {
	if v <= 0 {
		return 0
	}
	return v / math.Max(ref, epsilon)
}

// powNorm raises the capped ratio v/ref to exponent e. A limit of 0 means
// uncapped.
func powNorm(v, ref, e, limit float64) float64 {
	if v <= 0 {
		return 0
	}
	r := v / math.Max(ref, 1)
	if limit > 0 && r > limit {
		r = limit
	}
	return math.Pow(r, e)
}

// sizeNorm saturates at the reference size: beyond it a bigger tree is not
// more mature.
func sizeNorm(mb float64) float64 {
	if mb <= 0 {
		return 0
	}
	if mb <= matSizeRef {
		return math.Pow(mb/matSizeRef, 0.7)
	}
	return 1
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round(v float64) int {
	return int(math.Round(v))
}
