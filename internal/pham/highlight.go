package pham

import (
	"errors"
	"fmt"
	"sort"
)

// ErrHighlightUnavailable is returned when no dimension yields a highlight.
var ErrHighlightUnavailable = errors.New("no dimension produced a highlight")

// Highlight is the one-line narrative attached to the scores. Component is
// set only for maturity, naming the sub-dimension that carried it.
type Highlight struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Component string `json:"component,omitempty"`
}

const (
	HighlightPopularity = "popularity"
	HighlightHotness    = "hotness"
	HighlightActivity   = "activity"
	HighlightMaturity   = "maturity"

	ComponentCommits      = "commits"
	ComponentContributors = "contributors"
	ComponentReleases     = "releases"
)

// selectHighlight walks the dimensions from highest raw score down and
// takes the first that produces one. Hotness is the only dimension allowed
// to decline.
func selectHighlight(in Input, d derived) (Highlight, error) {
	type candidate struct {
		score float64
		build func() *Highlight
	}
	candidates := []candidate{
		{d.popularity, func() *Highlight { return popularityHighlight(in) }},
		{d.hotness, func() *Highlight { return hotnessHighlight(in, d) }},
		{d.activity, func() *Highlight { return activityHighlight(d) }},
		{d.maturity, func() *Highlight { return maturityHighlight(in, d) }},
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	for _, c := range candidates {
		if h := c.build(); h != nil {
			return *h, nil
		}
	}
	return Highlight{}, ErrHighlightUnavailable
}

func popularityHighlight(in Input) *Highlight {
	return &Highlight{
		Type: HighlightPopularity,
		Message: fmt.Sprintf("Has attracted %s %s and %s %s",
			formatCount(in.Stargazers), plural(in.Stargazers, "stargazer"),
			formatCount(in.Forks), plural(in.Forks, "fork")),
	}
}

// hotnessHighlight declines when nothing about the repo is actually hot:
// no fresh push, no commit surge, and a community below the threshold.
func hotnessHighlight(in Input, d derived) *Highlight {
	switch {
	case d.weeksSincePush <= 1:
		return &Highlight{Type: HighlightHotness, Message: "Pushed within the last week"}
	case d.ratio >= 1.2:
		return &Highlight{
			Type:    HighlightHotness,
			Message: fmt.Sprintf("Committing at %sx its yearly pace", formatRatio(d.ratio)),
		}
	case d.recentCommits > hotRecentWeeks:
		return &Highlight{
			Type: HighlightHotness,
			Message: fmt.Sprintf("%s %s in the last 4 weeks",
				formatCount(d.recentCommits), plural(d.recentCommits, "commit")),
		}
	case in.Stargazers >= hotStarThresh:
		return &Highlight{
			Type: HighlightHotness,
			Message: fmt.Sprintf("Drawing attention with %s %s",
				formatCount(in.Stargazers), plural(in.Stargazers, "stargazer")),
		}
	}
	return nil
}

func activityHighlight(d derived) *Highlight {
	return &Highlight{
		Type: HighlightActivity,
		Message: fmt.Sprintf("Recorded %s %s over the last year",
			formatCount(d.annualCommits), plural(d.annualCommits, "commit")),
	}
}

// maturityHighlight names the sub-component with the largest normalized
// ratio; ties resolve commits, then contributors, then releases.
func maturityHighlight(in Input, d derived) *Highlight {
	age := formatAge(d.ageWeeks)
	component, message := ComponentCommits, fmt.Sprintf("Battle-tested with %s %s over %s",
		formatCount(in.Commits), plural(in.Commits, "commit"), age)
	best := d.normCommits
	if d.normContributors > best {
		best = d.normContributors
		component = ComponentContributors
		message = fmt.Sprintf("Built by %s %s over %s",
			formatCount(in.Contributors), plural(in.Contributors, "contributor"), age)
	}
	if d.normReleases > best {
		component = ComponentReleases
		message = fmt.Sprintf("Shipped %s %s over %s",
			formatCount(in.Releases), plural(in.Releases, "release"), age)
	}
	return &Highlight{Type: HighlightMaturity, Message: message, Component: component}
}
