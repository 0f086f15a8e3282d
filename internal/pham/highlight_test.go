package pham

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopularityHighlightMessage(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	res, err := Compute(referenceInput(now), now)
	require.NoError(t, err)

	assert.Equal(t, HighlightPopularity, res.Highlight.Type)
	assert.Equal(t, "Has attracted 50k stargazers and 10k forks", res.Highlight.Message)
	assert.Empty(t, res.Highlight.Component)
}

func TestHighlightFollowsTopScore(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	// Nothing but history: maturity dominates and picks commits.
	in := Input{
		CreatedAt: weeksAgo(now, 312),
		PushedAt:  weeksAgo(now, 30),
		Commits:   4000,
	}
	res, err := Compute(in, now)
	require.NoError(t, err)
	assert.Equal(t, HighlightMaturity, res.Highlight.Type)
	assert.Equal(t, ComponentCommits, res.Highlight.Component)
	assert.Equal(t, "Battle-tested with 4k commits over 6 years", res.Highlight.Message)
}

func TestMaturityComponentSelection(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	base := Input{CreatedAt: weeksAgo(now, 312), PushedAt: weeksAgo(now, 30)}

	tests := []struct {
		name      string
		mutate    func(*Input)
		component string
		message   string
	}{
		{
			"commits dominate",
			func(in *Input) { in.Commits = 5000; in.Contributors = 10; in.Releases = 1 },
			ComponentCommits,
			"Battle-tested with 5k commits over 6 years",
		},
		{
			"contributors dominate",
			func(in *Input) { in.Commits = 100; in.Contributors = 300; in.Releases = 1 },
			ComponentContributors,
			"Built by 300 contributors over 6 years",
		},
		{
			"releases dominate",
			func(in *Input) { in.Commits = 100; in.Contributors = 1; in.Releases = 150 },
			ComponentReleases,
			"Shipped 150 releases over 6 years",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			res, err := Compute(in, now)
			require.NoError(t, err)
			require.Equal(t, HighlightMaturity, res.Highlight.Type)
			assert.Equal(t, tt.component, res.Highlight.Component)
			assert.Equal(t, tt.message, res.Highlight.Message)
		})
	}
}

func TestHotnessHighlightDeclines(t *testing.T) {
	// None of the hotness conditions hold: stale push, no surge, few
	// stars. The builder must return nil regardless of the score.
	d := derived{weeksSincePush: 10, ratio: 0.5, recentCommits: 2}
	in := Input{Stargazers: 10}
	assert.Nil(t, hotnessHighlight(in, d))
}

func TestHotnessHighlightConditions(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		d       derived
		message string
	}{
		{
			"fresh push",
			Input{},
			derived{weeksSincePush: 0.5, ratio: 0},
			"Pushed within the last week",
		},
		{
			"commit surge",
			Input{},
			derived{weeksSincePush: 2, ratio: 2.5, recentCommits: 10},
			"Committing at 2.5x its yearly pace",
		},
		{
			"recent volume",
			Input{},
			derived{weeksSincePush: 2, ratio: 1.0, recentCommits: 9},
			"9 commits in the last 4 weeks",
		},
		{
			"star threshold",
			Input{Stargazers: 400},
			derived{weeksSincePush: 2, ratio: 0.2, recentCommits: 1},
			"Drawing attention with 400 stargazers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hotnessHighlight(tt.in, tt.d)
			require.NotNil(t, h)
			assert.Equal(t, HighlightHotness, h.Type)
			assert.Equal(t, tt.message, h.Message)
		})
	}
}

func TestHotnessHighlightInSelection(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	// A fresh push plus a burst of commits in the latest week on an old,
	// starless repo: recency and commit momentum lift hotness above
	// maturity and activity.
	participation := make([]int, 52)
	participation[51] = 30
	in := Input{
		CreatedAt:     weeksAgo(now, 300),
		PushedAt:      now,
		Participation: participation,
	}
	res, err := Compute(in, now)
	require.NoError(t, err)
	assert.Equal(t, HighlightHotness, res.Highlight.Type)
	assert.Equal(t, "Pushed within the last week", res.Highlight.Message)
}

func TestActivityHighlightMessage(t *testing.T) {
	d := derived{annualCommits: 1}
	h := activityHighlight(d)
	assert.Equal(t, "Recorded 1 commit over the last year", h.Message)

	d.annualCommits = 1234
	assert.Equal(t, "Recorded 1.2k commits over the last year", activityHighlight(d).Message)
}
