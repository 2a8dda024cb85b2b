package retrieve

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tactimerge/internal/corpus/corpustest"
	"github.com/ppiankov/tactimerge/internal/model"
)

func seeded(t *testing.T) *Retriever {
	t.Helper()
	store, emb := corpustest.Open(t)
	reports := []model.MatchReport{
		corpustest.Report("b1", "barcelona", 2009, "Barcelona pressed high and suffocated the opponent with short passing", model.MatchStats{}),
		corpustest.Report("b2", "barcelona", 2011, "Relentless high pressing and tiki-taka possession from Barcelona", model.MatchStats{}),
		corpustest.Report("b3", "barcelona", 2016, "Barcelona relied on the front three on the counter attack", model.MatchStats{}),
		corpustest.Report("b4", "barcelona", 2021, "A young Barcelona side struggled to create chances", model.MatchStats{}),
		corpustest.Report("l1", "leicester", 2016, "Leicester sat deep in a compact 4-4-2 and pressed high on the break", model.MatchStats{}),
	}
	reports[4].Competition = "premier-league"
	for _, r := range reports {
		corpustest.Add(t, store, emb, r)
	}
	return New(store, emb, Config{DefaultK: 3, MaxK: 4}, nil, nil)
}

func TestRetrieve_FiltersBeforeRanking(t *testing.T) {
	r := seeded(t)
	set, err := r.Retrieve(context.Background(), model.Query{Team: "Barcelona", Intent: "pressed high", Eras: model.EraRange{From: 2008, To: 2012}}, 10)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b1", "b2"}, set.IDs())
	for _, e := range set.Items {
		assert.Equal(t, "barcelona", e.Report.Team)
		assert.True(t, e.Report.Year >= 2008 && e.Report.Year <= 2012)
	}
}

func TestRetrieve_KDefaultsAndCap(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	set, err := r.Retrieve(ctx, model.Query{Team: "barcelona"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	set, err = r.Retrieve(ctx, model.Query{Team: "barcelona"}, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())

	set, err = r.Retrieve(ctx, model.Query{Team: "barcelona"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestRetrieve_RankedAndDeduplicated(t *testing.T) {
	r := seeded(t)
	set, err := r.Retrieve(context.Background(), model.Query{Team: "barcelona", Intent: "high pressing"}, 4)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i, e := range set.Items {
		assert.False(t, seen[e.Report.ID], "duplicate %s", e.Report.ID)
		seen[e.Report.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, set.Items[i-1].Score, e.Score)
		}
	}
	assert.Equal(t, "b2", set.Items[0].Report.ID)
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	set, err := r.Retrieve(ctx, model.Query{Team: "Arsenal"}, 5)
	require.NoError(t, err)
	assert.True(t, set.Empty())
	assert.NotNil(t, set.Items)

	set, err = r.Retrieve(ctx, model.Query{Team: "leicester", Competition: "Serie A"}, 5)
	require.NoError(t, err)
	assert.True(t, set.Empty())

	set, err = r.Retrieve(ctx, model.Query{Team: "leicester", Competition: "Premier League"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, set.IDs())
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	store, emb := corpustest.Open(t)
	r := New(store, emb, Config{}, nil, nil)
	set, err := r.Retrieve(context.Background(), model.Query{Team: "barcelona"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestRetrieve_TeamRequired(t *testing.T) {
	r := seeded(t)
	_, err := r.Retrieve(context.Background(), model.Query{}, 5)
	assert.ErrorIs(t, err, model.ErrInvalidTag)
}

func TestRetrieve_LimitReturnedWhenEnoughMatch(t *testing.T) {
	store, emb := corpustest.Open(t)
	// Many close matches for another team must not crowd out the filtered team.
	for i := range 30 {
		corpustest.Add(t, store, emb, corpustest.Report(fmt.Sprintf("x%02d", i), "other", 2010, "high pressing high pressing", model.MatchStats{}))
	}
	for i := range 3 {
		corpustest.Add(t, store, emb, corpustest.Report(fmt.Sprintf("t%d", i), "target", 2010, fmt.Sprintf("unrelated report number %d", i), model.MatchStats{}))
	}
	r := New(store, emb, Config{DefaultK: 3, MaxK: 3}, nil, nil)
	set, err := r.Retrieve(context.Background(), model.Query{Team: "target", Intent: "high pressing"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
}

func TestIntent(t *testing.T) {
	assert.Equal(t, "manchester united tactical style", Intent(model.Query{Team: "manchester-united"}))
	assert.Equal(t, "wing play", Intent(model.Query{Team: "x", Intent: " wing play "}))
}
