package search

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatchIsConjunctive(t *testing.T) {
	owner := uuid.New()
	album := uuid.New()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	photo := Candidate{
		ID:         uuid.New(),
		OwnerID:    owner,
		Filename:   "Beach_Sunset.JPG",
		UploadDate: day,
		TagNames:   []string{"beach", "summer"},
		AlbumIDs:   []uuid.UUID{album},
	}

	from := day.Add(-time.Hour)
	to := day
	other := uuid.New()

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"any tag", Filter{Tags: []string{"winter", "summer"}}, true},
		{"no tag", Filter{Tags: []string{"winter"}}, false},
		{"album", Filter{AlbumID: &album}, true},
		{"other album", Filter{AlbumID: &other}, false},
		{"inclusive range", Filter{From: &from, To: &to}, true},
		{"case insensitive name", Filter{FilenameSubstring: "sunset"}, true},
		{"all predicates", Filter{Tags: []string{"beach"}, AlbumID: &album, From: &from, FilenameSubstring: "beach"}, true},
		{"one predicate fails", Filter{Tags: []string{"beach"}, FilenameSubstring: "mountain"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Normalize().Match(owner, photo))
		})
	}

	assert.False(t, Filter{}.Match(uuid.New(), photo), "photos of other users never match")
}

func TestNormalizeDropsBlankAndDuplicateTags(t *testing.T) {
	f := Filter{Tags: []string{" beach ", "", "beach", "sea"}, FilenameSubstring: "  x "}.Normalize()
	assert.Equal(t, []string{"beach", "sea"}, f.Tags)
	assert.Equal(t, "x", f.FilenameSubstring)
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	from := time.Now()
	to := from.Add(-time.Minute)
	require.ErrorIs(t, Filter{From: &from, To: &to}.Validate(), ErrInvalidFilter)
	require.NoError(t, Filter{From: &from, To: &from}.Validate())
}

func TestPageNormalizeAndWindow(t *testing.T) {
	assert.Equal(t, Page{Skip: 0, Limit: DefaultLimit}, Page{Skip: -3}.Normalize())
	assert.Equal(t, MaxLimit, Page{Limit: MaxLimit + 1}.Normalize().Limit)

	lo, hi := Page{Skip: 2, Limit: 2}.Window(3)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 3, hi)

	lo, hi = Page{Skip: 10, Limit: 2}.Window(3)
	assert.Equal(t, lo, hi)
}

func TestNewestFirstBreaksTiesByID(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	c := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	items := []Candidate{
		{ID: b, UploadDate: day},
		{ID: c, UploadDate: day.Add(time.Hour)},
		{ID: a, UploadDate: day},
	}
	sort.Slice(items, func(i, j int) bool {
		return NewestFirst(items[i].UploadDate, items[i].ID, items[j].UploadDate, items[j].ID)
	})
	assert.Equal(t, []uuid.UUID{c, a, b}, []uuid.UUID{items[0].ID, items[1].ID, items[2].ID})

	assert.True(t, OldestFirst(day, b, day.Add(time.Second), a))
	assert.True(t, OldestFirst(day, a, day, b))
}

func TestBuildSQLComposesPredicates(t *testing.T) {
	owner := uuid.New()
	album := uuid.New()
	from := time.Now()

	q := BuildSQL("p.id", owner, Filter{
		Tags:              []string{"beach"},
		AlbumID:           &album,
		From:              &from,
		FilenameSubstring: "50%_off",
	}, Page{Skip: 5})

	assert.Contains(t, q.SQL, "p.user_id = $1")
	assert.Contains(t, q.SQL, "t.name = ANY($2)")
	assert.Contains(t, q.SQL, "pa.album_id = $3")
	assert.Contains(t, q.SQL, "p.upload_date >= $4")
	assert.Contains(t, q.SQL, "p.filename ILIKE $5")
	assert.Contains(t, q.SQL, "ORDER BY p.upload_date DESC, p.id ASC")
	assert.NotContains(t, q.SQL, "p.upload_date <=")
	require.Len(t, q.Args, 7)
	assert.Equal(t, `%50\%\_off%`, q.Args[4])
	assert.Equal(t, 5, q.Args[5])
	assert.Equal(t, DefaultLimit, q.Args[6])
}

func TestBuildSQLWithoutFiltersOnlyScopesOwner(t *testing.T) {
	q := BuildSQL("p.id", uuid.New(), Filter{}, Page{})
	assert.Equal(t, 1, strings.Count(q.SQL, "$1"))
	assert.NotContains(t, q.SQL, "EXISTS")
	assert.Len(t, q.Args, 3)
}
