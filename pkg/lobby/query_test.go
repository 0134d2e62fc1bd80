package lobby

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters_Match(t *testing.T) {
	listing := testListing("t1")

	assert.True(t, Filters{}.Match(listing))
	assert.True(t, Filters{GameType: "texas-holdem"}.Match(listing))
	assert.False(t, Filters{GameType: "omaha"}.Match(listing))
	assert.True(t, Filters{Status: StatusPlaying}.Match(listing))
	assert.False(t, Filters{Status: StatusWaiting}.Match(listing))
	assert.True(t, Filters{MinBigBlind: 20}.Match(listing))
	assert.False(t, Filters{MinBigBlind: 50}.Match(listing))
	assert.True(t, Filters{MaxBigBlind: 20}.Match(listing))
	assert.False(t, Filters{MaxBigBlind: 10}.Match(listing))

	full := testListing("t2")
	full.CurrentPlayers = full.MaxPlayers
	assert.False(t, Filters{HideFull: true}.Match(full))
	assert.True(t, Filters{HideFull: true}.Match(listing))

	private := testListing("t3")
	private.IsPrivate = true
	assert.False(t, Filters{HidePrivate: true}.Match(private))
}

func TestRunQuery_defaultSort(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	full := testListing("t-full")
	full.CurrentPlayers = full.MaxPlayers
	full.LastActivity = base.Add(time.Hour)

	stale := testListing("t-stale")
	stale.LastActivity = base

	fresh := testListing("t-fresh")
	fresh.LastActivity = base.Add(time.Minute * 30)

	listings := map[string]*Listing{
		"t-full":  full,
		"t-stale": stale,
		"t-fresh": fresh,
	}

	result := runQuery(listings, Query{})
	require.Len(t, result.Tables, 3)

	// open seats first, then most recent activity
	assert.Equal(t, "t-fresh", result.Tables[0].TableID)
	assert.Equal(t, "t-stale", result.Tables[1].TableID)
	assert.Equal(t, "t-full", result.Tables[2].TableID)
}

func TestRunQuery_cursorPaging(t *testing.T) {
	listings := make(map[string]*Listing)
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("t%02d", i)
		listings[id] = testListing(id)
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		result := runQuery(listings, Query{Limit: 10, Cursor: cursor})
		assert.Equal(t, 25, result.Total)

		for _, listing := range result.Tables {
			assert.False(t, seen[listing.TableID], "table %s returned twice", listing.TableID)
			seen[listing.TableID] = true
		}

		pages++
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 25)
}

func TestRunQuery_limitClamped(t *testing.T) {
	listings := make(map[string]*Listing)
	for i := 0; i < 150; i++ {
		id := fmt.Sprintf("t%03d", i)
		listings[id] = testListing(id)
	}

	result := runQuery(listings, Query{Limit: 1000})
	assert.Len(t, result.Tables, maxPageSize)

	result = runQuery(listings, Query{Limit: -5})
	assert.Len(t, result.Tables, minPageSize)

	result = runQuery(listings, Query{})
	assert.Len(t, result.Tables, defaultPageSize)
}

func TestRunQuery_filtersApplyBeforePaging(t *testing.T) {
	listings := make(map[string]*Listing)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("t%02d", i)
		listing := testListing(id)
		if i%2 == 0 {
			listing.GameType = "omaha"
		}
		listings[id] = listing
	}

	result := runQuery(listings, Query{Filters: Filters{GameType: "omaha"}, Limit: 3})
	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Tables, 3)
	for _, listing := range result.Tables {
		assert.Equal(t, "omaha", listing.GameType)
	}
}

func TestRunQuery_returnsClones(t *testing.T) {
	listings := map[string]*Listing{"t1": testListing("t1")}

	result := runQuery(listings, Query{})
	require.Len(t, result.Tables, 1)

	result.Tables[0].Name = "mutated"
	assert.Equal(t, "Velvet Room", listings["t1"].Name)
}

func TestQueryCache(t *testing.T) {
	cache := newQueryCache(time.Millisecond * 50)

	result := &QueryResult{Total: 1}
	cache.put("key", result)

	got, ok := cache.get("key")
	assert.True(t, ok)
	assert.Same(t, result, got)

	_, ok = cache.get("other")
	assert.False(t, ok)

	time.Sleep(time.Millisecond * 60)
	_, ok = cache.get("key")
	assert.False(t, ok)

	cache.put("key", result)
	cache.invalidate()
	_, ok = cache.get("key")
	assert.False(t, ok)
}

func TestQuery_cacheKeyDistinguishesParams(t *testing.T) {
	a := Query{Filters: Filters{GameType: "omaha"}, Limit: 10}
	b := Query{Filters: Filters{GameType: "omaha"}, Limit: 20}
	c := Query{Filters: Filters{GameType: "holdem"}, Limit: 10}

	assert.NotEqual(t, a.cacheKey(), b.cacheKey())
	assert.NotEqual(t, a.cacheKey(), c.cacheKey())
	assert.Equal(t, a.cacheKey(), Query{Filters: Filters{GameType: "omaha"}, Limit: 10}.cacheKey())
}
