package lobby

import (
	"fmt"
	"sort"
	"time"
)

// page size bounds
const (
	minPageSize     = 1
	maxPageSize     = 100
	defaultPageSize = 20
)

// Filters narrows a listing query. Zero values mean "no constraint".
type Filters struct {
	GameType    string `json:"gameType,omitempty"`
	Status      string `json:"status,omitempty"`
	HideFull    bool   `json:"hideFull,omitempty"`
	HidePrivate bool   `json:"hidePrivate,omitempty"`
	MinBigBlind int64  `json:"minBigBlind,omitempty"`
	MaxBigBlind int64  `json:"maxBigBlind,omitempty"`
}

// Match returns true if the listing satisfies the filters
func (f Filters) Match(l *Listing) bool {
	if f.GameType != "" && f.GameType != l.GameType {
		return false
	}

	if f.Status != "" && f.Status != l.Status {
		return false
	}

	if f.HideFull && !l.HasOpenSeat() {
		return false
	}

	if f.HidePrivate && l.IsPrivate {
		return false
	}

	if f.MinBigBlind > 0 && l.Stakes.BigBlind < f.MinBigBlind {
		return false
	}

	if f.MaxBigBlind > 0 && l.Stakes.BigBlind > f.MaxBigBlind {
		return false
	}

	return true
}

// Query is one listing query. Cursor is the last table id returned by the
// previous page; an empty cursor starts from the top.
type Query struct {
	Filters Filters `json:"filters"`
	SortBy  string  `json:"sortBy,omitempty"`
	Cursor  string  `json:"cursor,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

// QueryResult is a page of listings
type QueryResult struct {
	Tables     []*Listing `json:"tables"`
	NextCursor string     `json:"nextCursor,omitempty"`
	Total      int        `json:"total"`
}

// cacheKey canonicalizes the query parameters. Identical queries inside the
// cache TTL are served from the cached page.
func (q Query) cacheKey() string {
	return fmt.Sprintf("%s|%s|%t|%t|%d|%d|%s|%s|%d",
		q.Filters.GameType, q.Filters.Status, q.Filters.HideFull, q.Filters.HidePrivate,
		q.Filters.MinBigBlind, q.Filters.MaxBigBlind, q.SortBy, q.Cursor, q.Limit)
}

func (q Query) limit() int {
	limit := q.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < minPageSize {
		limit = minPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return limit
}

// runQuery filters, sorts, and pages the listings
func runQuery(listings map[string]*Listing, q Query) *QueryResult {
	matched := make([]*Listing, 0, len(listings))
	for _, listing := range listings {
		if q.Filters.Match(listing) {
			matched = append(matched, listing)
		}
	}

	sortListings(matched, q.SortBy)

	start := 0
	if q.Cursor != "" {
		for i, listing := range matched {
			if listing.TableID == q.Cursor {
				start = i + 1
				break
			}
		}
	}

	limit := q.limit()
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]*Listing, 0, end-start)
	for _, listing := range matched[start:end] {
		page = append(page, listing.Clone())
	}

	result := &QueryResult{
		Tables: page,
		Total:  len(matched),
	}

	if end < len(matched) && len(page) > 0 {
		result.NextCursor = page[len(page)-1].TableID
	}

	return result
}

// sortListings orders listings for paging. The default ordering puts tables
// with an open seat first, then most recent activity; ties break by id so
// cursors stay stable.
func sortListings(listings []*Listing, sortBy string) {
	var less func(a, b *Listing) bool

	switch sortBy {
	case "name":
		less = func(a, b *Listing) bool {
			return a.Name < b.Name
		}
	case "players":
		less = func(a, b *Listing) bool {
			return a.CurrentPlayers > b.CurrentPlayers
		}
	case "stakes":
		less = func(a, b *Listing) bool {
			return a.Stakes.BigBlind > b.Stakes.BigBlind
		}
	default:
		less = func(a, b *Listing) bool {
			aOpen, bOpen := a.HasOpenSeat(), b.HasOpenSeat()
			if aOpen != bOpen {
				return aOpen
			}

			if !a.LastActivity.Equal(b.LastActivity) {
				return a.LastActivity.After(b.LastActivity)
			}

			return a.TableID < b.TableID
		}
	}

	sort.SliceStable(listings, func(i, j int) bool {
		if less(listings[i], listings[j]) {
			return true
		}
		if less(listings[j], listings[i]) {
			return false
		}

		return listings[i].TableID < listings[j].TableID
	})
}

type cacheEntry struct {
	result  *QueryResult
	expires time.Time
}

// queryCache deduplicates identical lobby queries. It is owned by the
// directory actor and only touched from its run loop.
type queryCache struct {
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *queryCache) get(key string) (*QueryResult, bool) {
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}

	return entry.result, true
}

func (c *queryCache) put(key string, result *QueryResult) {
	c.entries[key] = cacheEntry{
		result:  result,
		expires: time.Now().Add(c.ttl),
	}
}

// invalidate drops every cached page; called whenever a listing mutates
func (c *queryCache) invalidate() {
	if len(c.entries) > 0 {
		c.entries = make(map[string]cacheEntry)
	}
}

// prune drops expired entries so the map does not grow without bound
func (c *queryCache) prune() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}

func (c *queryCache) len() int {
	return len(c.entries)
}
