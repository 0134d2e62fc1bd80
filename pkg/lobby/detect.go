package lobby

import "sort"

// ChangeType classifies a detected listing change
type ChangeType string

// change type constants
const (
	TableCreated ChangeType = "TABLE_CREATED"
	TableUpdated ChangeType = "TABLE_UPDATED"
	TableRemoved ChangeType = "TABLE_REMOVED"
	StatsUpdated ChangeType = "STATS_UPDATED"
)

// Change is one detected difference between two listing snapshots.
// At most one change is produced per table per pass.
type Change struct {
	Type    ChangeType `json:"type"`
	TableID string     `json:"tableId"`

	// Listing carries the full listing for TABLE_CREATED
	Listing *Listing `json:"listing,omitempty"`

	// Fields carries changed field name → new value for TABLE_UPDATED
	// and STATS_UPDATED
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// statFields are the fields that, when they change alone, collapse into a
// single STATS_UPDATED record
var statFields = map[string]bool{
	"avgPot":       true,
	"handsPerHour": true,
}

// DetectChanges diffs two listing snapshots into typed change records.
// It is a pure function: neither input is mutated, and output order is
// deterministic (by table id).
func DetectChanges(previous, current map[string]*Listing) []Change {
	ids := make([]string, 0, len(previous)+len(current))
	seen := make(map[string]bool)
	for id := range previous {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range current {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	changes := make([]Change, 0)
	for _, id := range ids {
		prev, inPrev := previous[id]
		curr, inCurr := current[id]

		switch {
		case !inPrev:
			changes = append(changes, Change{
				Type:    TableCreated,
				TableID: id,
				Listing: curr.Clone(),
			})
		case !inCurr:
			changes = append(changes, Change{
				Type:    TableRemoved,
				TableID: id,
			})
		default:
			if change, ok := diffListing(id, prev, curr); ok {
				changes = append(changes, change)
			}
		}
	}

	return changes
}

func diffListing(id string, prev, curr *Listing) (Change, bool) {
	fields := make(map[string]interface{})

	if prev.Name != curr.Name {
		fields["name"] = curr.Name
	}
	if prev.GameType != curr.GameType {
		fields["gameType"] = curr.GameType
	}
	if prev.CurrentPlayers != curr.CurrentPlayers {
		fields["currentPlayers"] = curr.CurrentPlayers
	}
	if prev.MaxPlayers != curr.MaxPlayers {
		fields["maxPlayers"] = curr.MaxPlayers
	}
	if prev.IsPrivate != curr.IsPrivate {
		fields["isPrivate"] = curr.IsPrivate
	}
	if prev.RequiresPassword != curr.RequiresPassword {
		fields["requiresPassword"] = curr.RequiresPassword
	}
	if prev.AvgPot != curr.AvgPot {
		fields["avgPot"] = curr.AvgPot
	}
	if prev.HandsPerHour != curr.HandsPerHour {
		fields["handsPerHour"] = curr.HandsPerHour
	}
	if prev.WaitingList != curr.WaitingList {
		fields["waitingList"] = curr.WaitingList
	}
	if prev.Status != curr.Status {
		fields["status"] = curr.Status
	}
	if prev.Stakes != curr.Stakes {
		fields["stakes"] = curr.Stakes
	}
	if !playerListsEqual(prev.PlayerList, curr.PlayerList) {
		list := make([]ListedPlayer, len(curr.PlayerList))
		copy(list, curr.PlayerList)
		fields["playerList"] = list
	}

	if len(fields) == 0 {
		return Change{}, false
	}

	changeType := TableUpdated
	if statsOnly(fields) {
		changeType = StatsUpdated
	}

	return Change{
		Type:    changeType,
		TableID: id,
		Fields:  fields,
	}, true
}

// playerListsEqual compares ordered player lists by position, identity,
// stack, and active flag
func playerListsEqual(a, b []ListedPlayer) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func statsOnly(fields map[string]interface{}) bool {
	for name := range fields {
		if !statFields[name] {
			return false
		}
	}

	return true
}
