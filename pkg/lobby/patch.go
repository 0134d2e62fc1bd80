package lobby

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
)

// patch op constants
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// PatchOperation is one addressed operation against the listing document tree
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

const pathPrefix = "/tables/"

// patchableFields is the allow-list of per-listing paths. Unknown paths are
// rejected before they can reach a client deserializer.
var patchableFields = map[string]bool{
	"name":             true,
	"gameType":         true,
	"currentPlayers":   true,
	"maxPlayers":       true,
	"isPrivate":        true,
	"requiresPassword": true,
	"avgPot":           true,
	"handsPerHour":     true,
	"waitingList":      true,
	"status":           true,
	"stakes":           true,
	"playerList":       true,
}

// GeneratePatch converts change records into addressed operations.
// Every emitted path is validated against the allow-list; a change that
// would produce an unrecognized path fails the whole generation.
func GeneratePatch(changes []Change) ([]PatchOperation, error) {
	patch := make([]PatchOperation, 0, len(changes))

	for _, change := range changes {
		switch change.Type {
		case TableCreated:
			op := PatchOperation{
				Op:    OpAdd,
				Path:  pathPrefix + change.TableID,
				Value: change.Listing,
			}
			if err := validatePath(op.Path); err != nil {
				return nil, err
			}
			patch = append(patch, op)

		case TableRemoved:
			op := PatchOperation{
				Op:   OpRemove,
				Path: pathPrefix + change.TableID,
			}
			if err := validatePath(op.Path); err != nil {
				return nil, err
			}
			patch = append(patch, op)

		case TableUpdated, StatsUpdated:
			for _, field := range sortedFieldNames(change.Fields) {
				op := PatchOperation{
					Op:    OpReplace,
					Path:  fmt.Sprintf("%s%s/%s", pathPrefix, change.TableID, field),
					Value: change.Fields[field],
				}
				if err := validatePath(op.Path); err != nil {
					return nil, err
				}
				patch = append(patch, op)
			}

		default:
			return nil, apperror.Protocol(fmt.Sprintf("unknown change type: %s", change.Type))
		}
	}

	return patch, nil
}

// validatePath checks a patch path against the allow-list of prefixes and
// known field names
func validatePath(path string) error {
	if !strings.HasPrefix(path, pathPrefix) {
		return apperror.Protocol(fmt.Sprintf("patch path outside allowed prefix: %s", path))
	}

	rest := strings.TrimPrefix(path, pathPrefix)
	parts := strings.Split(rest, "/")

	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return apperror.Protocol("patch path missing table id")
		}
		return nil
	case 2:
		if parts[0] == "" {
			return apperror.Protocol("patch path missing table id")
		}
		if !patchableFields[parts[1]] {
			return apperror.Protocol(fmt.Sprintf("patch path targets unknown field: %s", parts[1]))
		}
		return nil
	default:
		return apperror.Protocol(fmt.Sprintf("patch path too deep: %s", path))
	}
}

// ApplyPatch replays operations against a snapshot, in order, returning a
// new map; the input is never mutated. Add and replace are idempotent, and
// removing an absent table is a no-op.
func ApplyPatch(snapshot map[string]*Listing, patch []PatchOperation) (map[string]*Listing, error) {
	result := CloneMap(snapshot)

	for _, op := range patch {
		if err := validatePath(op.Path); err != nil {
			return nil, err
		}

		rest := strings.TrimPrefix(op.Path, pathPrefix)
		parts := strings.Split(rest, "/")
		tableID := parts[0]

		switch op.Op {
		case OpAdd:
			listing, ok := op.Value.(*Listing)
			if !ok {
				return nil, apperror.Protocol(fmt.Sprintf("add at %s requires a listing value", op.Path))
			}
			result[tableID] = listing.Clone()

		case OpRemove:
			delete(result, tableID)

		case OpReplace:
			if len(parts) != 2 {
				return nil, apperror.Protocol(fmt.Sprintf("replace requires a field path: %s", op.Path))
			}

			listing, ok := result[tableID]
			if !ok {
				return nil, apperror.NotFound(fmt.Sprintf("replace targets unknown table: %s", tableID))
			}

			if err := setField(listing, parts[1], op.Value); err != nil {
				return nil, err
			}

		default:
			return nil, apperror.Protocol(fmt.Sprintf("unknown patch op: %s", op.Op))
		}
	}

	return result, nil
}

func setField(listing *Listing, field string, value interface{}) error {
	ok := true

	switch field {
	case "name":
		listing.Name, ok = value.(string)
	case "gameType":
		listing.GameType, ok = value.(string)
	case "currentPlayers":
		listing.CurrentPlayers, ok = value.(int)
	case "maxPlayers":
		listing.MaxPlayers, ok = value.(int)
	case "isPrivate":
		listing.IsPrivate, ok = value.(bool)
	case "requiresPassword":
		listing.RequiresPassword, ok = value.(bool)
	case "avgPot":
		listing.AvgPot, ok = value.(float64)
	case "handsPerHour":
		listing.HandsPerHour, ok = value.(float64)
	case "waitingList":
		listing.WaitingList, ok = value.(int)
	case "status":
		listing.Status, ok = value.(string)
	case "stakes":
		listing.Stakes, ok = value.(Stakes)
	case "playerList":
		var list []ListedPlayer
		list, ok = value.([]ListedPlayer)
		if ok {
			listing.PlayerList = make([]ListedPlayer, len(list))
			copy(listing.PlayerList, list)
		}
	default:
		return apperror.Protocol(fmt.Sprintf("replace targets unknown field: %s", field))
	}

	if !ok {
		return apperror.Protocol(fmt.Sprintf("replace at %s has wrong value type %T", field, value))
	}

	return nil
}

func sortedFieldNames(fields map[string]interface{}) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}

	// deterministic patch order
	sort.Strings(names)
	return names
}
