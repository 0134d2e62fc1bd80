package poker

import (
	"sort"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
)

// HandValue is the comparable value of the best five-card hand that can be
// made from a set of cards
type HandValue struct {
	Category Category `json:"category"`
	// Tiebreak ranks in significance order; compared lexicographically
	// within the same category
	Tiebreak []int `json:"tiebreak"`
}

// Compare returns <0 if v is weaker than other, 0 on a tie, >0 if stronger
func (v *HandValue) Compare(other *HandValue) int {
	if v.Category != other.Category {
		return int(v.Category) - int(other.Category)
	}

	for i := range v.Tiebreak {
		if i >= len(other.Tiebreak) {
			break
		}

		if v.Tiebreak[i] != other.Tiebreak[i] {
			return v.Tiebreak[i] - other.Tiebreak[i]
		}
	}

	return 0
}

// Evaluate returns the value of the best five-card high hand from the given
// cards. Works for any count >= 5; hold'em passes seven (two hole + board).
func Evaluate(cards []*deck.Card) *HandValue {
	ranks := make([]int, len(cards))
	for i, card := range cards {
		ranks[i] = card.Rank
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ranks)))

	bySuit := make(map[deck.Suit][]int)
	for _, card := range cards {
		bySuit[card.Suit] = append(bySuit[card.Suit], card.Rank)
	}

	var flushRanks []int
	for _, suited := range bySuit {
		if len(suited) >= 5 {
			sort.Sort(sort.Reverse(sort.IntSlice(suited)))
			flushRanks = suited
			break
		}
	}

	if flushRanks != nil {
		if high, ok := straightHigh(flushRanks); ok {
			if high == deck.Ace {
				return &HandValue{Category: RoyalFlush, Tiebreak: []int{high}}
			}
			return &HandValue{Category: StraightFlush, Tiebreak: []int{high}}
		}
	}

	quads, trips, pairs, singles := groupByCount(ranks)

	if len(quads) > 0 {
		kicker := highestExcluding(ranks, quads[0])
		return &HandValue{Category: FourOfAKind, Tiebreak: []int{quads[0], kicker}}
	}

	if len(trips) > 0 && (len(pairs) > 0 || len(trips) > 1) {
		pair := 0
		if len(trips) > 1 {
			pair = trips[1]
		}
		if len(pairs) > 0 && pairs[0] > pair {
			pair = pairs[0]
		}
		return &HandValue{Category: FullHouse, Tiebreak: []int{trips[0], pair}}
	}

	if flushRanks != nil {
		return &HandValue{Category: Flush, Tiebreak: flushRanks[:5]}
	}

	if high, ok := straightHigh(ranks); ok {
		return &HandValue{Category: Straight, Tiebreak: []int{high}}
	}

	if len(trips) > 0 {
		kickers := topExcluding(singles, 2)
		return &HandValue{Category: ThreeOfAKind, Tiebreak: append([]int{trips[0]}, kickers...)}
	}

	if len(pairs) >= 2 {
		kicker := highestExcluding(ranks, pairs[0], pairs[1])
		return &HandValue{Category: TwoPair, Tiebreak: []int{pairs[0], pairs[1], kicker}}
	}

	if len(pairs) == 1 {
		kickers := topExcluding(singles, 3)
		return &HandValue{Category: OnePair, Tiebreak: append([]int{pairs[0]}, kickers...)}
	}

	return &HandValue{Category: HighCard, Tiebreak: ranks[:min(5, len(ranks))]}
}

// groupByCount splits descending-sorted ranks into quads, trips, pairs, and
// singles, each slice itself in descending rank order
func groupByCount(sorted []int) (quads, trips, pairs, singles []int) {
	i := 0
	for i < len(sorted) {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}

		switch j - i {
		case 4:
			quads = append(quads, sorted[i])
		case 3:
			trips = append(trips, sorted[i])
		case 2:
			pairs = append(pairs, sorted[i])
		default:
			singles = append(singles, sorted[i])
		}

		i = j
	}

	return
}

// straightHigh returns the high card of the best straight found in the
// descending-sorted ranks, treating the ace as both high and low
func straightHigh(sorted []int) (int, bool) {
	uniq := make([]int, 0, len(sorted))
	seen := make(map[int]bool)
	for _, rank := range sorted {
		if !seen[rank] {
			seen[rank] = true
			uniq = append(uniq, rank)
		}
	}

	if seen[deck.Ace] {
		uniq = append(uniq, 1) // wheel
	}

	run := 1
	for i := 1; i < len(uniq); i++ {
		if uniq[i] == uniq[i-1]-1 {
			run++
			if run == 5 {
				return uniq[i] + 4, true
			}
		} else {
			run = 1
		}
	}

	return 0, false
}

func highestExcluding(sorted []int, exclude ...int) int {
	for _, rank := range sorted {
		excluded := false
		for _, ex := range exclude {
			if rank == ex {
				excluded = true
				break
			}
		}
		if !excluded {
			return rank
		}
	}

	return 0
}

func topExcluding(singles []int, n int) []int {
	if len(singles) < n {
		n = len(singles)
	}

	return singles[:n]
}

func min(a, b int) int {
	if a < b {
		return a
	}

	return b
}
