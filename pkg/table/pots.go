package table

import "sort"

// Pot is one pot (main or side) with the players eligible to win it
type Pot struct {
	Amount   int64    `json:"amount"`
	Eligible []string `json:"eligible"`
}

// Winner is one player's share of a pot
type Winner struct {
	PlayerID string `json:"playerId"`
	Amount   int64  `json:"amount"`
	Hand     string `json:"hand,omitempty"`
}

// PotResult is one settled pot
type PotResult struct {
	Amount  int64    `json:"amount"`
	Winners []Winner `json:"winners"`
}

// buildPots layers contributions into a main pot and side pots. Each all-in
// level among contenders caps a pot; folded players' chips are in the pots
// but folded players are never eligible. Dead money above the highest
// contender level folds into the final pot.
func buildPots(contributions map[string]int64, inHand map[string]bool) []Pot {
	levelSet := make(map[int64]bool)
	for id, amount := range contributions {
		if inHand[id] && amount > 0 {
			levelSet[amount] = true
		}
	}

	levels := make([]int64, 0, len(levelSet))
	for level := range levelSet {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	if len(levels) == 0 {
		return nil
	}

	pots := make([]Pot, 0, len(levels))
	var floor int64
	for _, level := range levels {
		pot := Pot{}
		for id, amount := range contributions {
			if amount > floor {
				capped := amount
				if capped > level {
					capped = level
				}
				pot.Amount += capped - floor
			}

			if inHand[id] && amount >= level {
				pot.Eligible = append(pot.Eligible, id)
			}
		}

		sort.Strings(pot.Eligible)
		pots = append(pots, pot)
		floor = level
	}

	// contributions above the top contender level are dead money
	top := levels[len(levels)-1]
	for _, amount := range contributions {
		if amount > top {
			pots[len(pots)-1].Amount += amount - top
		}
	}

	return pots
}
