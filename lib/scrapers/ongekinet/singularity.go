package ongekinet

import "log/slog"

// AmbiguousTitle is reused by several distinct charts on the source
// site, which otherwise keys everything by title text.
const AmbiguousTitle = "Singularity"

// SingularityOrders holds the expected discovery order of the ambiguous
// charts per scrape scope. the lengths track the current game content
// version, so they come from configuration rather than code.
type SingularityOrders struct {
	Catalog   []string `json:"catalog"`
	Events    []string `json:"events"`
	Constants []string `json:"constants"`
}

func DefaultSingularityOrders() SingularityOrders {
	return SingularityOrders{
		Catalog: []string{
			"Singularity (technoplanet)",
			"Singularity (Arcaea)",
			"Singularity (ETIA.)",
		},
		Events: []string{
			"Singularity (technoplanet)",
			"Singularity (Arcaea)",
			"Singularity (ETIA.)",
		},
		Constants: []string{
			"Singularity (technoplanet)",
			"Singularity (Arcaea)",
			"Singularity (ETIA.)",
		},
	}
}

// RenameSingularity applies the positional disambiguation rule to the
// matching entry indexes of one scope: when the count equals the
// expected order length each entry is renamed in discovery order,
// otherwise a nonzero count only logs a warning. never guesses.
func RenameSingularity(indexes []int, order []string, rename func(entryIdx int, newTitle string)) {
	if len(indexes) == 0 {
		return
	}
	if len(indexes) != len(order) {
		slog.Warn(
			"unexpected number of ambiguous-title charts, leaving titles unchanged",
			"title", AmbiguousTitle,
			"found", len(indexes),
			"expected", len(order),
		)
		return
	}
	for orderIdx, entryIdx := range indexes {
		rename(entryIdx, order[orderIdx])
	}
}
