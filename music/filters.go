package music

import "slices"

// FilterNone clears the active filter.
const FilterNone = "none"

// Filters lists the named transforms a sink is expected to understand.
var Filters = []string{
	FilterNone,
	"bassboost",
	"nightcore",
	"vaporwave",
	"8d",
	"vibrato",
	"tremolo",
	"earrape",
}

func ValidFilter(name string) bool {
	return slices.Contains(Filters, name)
}
