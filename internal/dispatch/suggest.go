package dispatch

import (
	"github.com/agnivade/levenshtein"
)

// suggest returns the candidate closest to name, or "" when none is close
// enough to be a plausible typo.
func suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/3) {
		return ""
	}
	return best
}

// notFound builds the FunctionNotFound error for module.fn, naming the
// nearest registered module or function when there is one.
func (d *Dispatcher) notFound(module, fn string) error {
	var hint string
	if infos, ok := d.reg.Describe(module); ok {
		names := make([]string, len(infos))
		for i, info := range infos {
			names[i] = info.Name
		}
		if s := suggest(fn, names); s != "" {
			hint = module + "." + s
		}
	} else if s := suggest(module, d.reg.Enumerate()); s != "" {
		hint = s + "." + fn
	}

	return &NotFoundError{Module: module, Function: fn, Suggestion: hint}
}
