package ensemble

import (
	"strings"

	"github.com/local/pdftrio/internal/classifier"
	"github.com/rs/zerolog"
)

const (
	modeAuto = "auto"
	modeAll  = "all"
)

// Plan is a resolved mode specification.
type Plan struct {
	// Auto selects the short-circuit policy; Kinds is then unused.
	Auto bool
	// Kinds are the explicitly requested classifiers, in request order.
	Kinds []classifier.Kind
}

// NeedsText reports whether text must be extracted up front.
func (p Plan) NeedsText() bool {
	if p.Auto {
		return true
	}
	for _, k := range p.Kinds {
		if k == classifier.Linear || k == classifier.Bert {
			return true
		}
	}
	return false
}

// ParseModes resolves a comma separated mode specification. "all" wins over every other
// name, "auto" over explicit names. Unknown names are logged and ignored.
func ParseModes(spec string, lg zerolog.Logger) Plan {
	var names []string
	for _, n := range strings.Split(spec, ",") {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			names = append(names, n)
		}
	}

	var plan Plan
	seen := make(map[classifier.Kind]bool)
	for _, n := range names {
		switch n {
		case modeAll:
			return Plan{Kinds: append([]classifier.Kind(nil), classifier.Kinds...)}
		case modeAuto:
			plan.Auto = true
		case string(classifier.Image), string(classifier.Linear), string(classifier.Bert):
			k := classifier.Kind(n)
			if !seen[k] {
				seen[k] = true
				plan.Kinds = append(plan.Kinds, k)
			}
		default:
			lg.Warn().Str("mode", n).Msg("ignoring unknown classifier mode")
		}
	}
	if plan.Auto {
		plan.Kinds = nil
	}
	return plan
}
