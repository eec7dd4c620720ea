package deduce

import (
	"slices"

	"github.com/quackphp/quack/internal/evidence"
	"github.com/quackphp/quack/internal/php"
)

// Verdict is the outcome of reducing the evidence of one call site
type Verdict int

const (
	// Deduced means the allow-sets were computed
	Deduced Verdict = iota
	// Leaked means the value escaped into an unanalyzable call
	Leaked
	// Inconsistent means the value was seen both as a scalar and as a class
	Inconsistent
)

func (v Verdict) String() string {
	switch v {
	case Deduced:
		return "deduced"
	case Leaked:
		return "leaked"
	case Inconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

// Deduction is the result of Reduce. AllTypes keeps every token in the order
// it was observed; the allow-sets are sorted and never contain the empty token.
// Only a Deduced verdict carries allow-sets.
type Deduction struct {
	Verdict Verdict

	// AllTypes is the raw union of all Duck/Exact type tokens
	AllTypes []string
	// AllowedAll includes classes only seen through __toString usage
	AllowedAll []string
	// AllowedStrict ignores __toString evidence and is what gets published
	AllowedStrict []string

	// Conflict holds the classes that contradicted native evidence
	Conflict []string
}

// Err returns the error matching the verdict, or nil when it is Deduced
func (d Deduction) Err() error {
	switch d.Verdict {
	case Leaked:
		return ErrLeak
	case Inconsistent:
		return &InconsistentEvidenceError{Conflict: d.Conflict}
	default:
		return nil
	}
}

// Reduce narrows the available classes at a call site down to the ones
// consistent with the collected evidence.
func Reduce(available []string, observations []evidence.Observation) Deduction {
	allTypes := []string{}
	var strictTypes []string
	typed := 0

	for _, obs := range observations {
		if !obs.IsTyped() {
			continue
		}
		if obs.Reason == evidence.ReasonDynamicCall {
			return Deduction{Verdict: Leaked}
		}

		typed++
		tokens := php.SplitUnion(obs.Type)
		allTypes = append(allTypes, tokens...)
		if obs.Reason != evidence.ReasonHasToString {
			strictTypes = append(strictTypes, tokens...)
		}
	}

	// Nothing typed was collected at all: no fallback, the site is empty
	if typed == 0 {
		return Deduction{
			Verdict:       Deduced,
			AllTypes:      allTypes,
			AllowedAll:    []string{},
			AllowedStrict: []string{},
		}
	}

	availableSet := make(map[string]bool, len(available))
	for _, class := range available {
		availableSet[class] = true
	}

	hasNative := slices.ContainsFunc(allTypes, php.IsNativeType)
	allowedAll := intersect(allTypes, availableSet)
	allowedStrict := intersect(strictTypes, availableSet)

	if hasNative && len(allowedStrict) > 0 {
		return Deduction{
			Verdict:  Inconsistent,
			AllTypes: allTypes,
			Conflict: allowedStrict,
		}
	}

	switch {
	case hasNative:
		// A scalar is never dereferenced as an object, so no class applies
		allowedAll = []string{}
		allowedStrict = []string{}
	case !slices.ContainsFunc(allTypes, php.IsUsefulType):
		// Missing constraints must never read as proof of safety
		allowedStrict = dedupe(available)
	}

	return Deduction{
		Verdict:       Deduced,
		AllTypes:      allTypes,
		AllowedAll:    allowedAll,
		AllowedStrict: allowedStrict,
	}
}

// intersect returns the sorted set of tokens present in available
func intersect(tokens []string, available map[string]bool) []string {
	seen := make(map[string]bool)
	result := []string{}
	for _, token := range tokens {
		if token == "" || seen[token] || !available[token] {
			continue
		}
		seen[token] = true
		result = append(result, token)
	}
	slices.Sort(result)
	return result
}

func dedupe(classes []string) []string {
	result := make([]string, 0, len(classes))
	for _, class := range classes {
		if class != "" {
			result = append(result, class)
		}
	}
	slices.Sort(result)
	return slices.Compact(result)
}
