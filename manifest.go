package patternstore

import (
	"fmt"
	"strings"
)

// AlgorithmManifest describes a unit of reusable logic submitted for
// storage. The manifest itself is not stored verbatim; the store compiles
// it into a pattern projection and places that projection into a cell.
//
// Example:
//
//	manifest := patternstore.AlgorithmManifest{
//	    ID:             "m-greet",
//	    Signature:      "conversation/greeting",
//	    CorePatterns:   []string{"greet", "salutation"},
//	    ProjectionBase: "hello",
//	    ContextualVariants: map[string]string{
//	        "casual": "hey there",
//	        "formal": "good afternoon",
//	    },
//	}
//	cellID, err := store.Store(ctx, manifest)
type AlgorithmManifest struct {
	// ID identifies the manifest to the caller. Informational; the store
	// indexes by core pattern, not by manifest id.
	ID string `json:"id"`

	// Signature drives deterministic tier placement: manifests sharing a
	// signature always land in the same tier. Required.
	Signature string `json:"signature"`

	// CorePatterns are the keys the compiled projection is indexed under.
	// At least one non-blank entry is required.
	CorePatterns []string `json:"core_patterns"`

	// ProjectionBase is the base rendering stored in the projection and
	// the key Retrieve matches exactly within the winning cell.
	ProjectionBase string `json:"projection_base"`

	// ContextualVariants maps a context factor name to an alternate
	// rendering used when that factor dominates the retrieval context.
	ContextualVariants map[string]string `json:"contextual_variants,omitempty"`

	// Affinity records signed influence toward other manifests; compiled
	// into the projection's interference map.
	Affinity map[string]float64 `json:"affinity,omitempty"`
}

// Validate checks the manifest before any store mutation. It returns an
// error wrapping ErrInvalidManifest when the signature is empty or no
// usable core pattern is present.
func (m *AlgorithmManifest) Validate() error {
	if strings.TrimSpace(m.Signature) == "" {
		return fmt.Errorf("%w: signature is required", ErrInvalidManifest)
	}
	if len(m.corePatterns()) == 0 {
		return fmt.Errorf("%w: at least one core pattern is required", ErrInvalidManifest)
	}
	if strings.TrimSpace(m.ProjectionBase) == "" {
		return fmt.Errorf("%w: projection_base is required", ErrInvalidManifest)
	}
	return nil
}

// corePatterns returns the manifest's usable core patterns: trimmed,
// deduplicated, insertion order preserved.
func (m *AlgorithmManifest) corePatterns() []string {
	seen := make(map[string]struct{}, len(m.CorePatterns))
	out := make([]string, 0, len(m.CorePatterns))
	for _, p := range m.CorePatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
