package cell

import "sort"

// Projection is a stored, retrievable rendering of a pattern. Each
// projection is owned exclusively by the cell that holds it; accessors
// return copies.
type Projection struct {
	// BasePattern is the key the projection is retrieved under.
	BasePattern string `json:"base_pattern"`

	// HarmonicVariants are alternate renderings of the base pattern, one
	// per context the compiling manifest declared. Ordered by context name.
	HarmonicVariants []string `json:"harmonic_variants,omitempty"`

	// VariantContexts holds the context name of each harmonic variant,
	// aligned index-for-index with HarmonicVariants.
	VariantContexts []string `json:"variant_contexts,omitempty"`

	// CorePatterns are the index keys the compiling manifest was registered
	// under. Maintenance uses them to keep the association index consistent
	// when a projection is pruned.
	CorePatterns []string `json:"core_patterns,omitempty"`

	// InterferenceMap records signed influence toward related patterns.
	InterferenceMap map[string]float64 `json:"interference_map,omitempty"`
}

// CompileProjection builds a projection from its parts, ordering variants
// deterministically by context name.
func CompileProjection(basePattern string, variants map[string]string, corePatterns []string, interference map[string]float64) Projection {
	p := Projection{
		BasePattern:  basePattern,
		CorePatterns: append([]string(nil), corePatterns...),
	}
	if len(variants) > 0 {
		contexts := make([]string, 0, len(variants))
		for k := range variants {
			contexts = append(contexts, k)
		}
		sort.Strings(contexts)
		p.VariantContexts = contexts
		p.HarmonicVariants = make([]string, len(contexts))
		for i, k := range contexts {
			p.HarmonicVariants[i] = variants[k]
		}
	}
	if len(interference) > 0 {
		p.InterferenceMap = make(map[string]float64, len(interference))
		for k, v := range interference {
			p.InterferenceMap[k] = v
		}
	}
	return p
}

// Variant returns the harmonic variant recorded for a context, if any.
func (p *Projection) Variant(context string) (string, bool) {
	for i, c := range p.VariantContexts {
		if c == context {
			return p.HarmonicVariants[i], true
		}
	}
	return "", false
}

// EstimatedSize returns the projection's approximate in-memory footprint in
// bytes, used for tier capacity accounting.
func (p *Projection) EstimatedSize() int64 {
	const entryOverhead = 16
	size := int64(len(p.BasePattern)) + entryOverhead
	for i := range p.HarmonicVariants {
		size += int64(len(p.HarmonicVariants[i])+len(p.VariantContexts[i])) + entryOverhead
	}
	for _, core := range p.CorePatterns {
		size += int64(len(core)) + entryOverhead
	}
	for k := range p.InterferenceMap {
		size += int64(len(k)) + 8 + entryOverhead
	}
	return size
}

func (p Projection) clone() Projection {
	out := p
	out.HarmonicVariants = append([]string(nil), p.HarmonicVariants...)
	out.VariantContexts = append([]string(nil), p.VariantContexts...)
	out.CorePatterns = append([]string(nil), p.CorePatterns...)
	if p.InterferenceMap != nil {
		out.InterferenceMap = make(map[string]float64, len(p.InterferenceMap))
		for k, v := range p.InterferenceMap {
			out.InterferenceMap[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the projection.
func (p Projection) Clone() Projection { return p.clone() }
