package hook

// Merged accumulates the return values of every implementation invoked by
// InvokeAll. Keyed results deep-merge into Map; bare values and slice
// elements append to List in invocation order.
type Merged struct {
	Map  map[string]any
	List []any
}

// NewMerged creates an empty accumulator.
func NewMerged() *Merged {
	return &Merged{Map: make(map[string]any)}
}

// IsEmpty reports whether no implementation contributed anything.
func (m *Merged) IsEmpty() bool {
	return len(m.Map) == 0 && len(m.List) == 0
}

// add folds one implementation's result into the accumulator. A nil result
// means the implementation contributed nothing.
func (m *Merged) add(result any) {
	switch v := result.(type) {
	case nil:
	case map[string]any:
		deepMerge(m.Map, v)
	case []any:
		m.List = append(m.List, v...)
	default:
		m.List = append(m.List, v)
	}
}

// deepMerge merges src into dst. When both sides hold a keyed mapping under
// the same key the merge recurses, so sibling keys from different
// implementations survive; otherwise src wins. Nested maps already in dst
// are copied before merging, since they may still be owned by an earlier
// implementation.
func deepMerge(dst, src map[string]any) {
	for key, sv := range src {
		dm, dstIsMap := dst[key].(map[string]any)
		sm, srcIsMap := sv.(map[string]any)
		if dstIsMap && srcIsMap {
			merged := make(map[string]any, len(dm)+len(sm))
			for k, v := range dm {
				merged[k] = v
			}
			deepMerge(merged, sm)
			dst[key] = merged
			continue
		}
		dst[key] = sv
	}
}
