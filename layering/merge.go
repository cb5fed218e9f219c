package layering

import "sort"

// MergeItems composes item maps ordered from strongest to weakest. A key takes
// its value from the strongest layer that has it; values are never merged
// below the top level, matching how a host fills defaults for missing keys.
// The result is a deep copy and is never nil.
func MergeItems(layers ...map[string]any) map[string]any {
	size := 0
	for _, layer := range layers {
		size += len(layer)
	}
	merged := make(map[string]any, size)
	for i := len(layers) - 1; i >= 0; i-- {
		for key, value := range layers[i] {
			merged[key] = Clone(value)
		}
	}
	return merged
}

// MissingKeys returns the keys of fallback absent from items, sorted.
func MissingKeys(items, fallback map[string]any) []string {
	var missing []string
	for key := range fallback {
		if _, ok := items[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
