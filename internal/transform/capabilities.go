package transform

import "transformd/internal/rendition"

// Capabilities merges several capability sources: a combination is
// supported if any source supports it, and the widest size bound wins.
type Capabilities []rendition.CapabilitySource

func (cs Capabilities) IsSupported(src string, size int64, target string, opts map[string]string, name string) bool {
	for _, c := range cs {
		if c.IsSupported(src, size, target, opts, name) {
			return true
		}
	}
	return false
}

func (cs Capabilities) MaxSize(src, target string, opts map[string]string, name string) (int64, bool) {
	var best int64
	found := false
	for _, c := range cs {
		m, ok := c.MaxSize(src, target, opts, name)
		if !ok {
			continue
		}
		found = true
		if m == -1 {
			return -1, true
		}
		best = max(best, m)
	}
	return best, found
}
