package queueconfig

// Source is a read-only key/value view of the process environment.
type Source interface {
	// Lookup returns the value for key. Empty values are reported as absent.
	Lookup(key string) (string, bool)
}

// MapSource is a [Source] backed by a plain map.
type MapSource map[string]string

// Lookup implements [Source].
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", false
	}

	return v, true
}
