//go:build !unix

package buffer

// AllocDirect falls back to the Go heap where anonymous mappings are unavailable.
// The buffer still reports Direct so callers see the mode they asked for.
func AllocDirect(n int) ([]byte, func([]byte) error, error) {
	return make([]byte, n), nil, nil
}
