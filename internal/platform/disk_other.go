//go:build !unix

package platform

// FreeBytes is unavailable on this platform; callers treat 0 with a nil
// error as "unknown" and skip the preflight check.
func FreeBytes(path string) (uint64, error) {
	return 0, nil
}
