//go:build windows

package audit

// residentSetSize has no golang.org/x/sys-backed helper wired for Windows;
// Stats callers treat 0 as "unavailable."
func residentSetSize() int64 {
	return 0
}
