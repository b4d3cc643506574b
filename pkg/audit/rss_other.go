//go:build !linux && !windows

package audit

// residentSetSize has no golang.org/x/sys-backed helper wired for this
// platform; Stats callers treat 0 as "unavailable."
func residentSetSize() int64 {
	return 0
}
