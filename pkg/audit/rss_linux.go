//go:build linux

package audit

import "golang.org/x/sys/unix"

// residentSetSize returns the calling process's peak (maximum) resident
// set size so far in bytes, best-effort. unix.Getrusage reports
// ru_maxrss in kilobytes on Linux.
func residentSetSize() int64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return ru.Maxrss * 1024
}
