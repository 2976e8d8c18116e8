//go:build linux || darwin

package platform

import "golang.org/x/sys/unix"

// DisableCoreDumps zeroes the core rlimit so key material cannot land in a
// crash dump.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	rlim.Cur = 0
	rlim.Max = 0
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
