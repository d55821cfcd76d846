//go:build unix

// Package queue provides validation utilities for queue operations.
// This file contains Unix-specific disk space checking functionality.
package queue

import "golang.org/x/sys/unix"

// freeDiskSpace returns the bytes available to unprivileged users on the
// file system holding dir.
func freeDiskSpace(dir string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}

	// Available blocks * block size = available bytes
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil //nolint:gosec,unconvert // G115: field widths differ per platform
}
