//go:build windows

// Package queue provides validation utilities for queue operations.
// This file contains Windows-specific disk space checking functionality.
package queue

import "golang.org/x/sys/windows"

// freeDiskSpace returns the bytes available to the caller on the volume
// holding dir.
func freeDiskSpace(dir string) (uint64, error) {
	dirUTF16, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(dirUTF16, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return 0, err
	}

	return freeBytesAvailable, nil
}
