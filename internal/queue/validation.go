// Package queue provides validation utilities for queue operations.
// This file contains validation and sanitization functions.
package queue

import (
	"fmt"
	"strings"
)

// MaxNameLength bounds queue and consumer names, which become file names.
const MaxNameLength = 200

// ValidateName checks that name can be used as a single directory entry.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidName, MaxNameLength)
	case name == "." || strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// validateMessageSize checks if the record body exceeds the maximum allowed size.
func validateMessageSize(payload []byte, maxSize int64) error {
	if maxSize == 0 {
		return nil // No size limit
	}

	if int64(len(payload)) > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d bytes",
			ErrMessageTooLarge, len(payload), maxSize)
	}

	return nil
}

// checkDiskSpace checks if sufficient disk space is available in the given directory.
// Returns an error if free space is below the configured minimum.
func checkDiskSpace(dir string, minFreeSpace int64) error {
	if minFreeSpace == 0 {
		return nil // Disk space checking disabled
	}

	available, err := freeDiskSpace(dir)
	if err != nil {
		return fmt.Errorf("failed to check disk space: %w", err)
	}

	if available < uint64(minFreeSpace) {
		return fmt.Errorf("%w: %d bytes available, %d bytes required",
			ErrInsufficientSpace, available, minFreeSpace)
	}

	return nil
}
