// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cancel

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrSchedulerClosed is returned when scheduling on a closed scheduler.
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrInvalidDelay is returned for negative timer delays.
	ErrInvalidDelay = errors.New("delay must not be negative")
)

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// CancelType indicates why cancellation occurred.
type CancelType int

const (
	// CancelUser indicates an explicit Cancel call by the driver.
	CancelUser CancelType = iota

	// CancelTimeout indicates the configured deadline passed.
	CancelTimeout

	// CancelParent indicates the driver's context was done.
	CancelParent

	// CancelShutdown indicates the owning process is shutting down.
	CancelShutdown
)

// String returns the string representation of the cancel type.
func (t CancelType) String() string {
	switch t {
	case CancelUser:
		return "user"
	case CancelTimeout:
		return "timeout"
	case CancelParent:
		return "parent"
	case CancelShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Reason describes a cancellation.
type Reason struct {
	// Type categorizes the cancellation.
	Type CancelType

	// Message is a human-readable description.
	Message string

	// Timestamp is when the cancellation was requested.
	Timestamp time.Time
}

// NewReason creates a reason stamped with the current time.
func NewReason(t CancelType, format string, args ...any) Reason {
	return Reason{
		Type:      t,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// String renders the reason for logs.
func (r Reason) String() string {
	if r.Message == "" {
		return r.Type.String()
	}
	return r.Type.String() + ": " + r.Message
}
