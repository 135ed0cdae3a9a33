package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/julianstephens/habitsync/internal/logger"
)

// Kind is a coarse classification of a remote failure
type Kind string

const (
	KindUnknown   Kind = "unknown"
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
)

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}

// Classify labels err as transient (connectivity, timeouts, server overload) or
// permanent (rejected by the remote). Errors may opt in by implementing
// Temporary() bool or Permanent() bool.
//
// The label is informational only: every failure consumes the same retry budget.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var perm interface{ Permanent() bool }
	if stderrors.As(err, &perm) && perm.Permanent() {
		return KindPermanent
	}

	if stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) {
		return KindTransient
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return KindTransient
	}

	var temp interface{ Temporary() bool }
	if stderrors.As(err, &temp) && temp.Temporary() {
		return KindTransient
	}

	return KindUnknown
}
