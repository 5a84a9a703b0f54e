package sitecheck

import "github.com/jpalmerr/sitecheck/internal/dispatch"

var (
	// ErrPoolStartup is returned by [Checker.Run] when the worker pool
	// cannot be started (for example, zero workers). Nothing is probed.
	ErrPoolStartup = dispatch.ErrPoolStartup

	// ErrShortRun is returned by [Checker.Run] when fewer outcomes than
	// targets were produced. The returned Run is partial and must not be
	// reported as complete.
	ErrShortRun = dispatch.ErrShortRun
)

// PoolStartupError carries the details of an [ErrPoolStartup] failure.
type PoolStartupError = dispatch.PoolStartupError

// ShortRunError carries the details of an [ErrShortRun] failure,
// including the targets without an outcome.
type ShortRunError = dispatch.ShortRunError
