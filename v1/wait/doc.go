// Package wait polls a probe until its value satisfies a matcher or a
// deadline measured by a clock.Clock passes.
//
// Errors returned by the probe are not fatal while time remains: a probe
// that fails early and succeeds later makes the wait succeed. When the
// deadline passes, the most recent probe error is returned verbatim. If the
// probe never failed, a *errors.TimeoutError carrying the last non-matching
// value is returned instead.
//
//	v, err := wait.ForMatch(ctx, clock.Real(), readTitle, wait.Equal("Ready"),
//		wait.WithTimeout(2*time.Second))
//
// Tests pass clock.Virtual(start) so that timeouts elapse instantly.
package wait
