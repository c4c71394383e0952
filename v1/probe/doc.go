// Package probe provides ready-made wait.Probe functions for conditions
// that live outside the process: a key appearing in Redis, or an event
// arriving on a syncbus topic.
package probe
