// Package syncbus carries lock events between processes. A Bus delivers a
// bare signal per topic; subscribers only learn that something happened on
// the topic, never a payload. The lock package publishes on LockTopic and
// UnlockTopic, and the probe package turns a topic into a pollable
// condition.
package syncbus
