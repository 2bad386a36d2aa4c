// Package logx wraps zerolog behind a small Logger facade so components can
// log through a stable API while sinks and levels are swapped at runtime
// from config reloads.
package logx
