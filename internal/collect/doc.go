// Package collect orchestrates batch collection of daily bars: token
// lifecycle, strictly sequential per-instrument fetches, normalization,
// and per-instrument outcome tracking. One Collector.Run call is one
// collection run; instrument failures are recorded in the result, never
// propagated to abort the run.
package collect
