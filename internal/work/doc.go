// Package work implements the background work processor.
//
// # Work Types
//
// Every periodic job of the engine is a registered WorkType with a priority,
// an interval and optional dependencies:
//
//   - market:refresh: 1 hour - Refetches observations for every active item
//   - pricing:reprice: 6 hours - Batch repricing, after a market refresh
//   - opportunities:reconcile: 1 hour - Profit opportunities, after a market refresh
//   - forecast:generate: 24 hours - One run per horizon (daily, weekly, monthly)
//   - forecast:score: 24 hours - Scores forecasts whose target period has elapsed
//
// # Scheduling
//
// The processor runs one item at a time, highest priority first. It wakes on
// Trigger, which the cron scheduler calls periodically and the event triggers
// call after a market refresh. A failed item is retried up to MaxRetries times
// before it waits for its next interval.
//
// A completed market:refresh clears the completions of its dependents, so
// repricing and reconciliation follow fresh observations without waiting for
// their own interval.
package work
