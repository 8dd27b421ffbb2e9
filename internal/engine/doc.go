// Package engine implements the rule evaluation scheduler: on a fixed
// interval it loads all enabled rules, fetches the latest matching reading
// per rule, evaluates the threshold condition, applies the cooldown window,
// dispatches notifications and records the outcome.
//
// Lifecycle: New → Initialize (exactly once) → Start → Stop. A failure to
// list rules aborts the whole cycle; any other failure is contained to the
// rule it occurred in.
package engine
