// Package audit maintains the append-only, size-bounded trail of governance
// decisions, violations, and transactions.
//
// Entries are immutable once written; once an entity's log exceeds the cap
// the oldest entries are evicted. Timeline queries accept AIP-160 filter
// expressions (e.g. `event_type = "governance.violation" AND severity =
// "WARN"`). Clearing a trail is a privileged operation gated by an operator
// grant.
package audit
