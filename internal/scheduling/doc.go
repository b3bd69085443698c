// Package scheduling holds the pure rules of the volunteer schedule: posting
// display status, recurrence expansion of template time blocks into shifts,
// the signup review lifecycle and the grouped review read model.
//
// Nothing in this package touches storage or the clock; callers pass "now"
// and the schedule location explicitly.
package scheduling
