package scheduler

// Package scheduler computes when a charge should begin. Without a ready-by
// deadline charging starts when the cheap window opens; with one, the start is
// moved earlier only when the window alone cannot meet the deadline.
