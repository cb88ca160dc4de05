package conversation

import "github.com/loomworks/loom-go/pkg/platform"

// statusGuides maps each thread status to a one-line description of what the
// status means and which transitions are expected next. The guide is advisory
// text for prompts; the server remains the authority on which transitions it
// actually accepts.
var statusGuides = map[string]string{
	platform.StatusActive:    "work is in progress; may move to blocked, reviewing, resolved, or closed",
	platform.StatusBlocked:   "waiting on something external; moves back to active when unblocked",
	platform.StatusReviewing: "output is under review; may return to active or move to resolved or closed",
	platform.StatusResolved:  "the thread reached its goal; no further transitions expected",
	platform.StatusClosed:    "the thread ended without resolution; no further transitions expected",
}

// StatusGuide returns the guide line for a thread status, or "unknown status"
// for anything unrecognized.
func StatusGuide(status string) string {
	if guide, ok := statusGuides[status]; ok {
		return guide
	}
	return "unknown status"
}
