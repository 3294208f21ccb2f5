package connector

import "time"

// EmailPriority is assigned to every opportunity-looking email.
const EmailPriority = 2

// opportunityKeywords flag an unread high-importance email as a lead.
var opportunityKeywords = []string{"internship", "interview", "application", "job", "opportunity", "position"}

// AssignmentPriority scores an assignment by the time left until it is due.
func AssignmentPriority(due *time.Time, now time.Time) int {
	if due == nil {
		return 0
	}
	hours := due.Sub(now).Hours()
	switch {
	case hours < 24:
		return 3
	case hours < 48:
		return 2
	case hours < 168:
		return 1
	default:
		return 0
	}
}

// MeetingPriority scores a calendar event by the time left until it starts.
func MeetingPriority(start *time.Time, now time.Time) int {
	if start == nil {
		return 0
	}
	if start.Sub(now).Hours() < 24 {
		return 1
	}
	return 0
}

// JobPriority scores a job posting by its application deadline.
func JobPriority(deadline *time.Time, now time.Time) int {
	if deadline == nil {
		return 1
	}
	if deadline.Sub(now).Hours()/24 < 7 {
		return 2
	}
	return 1
}
