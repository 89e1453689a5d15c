package models

// Decision is a terminal verdict a moderator applies to an application.
type Decision string

const (
	DecisionApprove    Decision = "approve"
	DecisionReject     Decision = "reject"
	DecisionPermReject Decision = "perm_reject"
	DecisionKick       Decision = "kick"
)

// Valid reports whether the decision is one of the known verdicts.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionPermReject, DecisionKick:
		return true
	}
	return false
}

// Status maps the decision to the terminal application status it produces.
func (d Decision) Status() ApplicationStatus {
	switch d {
	case DecisionApprove:
		return ApplicationStatusApproved
	case DecisionReject:
		return ApplicationStatusRejected
	case DecisionPermReject:
		return ApplicationStatusPermRejected
	case DecisionKick:
		return ApplicationStatusKicked
	}
	return ""
}

// Action names the review-log action written for this decision.
func (d Decision) Action() string {
	return string(d)
}
