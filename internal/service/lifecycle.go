package service

import (
	"time"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

// Execution actions exposed to clients.
const (
	ActionStart          = "start"
	ActionRecordResponse = "record_response"
	ActionComplete       = "complete"
	ActionReview         = "review"
	ActionArchive        = "archive"
	ActionReschedule     = "reschedule"
	ActionDelete         = "delete"
)

// DefaultUpcomingWindowDays bounds the "upcoming" group.
const DefaultUpcomingWindowDays = 7

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayDiff returns how many calendar days day lies after now, compared in now's location.
// Negative for past days.
func dayDiff(day, now time.Time) int {
	dy, dm, dd := day.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	// calendar dates re-based on UTC where every day is 24h long
	a := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b) / (24 * time.Hour))
}

// InitialExecutionStatus returns todo for today or earlier and scheduled for future days.
func InitialExecutionStatus(scheduled, now time.Time) models.ExecutionStatus {
	if dayDiff(scheduled, now) > 0 {
		return models.ExecutionStatusScheduled
	}
	return models.ExecutionStatusTodo
}

// EffectiveExecutionStatus collapses scheduled into todo once the scheduled day has arrived.
func EffectiveExecutionStatus(status models.ExecutionStatus, scheduled, now time.Time) models.ExecutionStatus {
	if status == models.ExecutionStatusScheduled && dayDiff(scheduled, now) <= 0 {
		return models.ExecutionStatusTodo
	}
	return status
}

// IsExecutionOverdue is true for an unfinished execution whose scheduled day is before today.
func IsExecutionOverdue(status models.ExecutionStatus, scheduled, now time.Time) bool {
	if !status.IsActive() {
		return false
	}
	return dayDiff(scheduled, now) < 0
}

// CanTransitionExecution reports whether from -> to is an allowed lifecycle step.
func CanTransitionExecution(from, to models.ExecutionStatus) bool {
	switch from {
	case models.ExecutionStatusTodo, models.ExecutionStatusScheduled:
		return to == models.ExecutionStatusInProgress
	case models.ExecutionStatusInProgress:
		return to == models.ExecutionStatusCompleted
	case models.ExecutionStatusCompleted:
		return to == models.ExecutionStatusReviewed
	default:
		return false
	}
}

// ExecutionActions lists what the viewer may do with the execution right now.
func ExecutionActions(exec models.AuditExecution, actor *models.AuthorizationContext, now time.Time) []string {
	actions := make([]string, 0, 4)
	if actor == nil {
		return actions
	}
	supervisor := actor.IsSupervisor()
	assignee := actor.UserID == exec.InspectorID
	canWork := supervisor || assignee

	switch EffectiveExecutionStatus(exec.Status, exec.ScheduledDate, now) {
	case models.ExecutionStatusTodo, models.ExecutionStatusScheduled:
		if canWork {
			actions = append(actions, ActionStart, ActionRecordResponse)
		}
		if supervisor {
			actions = append(actions, ActionReschedule, ActionDelete)
		}
	case models.ExecutionStatusInProgress:
		if canWork {
			actions = append(actions, ActionRecordResponse, ActionComplete)
		}
	case models.ExecutionStatusCompleted:
		if supervisor {
			actions = append(actions, ActionReview, ActionArchive)
		}
	case models.ExecutionStatusReviewed:
		if supervisor {
			actions = append(actions, ActionArchive)
		}
	}
	return actions
}

// DecorateExecution attaches derived fields for the viewer.
func DecorateExecution(exec models.AuditExecution, actor *models.AuthorizationContext, now time.Time) models.ExecutionView {
	return models.ExecutionView{
		AuditExecution:  exec,
		EffectiveStatus: EffectiveExecutionStatus(exec.Status, exec.ScheduledDate, now),
		IsOverdue:       IsExecutionOverdue(exec.Status, exec.ScheduledDate, now),
		Actions:         ExecutionActions(exec, actor, now),
	}
}

// GroupExecutions partitions active executions into overdue, today, upcoming (within
// windowDays) and future. Closed executions are skipped.
func GroupExecutions(executions []models.ExecutionView, now time.Time, windowDays int) models.ExecutionGroups {
	if windowDays <= 0 {
		windowDays = DefaultUpcomingWindowDays
	}
	groups := models.ExecutionGroups{
		Overdue:  []models.ExecutionView{},
		Today:    []models.ExecutionView{},
		Upcoming: []models.ExecutionView{},
		Future:   []models.ExecutionView{},
	}
	for _, exec := range executions {
		if !exec.Status.IsActive() {
			continue
		}
		diff := dayDiff(exec.ScheduledDate, now)
		switch {
		case diff < 0:
			groups.Overdue = append(groups.Overdue, exec)
		case diff == 0:
			groups.Today = append(groups.Today, exec)
		case diff <= windowDays:
			groups.Upcoming = append(groups.Upcoming, exec)
		default:
			groups.Future = append(groups.Future, exec)
		}
	}
	return groups
}

// CanTransitionAction reports whether a corrective action may move from -> to.
func CanTransitionAction(from, to models.CorrectiveActionStatus) bool {
	switch from {
	case models.ActionStatusAssigned:
		return to == models.ActionStatusInProgress || to == models.ActionStatusCompleted
	case models.ActionStatusInProgress:
		return to == models.ActionStatusCompleted
	case models.ActionStatusCompleted:
		return to == models.ActionStatusVerified || to == models.ActionStatusArchived
	default:
		return false
	}
}

// IsCorrectiveActionOverdue is true when the due instant has passed and the action is still open.
func IsCorrectiveActionOverdue(action models.CorrectiveAction, now time.Time) bool {
	if action.Status.IsClosed() {
		return false
	}
	return action.DueDate.Before(now)
}

// DecorateCorrectiveAction attaches the derived overdue flag.
func DecorateCorrectiveAction(action models.CorrectiveAction, now time.Time) models.CorrectiveActionView {
	return models.CorrectiveActionView{
		CorrectiveAction: action,
		IsOverdue:        IsCorrectiveActionOverdue(action, now),
	}
}

// CanTransitionNonConformity allows forward-only single or multi-step moves.
func CanTransitionNonConformity(from, to models.NonConformityStatus) bool {
	return to.Rank() > 0 && from.Rank() > 0 && to.Rank() > from.Rank()
}
