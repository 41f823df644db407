package dto

// CreateCorrectiveActionRequest payload for POST /corrective-actions.
type CreateCorrectiveActionRequest struct {
	NonConformityID   *string `json:"non_conformity_id"`
	ActionDescription string  `json:"action_description" validate:"required,max=2000"`
	AssignedTo        string  `json:"assigned_to" validate:"required"`
	DueDate           *string `json:"due_date"`
	Priority          *string `json:"priority" validate:"omitempty,ca_priority"`
	Notes             *string `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateCorrectiveActionRequest payload for PUT /corrective-actions/:id. A Status routes to a transition.
type UpdateCorrectiveActionRequest struct {
	ActionDescription *string `json:"action_description" validate:"omitempty,min=1,max=2000"`
	AssignedTo        *string `json:"assigned_to" validate:"omitempty,min=1"`
	DueDate           *string `json:"due_date"`
	Notes             *string `json:"notes" validate:"omitempty,max=2000"`
	Status            *string `json:"status" validate:"omitempty,ca_status"`
	CompletionDate    *string `json:"completion_date"`
	CompletionNotes   *string `json:"completion_notes" validate:"omitempty,max=2000"`
	VerificationNotes *string `json:"verification_notes" validate:"omitempty,max=2000"`
}

// HasFieldEdits reports whether any editable attribute was supplied.
func (r UpdateCorrectiveActionRequest) HasFieldEdits() bool {
	return r.ActionDescription != nil || r.AssignedTo != nil || r.DueDate != nil || r.Notes != nil
}

// ChangeActionStatusRequest carries a transition and its optional stamps.
type ChangeActionStatusRequest struct {
	Status            string  `json:"status" validate:"required,ca_status"`
	CompletionDate    *string `json:"completion_date"`
	CompletionNotes   *string `json:"completion_notes" validate:"omitempty,max=2000"`
	VerificationNotes *string `json:"verification_notes" validate:"omitempty,max=2000"`
}

// CorrectiveActionQuery mirrors GET /corrective-actions filters.
type CorrectiveActionQuery struct {
	Status          []string
	AssignedTo      string
	NonConformityID string
	Overdue         bool
	IncludeArchived bool
	Page            int
	PageSize        int
}
