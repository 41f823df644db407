package dto

// NonConformityStatusRequest payload for PUT /non-conformities/:id/status.
type NonConformityStatusRequest struct {
	Status string `json:"status" validate:"required,nc_status"`
}

// NonConformityQuery mirrors GET /non-conformities filters.
type NonConformityQuery struct {
	Status       []string
	Severity     string
	ExecutionID  string
	RestaurantID string
	Page         int
	PageSize     int
}
