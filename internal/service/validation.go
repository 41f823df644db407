package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/resto-audit-api/internal/models"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
)

// NewValidator returns a validator with the audit enum tags registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	registerAuditValidations(validate)
	return validate
}

func registerAuditValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("template_category", func(fl validator.FieldLevel) bool {
		return models.TemplateCategory(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("item_type", func(fl validator.FieldLevel) bool {
		return models.ItemType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("execution_status", func(fl validator.FieldLevel) bool {
		return models.ExecutionStatus(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("nc_status", func(fl validator.FieldLevel) bool {
		return models.NonConformityStatus(fl.Field().String()).Rank() > 0
	})
	_ = validate.RegisterValidation("ca_status", func(fl validator.FieldLevel) bool {
		return models.CorrectiveActionStatus(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("ca_priority", func(fl validator.FieldLevel) bool {
		_, ok := models.Priority(fl.Field().String()).DueOffsetDays()
		return ok
	})
}

// validationError converts validator output into a ValidationError naming the offending fields.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload: "+strings.Join(parts, "; "))
}

// parseDay accepts YYYY-MM-DD (midnight in loc) or an RFC3339 instant.
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return t, nil
}
