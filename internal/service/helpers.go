package service

import (
	"database/sql"
	"errors"

	"github.com/noah-isme/resto-audit-api/internal/models"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
)

func requireActor(actor *models.AuthorizationContext) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}

func requireSupervisor(actor *models.AuthorizationContext, message string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsSupervisor() {
		return appErrors.Clone(appErrors.ErrForbidden, message)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func newPagination(req models.PageRequest, total int) *models.Pagination {
	page := req.Normalize()
	return &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}
}
