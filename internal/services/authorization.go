package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
)

type authorizationService struct {
	users repositories.UserRepository
}

func NewAuthorizationService(users repositories.UserRepository) AuthorizationService {
	return &authorizationService{users: users}
}

// CanUseTemplate allows any active user to take an active template. Template
// authors and admins can additionally take inactive templates, for previewing
// before publication. To everyone else an inactive template does not exist.
func (a *authorizationService) CanUseTemplate(ctx context.Context, userID string, template *models.ExamTemplate) error {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if !user.Active {
		return NewPermissionError(userID, template.ID, "template", "start_attempt", "user account is disabled")
	}

	if template.IsActive {
		return nil
	}
	if user.Role == models.RoleAdmin || template.CreatedBy == userID {
		return nil
	}
	return ErrTemplateNotFound
}
