package casdoor

import (
	"context"
	"fmt"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/exam-service/internal/cache"
	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// UserCasdoor adapts Casdoor's user directory to the read-only UserRepository
// the exam service consumes. Lookups are cached in Redis because a single
// attempt touches the same user record on every submission.
type UserCasdoor struct {
	client *casdoorsdk.Client
	cache  *cache.CacheHelper
	config CasdoorConfig
}

func NewUserCasdoor(config CasdoorConfig, redisClient *redis.Client) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &UserCasdoor{
		client: client,
		cache:  cache.NewCacheHelper(redisClient, cache.UserCacheConfig.Prefix),
		config: config,
	}
}

func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	var cached models.User
	if err := u.cache.Get(ctx, id, &cached); err == nil {
		return &cached, nil
	}

	casdoorUser, err := u.client.GetUserByUserId(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from casdoor: %w", err)
	}
	if casdoorUser == nil {
		return nil, repositories.ErrNotFound
	}

	user := mapCasdoorUser(casdoorUser)

	if err := u.cache.Set(ctx, id, user, cache.UserCacheConfig.TTL); err != nil {
		// Cache failures must not break identity lookups.
		_ = err
	}

	return user, nil
}

func mapCasdoorUser(cu *casdoorsdk.User) *models.User {
	role := models.RoleStudent
	switch cu.Tag {
	case "teacher":
		role = models.RoleTeacher
	case "admin":
		role = models.RoleAdmin
	}

	createdAt, _ := time.Parse(time.RFC3339, cu.CreatedTime)

	return &models.User{
		ID:        cu.Id,
		Name:      cu.DisplayName,
		Email:     cu.Email,
		Role:      role,
		Active:    !cu.IsForbidden && !cu.IsDeleted,
		CreatedAt: createdAt,
	}
}
