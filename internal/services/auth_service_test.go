package services

import (
	"context"
	"testing"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/config"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories/memory"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T) (*AuthServiceImpl, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpiresIn: 3600},
	}
	store := memory.NewStore()
	return NewAuthService(memory.NewAdminUserRepository(store), cfg), cfg
}

func TestRegisterAndLogin(t *testing.T) {
	svc, cfg := newAuthFixture(t)

	user, err := svc.Register(context.Background(), &models.RegisterRequest{
		Email:    "ops@example.com",
		Password: "sup3rsecret",
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)
	assert.Empty(t, user.Password, "hash must not leak in the response")

	token, err := svc.Login(context.Background(), &models.LoginRequest{
		Email:    "ops@example.com",
		Password: "sup3rsecret",
	})
	require.NoError(t, err)

	claims, err := utils.ValidateJWT(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims["user_id"])
	assert.Equal(t, "admin", claims["role"])
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Register(context.Background(), &models.RegisterRequest{
		Email:    "ops@example.com",
		Password: "sup3rsecret",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &models.LoginRequest{
		Email:    "ops@example.com",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), &models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "sup3rsecret",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Register(context.Background(), &models.RegisterRequest{
		Email:    "ops@example.com",
		Password: "sup3rsecret",
	})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), &models.RegisterRequest{
		Email:    "ops@example.com",
		Password: "another",
	})
	assert.ErrorIs(t, err, ErrValidation)
}
