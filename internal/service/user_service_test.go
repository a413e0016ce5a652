package service

import (
	"context"
	"testing"
	"time"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerSupplier(t *testing.T, f *fixture, email string) *UserResponse {
	t.Helper()
	user, err := f.users.Register(context.Background(), RegisterSupplierRequest{
		Name:        "Acme Supplies",
		Email:       email,
		Phone:       "0771234567",
		Password:    "secret123",
		CompanyName: "Acme Ltd",
		Categories:  []string{"lab", "stationery"},
	})
	require.NoError(t, err)
	return user
}

func TestSupplierRegistrationNeedsActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := registerSupplier(t, f, "Sales@Acme.test")
	assert.False(t, user.IsActive)
	assert.Equal(t, string(workflow.RoleSupplier), user.Role)
	assert.Equal(t, "sales@acme.test", user.Email)

	_, err := f.users.Login(ctx, LoginUserRequest{Email: "sales@acme.test", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.users.SetActive(ctx, f.hod, user.ID, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	activated, err := f.users.SetActive(ctx, f.admin, user.ID, true)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	tokens, err := f.users.Login(ctx, LoginUserRequest{Email: "SALES@acme.test", Password: "secret123"})
	require.NoError(t, err)

	parsed, err := jwt.Parse(tokens.Token, func(*jwt.Token) (interface{}, error) { return testSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, user.ID.String(), claims["sub"])
	assert.Equal(t, string(workflow.RoleSupplier), claims["role"])
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), tokens.ExpiresAt, time.Minute)

	assert.Equal(t, []string{model.ActionRegisterSupplier, model.ActionSetUserActive}, f.st.auditActions())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := registerSupplier(t, f, "a@acme.test")
	_, err := f.users.SetActive(ctx, f.admin, user.ID, true)
	require.NoError(t, err)

	_, err = f.users.Login(ctx, LoginUserRequest{Email: "a@acme.test", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.users.Login(ctx, LoginUserRequest{Email: "nobody@acme.test", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefreshTokenRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := registerSupplier(t, f, "b@acme.test")
	_, err := f.users.SetActive(ctx, f.admin, user.ID, true)
	require.NoError(t, err)

	tokens, err := f.users.Login(ctx, LoginUserRequest{Email: "b@acme.test", Password: "secret123"})
	require.NoError(t, err)

	rotated, err := f.users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	_, err = f.users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "a consumed token cannot be replayed")

	require.NoError(t, f.users.Logout(ctx, rotated.RefreshToken))
	_, err = f.users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: rotated.RefreshToken})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefreshTokenExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := registerSupplier(t, f, "c@acme.test")
	f.st.refresh["stale"] = model.RefreshToken{UserID: user.ID, Token: "stale", ExpiresAt: time.Now().Add(-time.Minute)}

	_, err := f.users.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: "stale"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.NotContains(t, f.st.refresh, "stale")
}

func TestCreateUserRoleFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.CreateUser(ctx, f.hod, CreateUserRequest{Name: "x", Email: "x@uni.test", Password: "secret123", Role: "Bursar"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.users.CreateUser(ctx, f.admin, CreateUserRequest{Name: "x", Email: "x@uni.test", Password: "secret123", Role: "Dean"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.users.CreateUser(ctx, f.admin, CreateUserRequest{Name: "x", Email: "x@uni.test", Password: "secret123", Role: "HOD"})
	assert.ErrorIs(t, err, domain.ErrValidation, "HOD needs a department")

	hod, err := f.users.CreateUser(ctx, f.admin, CreateUserRequest{
		Name: "Dr. Perera", Email: "hod@uni.test", Password: "secret123", Role: "HOD",
		Department: "Engineering", CompanyName: "ignored",
	})
	require.NoError(t, err)
	assert.True(t, hod.IsActive)
	assert.Equal(t, "Engineering", hod.Department)
	assert.Empty(t, hod.CompanyName, "supplier fields are dropped for staff")

	_, err = f.users.CreateUser(ctx, f.admin, CreateUserRequest{
		Name: "Dup", Email: "HOD@uni.test", Password: "secret123", Role: "Rector",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	inactive := false
	rector, err := f.users.CreateUser(ctx, f.admin, CreateUserRequest{
		Name: "Rector", Email: "rector@uni.test", Password: "secret123", Role: "Rector", IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, rector.IsActive)

	list, total, err := f.users.ListUsers(ctx, UserListFilter{Role: "HOD"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, hod.ID, list[0].ID)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := registerSupplier(t, f, "d@acme.test")
	registerSupplier(t, f, "e@acme.test")

	_, err := f.users.UpdateUser(ctx, f.admin, supplier.ID, UpdateUserRequest{Email: "e@acme.test"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	updated, err := f.users.UpdateUser(ctx, f.admin, supplier.ID, UpdateUserRequest{Phone: "0110000000", Categories: []string{"it"}})
	require.NoError(t, err)
	assert.Equal(t, "0110000000", updated.Phone)
	assert.Equal(t, []string{"it"}, updated.Categories)

	_, err = f.users.UpdateUser(ctx, f.admin, supplier.ID, UpdateUserRequest{Role: "HOD"})
	assert.ErrorIs(t, err, domain.ErrValidation, "becoming a HOD needs a department")

	_, err = f.users.UpdateUser(ctx, f.admin, uuid.New(), UpdateUserRequest{Name: "ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureSuperAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.EnsureSuperAdmin(ctx, "", ""))
	assert.Empty(t, f.st.users)

	require.NoError(t, f.users.EnsureSuperAdmin(ctx, "root@uni.test", "changeme"))
	require.NoError(t, f.users.EnsureSuperAdmin(ctx, "other@uni.test", "changeme"))
	require.Len(t, f.st.users, 1)

	tokens, err := f.users.Login(ctx, LoginUserRequest{Email: "root@uni.test", Password: "changeme"})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.RoleSuperAdmin), tokens.User.Role)

	me, err := f.users.GetMe(ctx, tokens.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "root@uni.test", me.Email)
}

func TestAuditLogsResolveUsers(t *testing.T) {
	f := newFixture(t)
	f.create(t, workflow.KindRequest)

	logs, total, err := f.audits.GetAuditLogs(context.Background(), AuditListFilter{Action: model.ActionCreateRequisition})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, f.hod.ID.String(), logs[0].UserID)
	assert.Equal(t, "System", logs[0].UserName, "the fake store does not preload users")
	assert.JSONEq(t, `{"kind":"request","total_cost":"130.00","items":2}`, string(logs[0].Details))
}
