package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type RegisterSupplierRequest struct {
	Name           string   `json:"name" binding:"required"`
	Email          string   `json:"email" binding:"required,email"`
	Phone          string   `json:"phone" binding:"required"`
	Password       string   `json:"password" binding:"required,min=6"`
	CompanyName    string   `json:"company_name" binding:"required"`
	RegistrationNo string   `json:"registration_no"`
	Categories     []string `json:"categories"`
}

type CreateUserRequest struct {
	Name           string   `json:"name" binding:"required"`
	Email          string   `json:"email" binding:"required,email"`
	Phone          string   `json:"phone"`
	Password       string   `json:"password" binding:"required,min=6"`
	Role           string   `json:"user_role" binding:"required"`
	IsActive       *bool    `json:"is_active"`
	Department     string   `json:"department"`
	CompanyName    string   `json:"company_name"`
	RegistrationNo string   `json:"registration_no"`
	Categories     []string `json:"categories"`
}

type UpdateUserRequest struct {
	Name           string   `json:"name"`
	Email          string   `json:"email" binding:"omitempty,email"`
	Phone          string   `json:"phone"`
	Role           string   `json:"user_role"`
	Department     string   `json:"department"`
	CompanyName    string   `json:"company_name"`
	RegistrationNo string   `json:"registration_no"`
	Categories     []string `json:"categories"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type TokenResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Role           string    `json:"user_role"`
	IsActive       bool      `json:"is_active"`
	Department     string    `json:"department,omitempty"`
	CompanyName    string    `json:"company_name,omitempty"`
	RegistrationNo string    `json:"registration_no,omitempty"`
	Categories     []string  `json:"categories,omitempty"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

type UserListFilter struct {
	Role     string
	IsActive *bool
	Page     int
	Limit    int
}

// AuthSettings configures token issuance.
type AuthSettings struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// UserService defines the interface for business logic related to User
type UserService interface {
	Register(ctx context.Context, req RegisterSupplierRequest) (*UserResponse, error)
	CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetMe(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, filter UserListFilter) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, actor Actor, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	SetActive(ctx context.Context, actor Actor, id uuid.UUID, active bool) (*UserResponse, error)
	EnsureSuperAdmin(ctx context.Context, email, password string) error
}

type userService struct {
	repo      repository.UserRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	auth      AuthSettings
	now       func() time.Time
}

// NewUserService returns a new instance of UserService
func NewUserService(
	repo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	auth AuthSettings,
) UserService {
	if auth.AccessTTL <= 0 {
		auth.AccessTTL = 24 * time.Hour
	}
	if auth.RefreshTTL <= 0 {
		auth.RefreshTTL = 7 * 24 * time.Hour
	}
	return &userService{repo: repo, auditRepo: auditRepo, txManager: txManager, auth: auth, now: time.Now}
}

var errBadCredentials = fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:             user.ID,
		Name:           user.Name,
		Email:          user.Email,
		Phone:          user.Phone,
		Role:           string(user.Role),
		IsActive:       user.IsActive,
		Department:     user.Department,
		CompanyName:    user.CompanyName,
		RegistrationNo: user.RegistrationNo,
		Categories:     []string(user.Categories),
		CreatedAt:      user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      user.UpdatedAt.Format(time.RFC3339),
	}
}

// checkRoleFields enforces the role-conditional fields and drops the ones that do not apply.
func checkRoleFields(user *model.User) error {
	switch user.Role {
	case workflow.RoleHOD:
		if strings.TrimSpace(user.Department) == "" {
			return invalid("department is required for a HOD")
		}
	case workflow.RoleSupplier:
		if strings.TrimSpace(user.CompanyName) == "" {
			return invalid("company name is required for a supplier")
		}
	}
	if user.Role != workflow.RoleSupplier {
		user.CompanyName, user.RegistrationNo, user.Categories = "", "", nil
	}
	return nil
}

func (s *userService) emailTaken(ctx context.Context, email string) error {
	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("%w: email already exists", domain.ErrConflict)
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *userService) create(ctx context.Context, actor Actor, user *model.User, password, action string) (*UserResponse, error) {
	if err := checkRoleFields(user); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}
	user.Password = string(hashed)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.emailTaken(txCtx, user.Email); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, user); err != nil {
			return err
		}
		audit := model.NewAuditLog(actor.ID, action, user.ID.String(), user.Email, map[string]interface{}{
			"user_role": user.Role,
			"is_active": user.IsActive,
		})
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// Register creates a supplier account that stays inactive until an admin activates it.
func (s *userService) Register(ctx context.Context, req RegisterSupplierRequest) (*UserResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	user := &model.User{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Role:           workflow.RoleSupplier,
		IsActive:       false,
		CompanyName:    req.CompanyName,
		RegistrationNo: req.RegistrationNo,
		Categories:     req.Categories,
	}
	return s.create(ctx, Actor{}, user, req.Password, model.ActionRegisterSupplier)
}

func (s *userService) CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error) {
	if actor.Role != workflow.RoleSuperAdmin {
		return nil, forbidden("only the super admin can create users")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	role, ok := workflow.ParseRole(req.Role)
	if !ok {
		return nil, invalid("invalid role %q", req.Role)
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	user := &model.User{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Role:           role,
		IsActive:       active,
		Department:     req.Department,
		CompanyName:    req.CompanyName,
		RegistrationNo: req.RegistrationNo,
		Categories:     req.Categories,
	}
	return s.create(ctx, actor, user, req.Password, model.ActionCreateUser)
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}
	if !user.CanLogin() {
		return nil, fmt.Errorf("%w: account is not active", domain.ErrForbidden)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.auth.AccessTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})
	tokenString, err := token.SignedString(s.auth.Secret)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	refresh := &model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.auth.RefreshTTL),
	}
	if err := s.repo.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{
		Token:        tokenString,
		RefreshToken: refresh.Token,
		ExpiresAt:    expiresAt,
		User:         *mapToResponse(user),
	}, nil
}

// RefreshToken rotates a refresh token: the presented one is consumed.
func (s *userService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	rt, err := s.repo.GetRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid refresh token", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteRefreshToken(ctx, rt.Token); err != nil {
		return nil, err
	}
	if s.now().After(rt.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token expired", domain.ErrUnauthorized)
	}

	user, err := s.repo.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthorized)
	}
	if !user.CanLogin() {
		return nil, fmt.Errorf("%w: account is not active", domain.ErrForbidden)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repo.DeleteRefreshToken(ctx, refreshToken)
}

func (s *userService) GetMe(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, f UserListFilter) ([]UserResponse, int64, error) {
	filter := repository.UserFilter{IsActive: f.IsActive}
	if f.Role != "" {
		role, ok := workflow.ParseRole(f.Role)
		if !ok {
			return nil, 0, invalid("invalid role %q", f.Role)
		}
		filter.Role = role
	}
	filter.Page, filter.Limit = normalizePage(f.Page, f.Limit)

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor Actor, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	if actor.Role != workflow.RoleSuperAdmin {
		return nil, forbidden("only the super admin can update users")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		if req.Role != "" {
			role, ok := workflow.ParseRole(req.Role)
			if !ok {
				return invalid("invalid role %q", req.Role)
			}
			user.Role = role
		}
		if req.Email != "" {
			email := strings.ToLower(strings.TrimSpace(req.Email))
			if email != user.Email {
				if err := s.emailTaken(txCtx, email); err != nil {
					return err
				}
				user.Email = email
			}
		}
		if req.Name != "" {
			user.Name = req.Name
		}
		if req.Phone != "" {
			user.Phone = req.Phone
		}
		if req.Department != "" {
			user.Department = req.Department
		}
		if req.CompanyName != "" {
			user.CompanyName = req.CompanyName
		}
		if req.RegistrationNo != "" {
			user.RegistrationNo = req.RegistrationNo
		}
		if req.Categories != nil {
			user.Categories = req.Categories
		}
		if err := checkRoleFields(user); err != nil {
			return err
		}

		if err := s.repo.Update(txCtx, user); err != nil {
			return err
		}
		audit := model.NewAuditLog(actor.ID, model.ActionUpdateUser, id.String(), user.Email, req)
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) SetActive(ctx context.Context, actor Actor, id uuid.UUID, active bool) (*UserResponse, error) {
	if actor.Role != workflow.RoleSuperAdmin {
		return nil, forbidden("only the super admin can activate users")
	}
	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.SetActive(txCtx, id, active); err != nil {
			return err
		}
		var err error
		user, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		audit := model.NewAuditLog(actor.ID, model.ActionSetUserActive, id.String(), user.Email, map[string]bool{"is_active": active})
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// EnsureSuperAdmin seeds the super admin account on first start.
func (s *userService) EnsureSuperAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	count, err := s.repo.CountByRole(ctx, workflow.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	user := &model.User{Name: "Super Admin", Email: email, Role: workflow.RoleSuperAdmin, IsActive: true}
	if _, err := s.create(ctx, Actor{}, user, password, model.ActionCreateUser); err != nil {
		return err
	}
	log.Printf("[user] seeded super admin %s", email)
	return nil
}
