package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"procurement/internal/service"
	"procurement/internal/workflow"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ctxUserID   = "userID"
	ctxUserRole = "userRole"

	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

var (
	jwtSecret     []byte
	secureCookies bool
)

// InitAuth sets the signing secret and cookie policy. Call once at start-up.
func InitAuth(secret []byte, secure bool) {
	jwtSecret = secret
	secureCookies = secure
}

var errNoToken = errors.New("authorization is missing")

// ParseToken verifies an HS256 access token and returns its subject and role.
func ParseToken(tokenString string) (uuid.UUID, workflow.Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", errors.New("invalid subject in token")
	}
	rawRole, _ := claims["role"].(string)
	role, ok := workflow.ParseRole(rawRole)
	if !ok {
		return uuid.Nil, "", errors.New("role not found in token")
	}
	return id, role, nil
}

// TokenFromRequest reads the access token from the cookie, falling back to a Bearer header.
func TokenFromRequest(c *gin.Context) (string, error) {
	if tokenString, err := c.Cookie(AccessCookie); err == nil && tokenString != "" {
		return tokenString, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errNoToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization format. Expected 'Bearer <token>'")
	}
	return parts[1], nil
}

// RequireRole validates the access token and checks the caller's role against allowedRoles.
// With no roles given, any authenticated user passes.
func RequireRole(allowedRoles ...workflow.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := TokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		userID, role, err := ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		if len(allowedRoles) > 0 {
			roleAllowed := false
			for _, r := range allowedRoles {
				if role == r {
					roleAllowed = true
					break
				}
			}
			if !roleAllowed {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
				return
			}
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxUserRole, role)
		c.Next()
	}
}

// ActorFrom returns the caller set by RequireRole.
func ActorFrom(c *gin.Context) (service.Actor, bool) {
	id, ok := c.Get(ctxUserID)
	if !ok {
		return service.Actor{}, false
	}
	role, ok := c.Get(ctxUserRole)
	if !ok {
		return service.Actor{}, false
	}
	userID, ok1 := id.(uuid.UUID)
	userRole, ok2 := role.(workflow.Role)
	if !ok1 || !ok2 {
		return service.Actor{}, false
	}
	return service.Actor{ID: userID, Role: userRole}, true
}

func cookieSameSite() http.SameSite {
	// cross-origin deployments need None, which browsers only accept on secure cookies
	if secureCookies {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func SetTokenCookies(c *gin.Context, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	c.SetSameSite(cookieSameSite())
	c.SetCookie(AccessCookie, accessToken, int(accessTTL.Seconds()), "/", "", secureCookies, true)
	c.SetCookie(RefreshCookie, refreshToken, int(refreshTTL.Seconds()), "/", "", secureCookies, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func ClearTokenCookies(c *gin.Context) {
	c.SetSameSite(cookieSameSite())
	c.SetCookie(AccessCookie, "", -1, "/", "", secureCookies, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", secureCookies, true)
}
