package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/taskhub/core/internal/application/services"
	"github.com/taskhub/core/internal/domain/entities"
)

// authMiddleware validates JWT tokens and stores the acting user's
// identity in the request context under "user_id" and "user_role".
func (s *Server) authMiddleware(authService *services.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				s.logger.Warnw("Invalid token", "error", err, "ip", c.RealIP())
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			c.Set("user_id", claims.UserID)
			c.Set("user_role", claims.Role)
			c.Set("user_email", claims.Email)

			return next(c)
		}
	}
}

// requireRole checks if user has one of the required roles
func (s *Server) requireRole(roles ...entities.UserRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRole, ok := c.Get("user_role").(entities.UserRole)
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, "Role information not found")
			}

			for _, requiredRole := range roles {
				if userRole == requiredRole {
					return next(c)
				}
			}

			s.logger.Warnw("Insufficient permissions",
				"user_id", c.Get("user_id"),
				"user_role", userRole,
				"required_roles", roles,
				"endpoint", c.Request().URL.Path,
				"ip", c.RealIP(),
			)

			return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
		}
	}
}
