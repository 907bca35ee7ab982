package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/server/auth"
	"github.com/labstack/echo/v4"
)

const claimsKey = "claims"

// publicRoutes need no token. Everything else does, including unknown paths.
var publicRoutes = map[string]struct{}{
	"POST /auth/signup": {},
	"POST /auth/signin": {},
	"GET /":             {},
	"GET /health":       {},
	"GET /metrics":      {},
}

func isPublic(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	_, ok := publicRoutes[r.Method+" "+r.URL.Path]
	return ok
}

// accessTokenMiddleware verifies the bearer token and stores its claims in
// the echo context. It never touches storage.
func (s *HTTPServer) accessTokenMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if isPublic(c.Request()) {
			return next(c)
		}

		token, ok := bearerToken(c.Request().Header.Get(common.AuthorizationHeaderName))
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{
				Error:   "Unauthorized",
				Message: "Authentication required",
			})
		}

		claims, err := auth.ParseToken(token, s.jwtSecret, s.jwtAlgorithm)
		if err != nil {
			s.logger.Debug(c.Request().Context(), "rejected token", "error", err)
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return c.JSON(http.StatusUnauthorized, errorResponse{
				Error:   "Authentication Error",
				Message: "Invalid authentication credentials",
			})
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func claimsFrom(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// ownerID returns the :user_id path parameter after checking it against the
// token's subject.
func ownerID(c echo.Context) (string, error) {
	claims, ok := claimsFrom(c)
	if !ok {
		return "", common.ErrorUnauthorized
	}
	if c.Param("user_id") != claims.UserID {
		return "", common.ErrorForbidden
	}
	return claims.UserID, nil
}

// requestLogger logs one line per request and records HTTP metrics. Errors
// are rendered here so the logged status is the one the client sees.
func (s *HTTPServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		duration := time.Since(start)

		req := c.Request()
		status := c.Response().Status
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}

		s.metrics.ObserveHTTP(req.Method, route, status, duration)
		s.logger.Info(req.Context(), "http request",
			"method", req.Method,
			"uri", req.RequestURI,
			"status", status,
			"duration", duration,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return nil
	}
}
