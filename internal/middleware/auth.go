package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// AdminRole is the role claim required for catalog mutations
const AdminRole = "admin"

// SubjectKey is the gin context key holding the authenticated subject
const SubjectKey = "subject"

// Claims are the JWT claims accepted by AdminAuth
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 admin token for subject
func IssueAdminToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := &Claims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ParseAdminToken validates signature, issuer, expiry and role
func ParseAdminToken(secret, issuer, tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if claims.Role != AdminRole {
		return nil, fmt.Errorf("role %q may not modify the catalog", claims.Role)
	}
	return claims, nil
}

// AdminAuth requires a bearer token signed with secret carrying the admin
// role. With an empty secret every request is rejected.
func AdminAuth(secret, issuer string, logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return func(c *gin.Context) {
		if secret == "" {
			Abort(c, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "Admin API disabled", "no jwt secret configured")
			return
		}

		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			Abort(c, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "Missing bearer token", "")
			return
		}

		claims, err := ParseAdminToken(secret, issuer, tokenString)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"correlation_id": c.GetString(CorrelationIDKey),
				"client_ip":      c.ClientIP(),
				"error":          err.Error(),
			}).Warn("Rejected admin token")
			Abort(c, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "Invalid token", err.Error())
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
