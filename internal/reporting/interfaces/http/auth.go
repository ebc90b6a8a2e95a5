package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/pkg/middleware"
)

const principalKey = "reporting.principal"

// Claims 访问令牌声明：sub 为用户 ID，role 与 org 描述权限范围
type Claims struct {
	Role           string `json:"role"`
	OrganizationID uint64 `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware 校验 HS256 Bearer 令牌并注入 Principal
func AuthMiddleware(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			unauthenticated(c, "missing bearer token")
			return
		}

		var claims Claims
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			unauthenticated(c, msg)
			return
		}

		role, err := domain.ParseRole(claims.Role)
		if err != nil || claims.Subject == "" {
			unauthenticated(c, "token lacks subject or role")
			return
		}
		p := domain.Principal{ID: claims.Subject, Role: role, OrganizationID: claims.OrganizationID}
		c.Set(principalKey, p)
		c.Set(middleware.SubjectKey, p.ID)
		c.Next()
	}
}

// SignToken 签发访问令牌，供运维工具与测试使用
func SignToken(secret, issuer string, p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:           string(p.Role),
		OrganizationID: p.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func principalOf(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}

func unauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error:   msg,
		Code:    CodeUnauthenticated,
	})
}
