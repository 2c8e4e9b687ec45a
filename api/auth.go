package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"familypoints/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidRole  = errors.New("token role must be parent or child")
)

// Claims are the JWT claims an upstream authentication layer issues
type Claims struct {
	jwt.RegisteredClaims
	Role     models.ActorRole `json:"role"`
	UserID   int64            `json:"uid,omitempty"`
	FamilyID int64            `json:"fid"`
	ChildID  int64            `json:"cid,omitempty"`
}

// Actor converts the claims into the actor variant they describe
func (c *Claims) Actor() (models.Actor, error) {
	if c.FamilyID <= 0 {
		return nil, fmt.Errorf("%w: missing family", ErrInvalidToken)
	}
	switch c.Role {
	case models.ActorRoleParent:
		if c.UserID <= 0 {
			return nil, fmt.Errorf("%w: missing user", ErrInvalidToken)
		}
		return models.ParentActor{UserID: c.UserID, FamilyID: c.FamilyID}, nil
	case models.ActorRoleChild:
		if c.ChildID <= 0 {
			return nil, fmt.Errorf("%w: missing child", ErrInvalidToken)
		}
		return models.ChildActor{ChildID: c.ChildID, FamilyID: c.FamilyID}, nil
	}
	return nil, ErrInvalidRole
}

// IssueToken signs an HS256 token for actor
func IssueToken(secret []byte, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     actor.Role(),
		FamilyID: actor.Family(),
	}
	switch a := actor.(type) {
	case models.ParentActor:
		claims.UserID = a.UserID
	case models.ChildActor:
		claims.ChildID = a.ChildID
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ParseToken validates an HS256 token and resolves its actor
func ParseToken(secret []byte, tokenString string) (models.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims.Actor()
}

type actorKey struct{}

// WithActor stores the resolved actor in ctx
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor resolved for the request, if any
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}

// authenticate resolves the bearer token into an actor
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrMissingToken.Error())
			return
		}

		actor, err := ParseToken(s.jwtSecret, tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// requireAdmin checks the static admin token
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" || r.Header.Get("X-Admin-Token") != s.adminToken {
			writeError(w, http.StatusForbidden, "authorization", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
