package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"djhub-api/res/auth"
	"djhub-api/res/store"

	"github.com/gin-gonic/gin"
)

// SESSION USER GETTER

type contextKey string

var (
	contextKeyCurrentUser = contextKey("currentUser")
	contextKeySystemActor = contextKey("systemActor")
)

func GetCurrentUser(ctx context.Context) *store.User {
	if val := ctx.Value(contextKeyCurrentUser); val != nil {
		if currentUser, ok := val.(*store.User); ok {
			return currentUser
		}
	}

	return nil
}

func WithCurrentUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, contextKeyCurrentUser, user)
}

// WithSystemActor marks ctx as acting on behalf of an internal caller such as a processor webhook
func WithSystemActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeySystemActor, actorID)
}

func getSystemActor(ctx context.Context) string {
	actorID, _ := ctx.Value(contextKeySystemActor).(string)
	return actorID
}

// AUTH MIDDLEWARE

const authForbiddenCode = "FORBIDDEN"

// AuthMiddleware resolves the bearer token into the current user.
// Requests without an Authorization header pass through anonymously.
func AuthMiddleware(logger *log.Logger, storeImpl store.Store, authImpl auth.Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		headerVal := c.GetHeader("Authorization")

		if len(headerVal) == 0 {
			c.Next()
			return
		}

		headerValParts := strings.Split(headerVal, " ")
		if len(headerValParts) != 2 || !strings.EqualFold(headerValParts[0], "Bearer") {
			AbortWithError(c, http.StatusUnauthorized, "Malformed Authorization header", authForbiddenCode)
			return
		}

		var accessTokenClaims auth.AccessTokenClaims
		err := authImpl.ValidateToken(headerValParts[1], &accessTokenClaims)
		if err != nil || !accessTokenClaims.IsAccessToken {
			AbortWithError(c, http.StatusUnauthorized, "Invalid Authorization header", authForbiddenCode)
			return
		}

		currentUser, err := storeImpl.Users().Get(c.Request.Context(), accessTokenClaims.UserID)
		if err != nil || currentUser == nil {
			if err != nil {
				logger.Printf("Error loading user %s of access token: %s", accessTokenClaims.UserID, err)
			}
			AbortWithError(c, http.StatusUnauthorized, "Invalid Authorization header", authForbiddenCode)
			return
		}

		c.Request = c.Request.WithContext(WithCurrentUser(c.Request.Context(), currentUser))
		c.Next()
	}
}

// AbortWithError stops the chain with a JSON error body
func AbortWithError(c *gin.Context, status int, errorMsg, errorCode string) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.AbortWithStatusJSON(status, gin.H{"error": errorMsg, "code": errorCode})
}
