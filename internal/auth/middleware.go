package auth

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session and request-context keys.
const (
	KeyUserID    = "user_id"
	KeyUserEmail = "user_email"
	KeyUserName  = "user_name"
)

// RequireAuth lets a request through only when the session names a user.
// API callers are refused with 401; browsers are sent to the login page.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		userID, _ := session.Get(KeyUserID).(uint)
		if userID == 0 {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
				return
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		c.Set(KeyUserID, userID)
		c.Set(KeyUserEmail, session.Get(KeyUserEmail))
		c.Set(KeyUserName, session.Get(KeyUserName))
		c.Next()
	}
}

// UserID returns the database ID RequireAuth stored on the request.
func UserID(c *gin.Context) (uint, bool) {
	v, _ := c.Get(KeyUserID)
	id, ok := v.(uint)
	return id, ok && id != 0
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}
