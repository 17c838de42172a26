package middleware

import (
	"net/http"
	"strings"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/gin-gonic/gin"
)

// Identity headers are set by the authenticating proxy in front of the
// server and are trusted as-is.
const (
	UserIDHeader     = "X-User-ID"
	UserNameHeader   = "X-User-Name"
	UserRoleHeader   = "X-User-Role"
	UserGroupsHeader = "X-User-Groups"
)

const identityKey = "identity"

// Identity builds the caller's permissions.Identity from the trusted
// headers. Requests without a user ID are rejected with 401.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":   false,
				"message":   "missing caller identity",
				"errorKind": "unauthenticated",
				"errors":    []string{"missing caller identity"},
			})
			return
		}

		who := permissions.Identity{
			ID:     userID,
			Name:   strings.TrimSpace(c.GetHeader(UserNameHeader)),
			Role:   permissions.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(UserRoleHeader)))),
			Groups: splitGroups(c.GetHeader(UserGroupsHeader)),
		}
		c.Set(identityKey, who)
		c.Next()
	}
}

// GetIdentity returns the identity stored by Identity.
func GetIdentity(c *gin.Context) (permissions.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return permissions.Identity{}, false
	}
	who, ok := v.(permissions.Identity)
	return who, ok
}

func splitGroups(raw string) []string {
	var groups []string
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
