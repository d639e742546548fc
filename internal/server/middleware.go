package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/ledgerbook/internal/observability/context"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
)

const (
	HeaderOrg   = "X-Org-ID"
	HeaderActor = "X-Actor-ID"
)

// OrgContext scopes the request to the organization named by X-Org-ID. The
// optional X-Actor-ID is recorded on audit entries.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		orgID, err := snowflake.ParseString(raw)
		if raw == "" || err != nil || orgID <= 0 {
			AbortWithError(c, ErrMissingOrganization)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx = obscontext.WithActor(ctx, "user", actor)
		} else {
			ctx = obscontext.WithActor(ctx, "api", "")
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
