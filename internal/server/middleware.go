package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gymstack/gymstack/internal/authorization"
	"github.com/gymstack/gymstack/internal/orgcontext"
	"go.uber.org/zap"
)

const (
	HeaderOrgID     = "X-Org-ID"
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
		}
		if c.Writer.Status() >= 500 {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// OrgContext scopes the request to the organization named in X-Org-ID.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrgID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID == 0 {
			AbortWithError(c, ErrInvalidOrgScope)
			return
		}
		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), orgID))
		c.Next()
	}
}

// ActorContext records the acting staff member. Both headers are optional
// here; RequirePermission rejects requests without a role.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := orgcontext.Actor{Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))}
		if raw := strings.TrimSpace(c.GetHeader(HeaderActorID)); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, ErrInvalidActorID)
				return
			}
			actor.ID = id
		}
		c.Request = c.Request.WithContext(orgcontext.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func (s *Server) RequirePermission(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := orgcontext.ActorFromContext(c.Request.Context())
		if err := s.authz.Authorize(actor.Role, authorization.ObjectMembership, action); err != nil {
			s.log.Info("permission denied",
				zap.String("role", actor.Role),
				zap.String("action", action),
				zap.Error(err),
			)
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
