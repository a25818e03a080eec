package main

import (
	"github.com/gin-gonic/gin"

	"leadcall-platform/internal/httpapi"
	"leadcall-platform/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Inbound webhooks (public).
	// NOTE: IVR endpoints should be protected by provider signature
	// validation in production.
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/leads", h.IngestLead)
		webhooks.POST("/ivr/answer", h.IVRAnswer)
		webhooks.POST("/ivr/gather", h.IVRGather)
		webhooks.POST("/ivr/status", h.IVRStatus)
	}

	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)

		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleAgent))
		{
			calls.POST("/schedule", h.ScheduleCall)
			calls.GET("/pending", h.PendingCalls)
			calls.GET("/stats", h.CallStats)
			calls.GET("/:call_id", h.CallStatus)
			calls.DELETE("/:call_id", h.CancelCall)
		}

		crmGroup := v1.Group("/crm")
		crmGroup.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			crmGroup.GET("/token", h.TokenInfo)
			crmGroup.POST("/token/refresh", h.ForceTokenRefresh)
			crmGroup.POST("/fields", h.RegisterField)
		}

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleAnalyst, rbac.RoleAgent))
		{
			reports.GET("/outcomes", h.CallOutcomeReport)
			reports.GET("/leads/:lead_id", h.LeadCallHistory)
		}
	}
}
