package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"leadcall-platform/internal/audit"
	"leadcall-platform/internal/auth"
	"leadcall-platform/internal/config"
	"leadcall-platform/internal/crm"
	"leadcall-platform/internal/dialer"
	"leadcall-platform/internal/idempotency"
	"leadcall-platform/internal/ivr"
	"leadcall-platform/internal/leads"
	"leadcall-platform/internal/rbac"
	"leadcall-platform/internal/reporting"
	"leadcall-platform/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Pipeline  *leads.Pipeline
	Guard     idempotency.Guard
	Scheduler *dialer.Scheduler
	Tokens    *crm.TokenManager
	CRM       *crm.Client
	Protector *leads.FieldProtector
	IVR       *ivr.Engine
	Reports   *reporting.Service
	Audit     *audit.Service

	Telephony config.TelephonyConfig

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is an ops endpoint behind network controls. Real systems
// must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	switch req.Role {
	case rbac.RoleAdmin, rbac.RoleAgent, rbac.RoleAnalyst:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// --- Calls ---

type scheduleCallRequest struct {
	LeadID       string `json:"lead_id"`
	Phone        string `json:"phone"`
	DelaySeconds int    `json:"delay_seconds"`
}

func (h Handlers) ScheduleCall(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	var req scheduleCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.LeadID == "" || req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "lead_id and phone required"})
		return
	}

	phone := leads.NormalizePhone(req.Phone)
	callID := h.Scheduler.ScheduleCall(req.LeadID, phone, time.Duration(req.DelaySeconds)*time.Second)
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "call not scheduled"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"call_id": callID})
}

func (h Handlers) CancelCall(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	callID := c.Param("call_id")
	if !h.Scheduler.CancelCall(callID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found or already finished"})
		return
	}

	if h.Audit != nil {
		uid, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		if err := h.Audit.LogCallCancelled(c.Request.Context(), uid, role, c.ClientIP(), callID); err != nil {
			logger.FromGin(c).Warn("audit write failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "status": "cancelled"})
}

func (h Handlers) CallStatus(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	rec, ok := h.Scheduler.CallStatus(c.Param("call_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) PendingCalls(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": h.Scheduler.PendingCalls()})
}

func (h Handlers) CallStats(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Scheduler.Stats())
}

// --- CRM ---

func (h Handlers) TokenInfo(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "crm not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Tokens.Info())
}

// ForceTokenRefresh discards the cached CRM token and fetches a new one.
// RBAC: admin only.
func (h Handlers) ForceTokenRefresh(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "crm not configured"})
		return
	}
	h.Tokens.Clear()
	if _, err := h.Tokens.Refresh(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "token refresh failed"})
		return
	}

	if h.Audit != nil {
		uid, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.Append(c.Request.Context(), audit.Event{
			Type:        audit.EventTypeTokenRefresh,
			ActorUserID: uid,
			ActorRole:   role,
			IPAddress:   c.ClientIP(),
			Message:     "crm token refresh forced",
		})
	}
	c.JSON(http.StatusOK, h.Tokens.Info())
}

// --- Field ownership ---

type registerFieldRequest struct {
	Name string `json:"name"`
	Tier string `json:"tier"`
}

func (h Handlers) RegisterField(c *gin.Context) {
	if h.Protector == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "field protection not configured"})
		return
	}
	var req registerFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Protector.RegisterField(req.Name, leads.Tier(req.Tier)); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.Audit != nil {
		uid, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		if err := h.Audit.LogFieldRegistered(c.Request.Context(), uid, role, c.ClientIP(), req.Name, req.Tier); err != nil {
			logger.FromGin(c).Warn("audit write failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"name": req.Name, "tier": req.Tier})
}

// --- Reports ---

func (h Handlers) CallOutcomeReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	r, err := parseTimeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rep, err := h.Reports.CallOutcomes(c.Request.Context(), r)
	if err != nil {
		status := http.StatusInternalServerError
		if err == reporting.ErrInvalidRequest {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h Handlers) LeadCallHistory(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	hist, err := h.Reports.HistoryForLead(c.Request.Context(), c.Param("lead_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if err == reporting.ErrInvalidRequest {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hist)
}

func parseTimeRange(c *gin.Context) (reporting.TimeRange, error) {
	var r reporting.TimeRange
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return r, errInvalidParam("from")
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return r, errInvalidParam("to")
	}
	r.From, r.To = from, to
	return r, nil
}

type paramError string

func (e paramError) Error() string { return "invalid or missing " + string(e) + " (RFC3339)" }

func errInvalidParam(name string) error { return paramError(name) }

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
