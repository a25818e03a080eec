package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"leadcall-platform/internal/crm"
	"leadcall-platform/internal/idempotency"
	"leadcall-platform/internal/leads"
	"leadcall-platform/internal/telephony"
	"leadcall-platform/pkg/logger"
)

// Webhook endpoints are public; providers and form vendors cannot carry
// our JWTs. Lead intake is replay-guarded instead, and IVR callbacks
// should sit behind provider signature validation in production.

type leadWebhookResponse struct {
	leads.Result
	CallID string `json:"callId,omitempty"`
}

// IngestLead accepts a lead payload, upserts it into the CRM and
// schedules the first outbound call.
//
// Exact retries within the idempotency window replay the stored
// response without touching the CRM or the dialer again.
func (h Handlers) IngestLead(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Pipeline == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lead pipeline not configured"})
		return
	}

	var in leads.LeadInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	lead := leads.Normalize(in)
	if !lead.HasIdentity() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email or phone required"})
		return
	}

	key := idempotency.KeyFromLead(lead.Email, lead.Phone, h.now())
	if h.Guard != nil {
		stored, ok, err := h.Guard.Check(c.Request.Context(), key)
		if err != nil {
			// Guard trouble must not lose leads; process normally.
			log.Warn("idempotency check failed, proceeding", "err", err)
		} else if ok {
			var prev leadWebhookResponse
			if json.Unmarshal(stored, &prev) == nil {
				c.Header("X-Idempotent-Replay", "true")
				c.JSON(http.StatusOK, prev)
				return
			}
		}
	}

	res, err := h.Pipeline.ProcessLead(c.Request.Context(), lead)
	if err != nil {
		if errors.Is(err, leads.ErrMissingIdentity) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("lead processing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "crm write failed"})
		return
	}

	out := leadWebhookResponse{Result: res}
	if res.Action == leads.ActionCreated && h.Scheduler != nil {
		out.CallID = h.Scheduler.ScheduleCall(res.RecordID, lead.Phone, 0)
	}

	if h.Guard != nil {
		if body, err := json.Marshal(out); err == nil {
			if err := h.Guard.Store(c.Request.Context(), key, body); err != nil {
				log.Warn("idempotency store failed", "err", err)
			}
		}
	}
	c.JSON(http.StatusOK, out)
}

// IVRAnswer serves the prompt markup when the callee picks up.
func (h Handlers) IVRAnswer(c *gin.Context) {
	if h.IVR == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ivr not configured"})
		return
	}

	callID := c.Query("call_id")
	replays := atoiDefault(c.Query("replays"), 0)

	markup, err := telephony.RenderPrompt("", &telephony.GatherSpec{
		ActionURL: h.gatherURL(callID, replays),
		Prompt:    h.IVR.Prompt(),
		NumDigits: 1,
		Timeout:   8,
	})
	if err != nil {
		logger.FromGin(c).Error("ivr markup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "markup failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, markup)
}

// IVRGather applies a keypress: records the outcome on the CRM lead and
// answers with the next markup.
func (h Handlers) IVRGather(c *gin.Context) {
	log := logger.FromGin(c)
	if h.IVR == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ivr not configured"})
		return
	}

	cb, err := telephony.ParseGatherCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	replays := atoiDefault(c.Query("replays"), 0)

	// Providers retry gather callbacks on slow responses. Replay the
	// stored markup so one keypress is applied exactly once.
	var gatherKey string
	if h.Guard != nil && cb.CallID != "" {
		gatherKey = idempotency.KeyFromParts("ivr-gather", cb.CallID, cb.ProviderCallID, cb.Digits, strconv.Itoa(replays))
		if stored, ok, err := h.Guard.Check(c.Request.Context(), gatherKey); err == nil && ok {
			c.Header("X-Idempotent-Replay", "true")
			c.Header("Content-Type", "application/xml")
			c.String(http.StatusOK, string(stored))
			return
		}
	}

	decision := h.IVR.Decide(cb.Digits, replays)

	if decision.LeadStatus != "" && h.CRM != nil && cb.CallID != "" && h.Scheduler != nil {
		if rec, ok := h.Scheduler.CallStatus(cb.CallID); ok && rec.LeadID != "" {
			// The callee's own choice outranks field protection.
			if _, err := h.CRM.Update(c.Request.Context(), rec.LeadID, crm.Record{"Lead_Status": decision.LeadStatus}); err != nil {
				log.Error("lead status update failed", "call_id", cb.CallID, "err", err)
			} else {
				log.Info("lead status set from ivr", "call_id", cb.CallID, "status", decision.LeadStatus)
			}
		}
	}

	var markup string
	if decision.Replay {
		markup, err = telephony.RenderRedirect(decision.Say, h.answerURL(cb.CallID, replays+1))
	} else {
		markup, err = telephony.RenderPrompt(decision.Say, nil)
	}
	if err != nil {
		log.Error("ivr markup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "markup failed"})
		return
	}
	if gatherKey != "" {
		if err := h.Guard.Store(c.Request.Context(), gatherKey, []byte(markup)); err != nil {
			log.Warn("gather idempotency store failed", "err", err)
		}
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, markup)
}

// IVRStatus feeds provider call status events into the dialer.
func (h Handlers) IVRStatus(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	cb, err := telephony.ParseStatusCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	h.Scheduler.MarkProviderStatus(cb)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h Handlers) gatherURL(callID string, replays int) string {
	return withParams(h.Telephony.GatherURL, callID, replays)
}

func (h Handlers) answerURL(callID string, replays int) string {
	return withParams(h.Telephony.AnswerURL, callID, replays)
}

func withParams(rawURL, callID string, replays int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if callID != "" {
		q.Set("call_id", callID)
	}
	if replays > 0 {
		q.Set("replays", strconv.Itoa(replays))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
