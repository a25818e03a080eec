package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"leadcall-platform/internal/callog"
	"leadcall-platform/internal/config"
	"leadcall-platform/internal/telephony"
	"leadcall-platform/pkg/utils"
)

const dialSlotKey = "dialer:slots"

// Scheduler places outbound calls after a delay and retries failures
// with exponential backoff.
//
// Concurrency model: each armed attempt is one goroutine selecting on
// its timer and a cancellation context derived from the scheduler's
// base context. Attempts within a call chain are sequential; the next
// timer is armed only after the previous attempt resolves. The shutdown
// flag is re-checked under the lock at every point where a new timer
// could be armed, so no attempt starts after Shutdown returns.
type Scheduler struct {
	provider telephony.CallProvider // nil disables dialing
	journal  callog.Repository      // optional

	cfg       config.DialerConfig
	answerURL string
	statusURL string

	log   *slog.Logger
	clock func() time.Time

	// Concurrency cap; both nil when no redis is configured.
	acquireSlot func(ctx context.Context) (bool, error)
	releaseSlot func()

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu           sync.Mutex
	records      map[string]*CallRecord
	timers       map[string]context.CancelFunc
	shuttingDown bool
}

func NewScheduler(provider telephony.CallProvider, journal callog.Repository, rdb *redis.Client,
	cfg config.DialerConfig, tel config.TelephonyConfig, log *slog.Logger) *Scheduler {

	if log == nil {
		log = slog.Default()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		provider:   provider,
		journal:    journal,
		cfg:        cfg,
		answerURL:  tel.AnswerURL,
		statusURL:  tel.StatusCallbackURL,
		log:        log,
		clock:      time.Now,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		records:    make(map[string]*CallRecord),
		timers:     make(map[string]context.CancelFunc),
	}
	if rdb != nil && cfg.MaxConcurrentDials > 0 {
		s.acquireSlot = func(ctx context.Context) (bool, error) {
			return utils.AcquireDialSlot(ctx, rdb, dialSlotKey, cfg.MaxConcurrentDials, cfg.DialTimeout*2)
		}
		s.releaseSlot = func() {
			if err := utils.ReleaseDialSlot(context.Background(), rdb, dialSlotKey); err != nil {
				log.Warn("dial slot release failed", "err", err)
			}
		}
	}
	return s
}

// ScheduleCall queues an outbound call to a lead after delay. A
// non-positive delay uses the configured default. Returns the call id,
// or "" when nothing was scheduled.
func (s *Scheduler) ScheduleCall(leadID, phone string, delay time.Duration) string {
	if phone == "" {
		s.log.Debug("schedule skipped, no phone", "lead_id", leadID)
		return ""
	}
	if s.provider == nil {
		s.log.Debug("schedule skipped, no call provider configured", "lead_id", leadID)
		return ""
	}
	if delay <= 0 {
		delay = s.cfg.DefaultDelay
	}

	now := s.clock()
	// Timestamp-keyed so the same lead can be scheduled again later
	// without colliding with a finished chain.
	callID := fmt.Sprintf("%s-%d", leadID, now.UnixMilli())

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		s.log.Warn("schedule rejected, scheduler shutting down", "lead_id", leadID)
		return ""
	}
	s.records[callID] = &CallRecord{
		CallID:        callID,
		LeadID:        leadID,
		Phone:         phone,
		Status:        callog.StatusPending,
		NextAttemptAt: now.Add(delay),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.armLocked(callID, delay)
	s.mu.Unlock()

	s.log.Info("call scheduled", "call_id", callID, "lead_id", leadID, "delay", delay)
	return callID
}

// armLocked starts the attempt timer. Caller holds s.mu and has already
// verified the scheduler is not shutting down.
func (s *Scheduler) armLocked(callID string, delay time.Duration) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.timers[callID] = cancel

	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			s.dial(callID)
		case <-ctx.Done():
		}
	}()
}

func (s *Scheduler) dial(callID string) {
	s.mu.Lock()
	delete(s.timers, callID)
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	rec, ok := s.records[callID]
	if !ok || rec.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	// Concurrency cap applies before the attempt is consumed.
	slotHeld := false
	if s.acquireSlot != nil {
		acquired, err := s.acquireSlot(s.baseCtx)
		switch {
		case err != nil:
			// Redis trouble must not stop dialing. The slot was not
			// taken, so it must not be released either.
			s.log.Warn("dial slot check failed, proceeding", "call_id", callID, "err", err)
		case !acquired:
			delay := s.cfg.RetryBase
			rec.NextAttemptAt = s.clock().Add(delay)
			s.armLocked(callID, delay)
			s.mu.Unlock()
			s.log.Info("dial deferred, concurrency cap reached", "call_id", callID, "delay", delay)
			return
		default:
			slotHeld = true
		}
	}

	rec.Attempts++
	rec.Status = callog.StatusDialing
	rec.UpdatedAt = s.clock()
	attempt := rec.Attempts
	phone := rec.Phone
	leadID := rec.LeadID
	s.mu.Unlock()

	s.record(callID, leadID, phone, attempt, callog.StatusDialing, "", 0, "")

	// In-flight dials are not cancelled by Shutdown; they just are not
	// waited for.
	dialCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	res, err := s.provider.MakeCall(dialCtx, telephony.MakeCallRequest{
		To:                phone,
		CallID:            callID,
		AnswerURL:         s.answerURL,
		StatusCallbackURL: s.statusURL,
		TimeoutSeconds:    int(s.cfg.DialTimeout / time.Second),
	})
	cancel()
	if slotHeld {
		s.releaseSlot()
	}

	switch {
	case err != nil:
		s.handleDialFailure(callID, leadID, phone, attempt, err)
	case res.Skipped:
		s.finish(callID, callog.StatusSkipped, "", 0, res.Reason)
		s.log.Info("dial skipped", "call_id", callID, "reason", res.Reason)
	default:
		s.mu.Lock()
		if rec, ok := s.records[callID]; ok {
			rec.Status = callog.StatusSuccess
			rec.ProviderCallID = res.ProviderCallID
			rec.LastError = ""
			rec.NextAttemptAt = time.Time{}
			rec.UpdatedAt = s.clock()
		}
		s.mu.Unlock()
		s.record(callID, leadID, phone, attempt, callog.StatusSuccess, res.ProviderCallID, 0, "")
		s.log.Info("dial placed", "call_id", callID, "attempt", attempt, "provider_call_id", res.ProviderCallID)
	}
}

// finish marks a chain terminal with no further attempts and journals
// the outcome.
func (s *Scheduler) finish(callID string, status callog.Status, providerCallID string, duration int, reason string) {
	s.mu.Lock()
	rec, ok := s.records[callID]
	if !ok {
		s.mu.Unlock()
		return
	}
	rec.Status = status
	if providerCallID != "" {
		rec.ProviderCallID = providerCallID
	}
	rec.LastError = reason
	rec.NextAttemptAt = time.Time{}
	rec.UpdatedAt = s.clock()
	leadID, phone, attempt := rec.LeadID, rec.Phone, rec.Attempts
	s.mu.Unlock()

	s.record(callID, leadID, phone, attempt, status, providerCallID, duration, reason)
}

func (s *Scheduler) handleDialFailure(callID, leadID, phone string, attempt int, dialErr error) {
	s.mu.Lock()
	rec, ok := s.records[callID]
	if !ok {
		s.mu.Unlock()
		return
	}
	rec.LastError = dialErr.Error()

	if attempt >= s.cfg.MaxRetries {
		rec.Status = callog.StatusFailed
		rec.NextAttemptAt = time.Time{}
		rec.UpdatedAt = s.clock()
		s.mu.Unlock()
		s.record(callID, leadID, phone, attempt, callog.StatusFailed, "", 0, dialErr.Error())
		s.log.Warn("call failed, retries exhausted", "call_id", callID, "attempts", attempt, "err", dialErr)
		return
	}

	// Re-check under the same lock that arms the timer: a shutdown
	// between the dial and this point must not start a new attempt.
	if s.shuttingDown {
		rec.Status = callog.StatusCancelled
		rec.UpdatedAt = s.clock()
		s.mu.Unlock()
		s.record(callID, leadID, phone, attempt, callog.StatusCancelled, "", 0, "shutdown")
		return
	}

	delay := s.retryDelay(attempt)
	rec.Status = callog.StatusPending
	rec.NextAttemptAt = s.clock().Add(delay)
	rec.UpdatedAt = s.clock()
	s.armLocked(callID, delay)
	s.mu.Unlock()

	s.log.Info("dial failed, retry armed", "call_id", callID, "attempt", attempt, "retry_in", delay, "err", dialErr)
}

// retryDelay doubles per attempt from the configured base, capped.
func (s *Scheduler) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := s.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.RetryMaxDelay {
			return s.cfg.RetryMaxDelay
		}
	}
	if s.cfg.RetryMaxDelay > 0 && delay > s.cfg.RetryMaxDelay {
		delay = s.cfg.RetryMaxDelay
	}
	return delay
}

// MarkProviderStatus applies a provider status callback to a call
// chain. Busy and no-answer outcomes consume the attempt's success and
// arm a retry when budget remains.
func (s *Scheduler) MarkProviderStatus(cb telephony.StatusCallback) {
	if cb.CallID == "" {
		return
	}

	s.mu.Lock()
	rec, ok := s.records[cb.CallID]
	if !ok {
		s.mu.Unlock()
		s.log.Debug("status callback for unknown call", "call_id", cb.CallID)
		return
	}
	leadID, phone, attempt := rec.LeadID, rec.Phone, rec.Attempts

	if cb.IsAnswered() {
		rec.Status = callog.StatusSuccess
		rec.UpdatedAt = s.clock()
		s.mu.Unlock()
		s.record(cb.CallID, leadID, phone, attempt, callog.StatusSuccess, cb.ProviderCallID, cb.DurationSeconds, "")
		return
	}
	if !cb.IsTerminalFailure() {
		s.mu.Unlock()
		return
	}

	// Providers retry status callbacks. Once the chain is terminal, has
	// a retry armed, or is mid-dial, a failure callback is a duplicate
	// and must not arm a second concurrent attempt.
	if _, armed := s.timers[cb.CallID]; armed || rec.Status.Terminal() || rec.Status == callog.StatusDialing {
		s.mu.Unlock()
		s.log.Debug("duplicate status callback ignored", "call_id", cb.CallID, "status", cb.Status)
		return
	}

	if attempt >= s.cfg.MaxRetries || s.shuttingDown {
		rec.Status = callog.StatusFailed
		rec.UpdatedAt = s.clock()
		s.mu.Unlock()
		s.record(cb.CallID, leadID, phone, attempt, callog.StatusFailed, cb.ProviderCallID, cb.DurationSeconds, cb.Status)
		return
	}

	delay := s.retryDelay(attempt)
	rec.Status = callog.StatusPending
	rec.NextAttemptAt = s.clock().Add(delay)
	rec.UpdatedAt = s.clock()
	s.armLocked(cb.CallID, delay)
	s.mu.Unlock()

	s.log.Info("provider reported failure, retry armed",
		"call_id", cb.CallID, "status", cb.Status, "attempt", attempt, "retry_in", delay)
}

// CancelCall stops a pending call chain. Terminal chains are left
// untouched; returns whether anything was cancelled.
func (s *Scheduler) CancelCall(callID string) bool {
	s.mu.Lock()
	rec, ok := s.records[callID]
	if !ok || rec.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	if cancel, armed := s.timers[callID]; armed {
		cancel()
		delete(s.timers, callID)
	}
	rec.Status = callog.StatusCancelled
	rec.NextAttemptAt = time.Time{}
	rec.UpdatedAt = s.clock()
	leadID, phone, attempt := rec.LeadID, rec.Phone, rec.Attempts
	s.mu.Unlock()

	s.record(callID, leadID, phone, attempt, callog.StatusCancelled, "", 0, "cancelled")
	s.log.Info("call cancelled", "call_id", callID)
	return true
}

// CallStatus returns a snapshot of one call chain.
func (s *Scheduler) CallStatus(callID string) (CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	if !ok {
		return CallRecord{}, false
	}
	return *rec, true
}

// PendingCalls lists chains that still have work ahead of them.
func (s *Scheduler) PendingCalls() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range s.records {
		if !rec.Status.Terminal() {
			out = append(out, *rec)
		}
	}
	return out
}

// Stats counts records by status.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Stats{Total: len(s.records)}
	for _, rec := range s.records {
		switch rec.Status {
		case callog.StatusPending:
			out.Pending++
		case callog.StatusDialing:
			out.Dialing++
		case callog.StatusSuccess:
			out.Success++
		case callog.StatusFailed:
			out.Failed++
		case callog.StatusSkipped:
			out.Skipped++
		case callog.StatusCancelled:
			out.Cancelled++
		}
	}
	return out
}

// Shutdown cancels every armed timer and blocks new arming. In-flight
// provider calls are not waited for; their results are still recorded.
// Idempotent.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	for id, cancel := range s.timers {
		cancel()
		delete(s.timers, id)
	}
	pending := 0
	for _, rec := range s.records {
		if !rec.Status.Terminal() {
			if rec.Status == callog.StatusPending {
				rec.Status = callog.StatusCancelled
				rec.UpdatedAt = s.clock()
			}
			pending++
		}
	}
	s.mu.Unlock()

	s.cancelBase()
	s.log.Info("dialer shut down", "interrupted", pending)
}

func (s *Scheduler) record(callID, leadID, phone string, attempt int, status callog.Status, providerCallID string, duration int, errMsg string) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.RecordAttempt(context.Background(), callog.Entry{
		CallID:          callID,
		LeadID:          leadID,
		Phone:           phone,
		Attempt:         attempt,
		Status:          status,
		ProviderCallID:  providerCallID,
		DurationSeconds: duration,
		Error:           errMsg,
	})
	if err != nil {
		s.log.Warn("call journal write failed", "call_id", callID, "err", err)
	}
}
