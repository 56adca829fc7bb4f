package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Ananth-NQI/convo-followups/internal/config"
	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/services"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

// ResultPublisher receives the outcome of every dispatch attempt
type ResultPublisher interface {
	PublishResult(ctx context.Context, result models.DispatchResult) error
}

// TickSummary counts what one tick did
type TickSummary struct {
	Conversations int
	Sent          int
	Failed        int
	Completed     int
}

// FollowUpJob is the scheduler loop. Every tick it walks the armed
// attachments and sends each unlocked template once per anchor epoch.
// Several processes may run it against the same database; the dispatch
// ledger keeps sends at most once.
type FollowUpJob struct {
	store      storage.Store
	dispatcher services.Dispatcher
	publisher  ResultPublisher

	interval        time.Duration
	dispatchTimeout time.Duration
	claimLease      time.Duration
	workers         int
	markRetries     int
	markBackoff     time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	isRunning bool
}

// NewFollowUpJob creates a new follow-up scheduler
func NewFollowUpJob(store storage.Store, dispatcher services.Dispatcher, cfg config.FollowUpConfig) *FollowUpJob {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	// A claim must outlive its send, or another worker reaps and resends it.
	lease := cfg.ClaimLease
	if lease > 0 && lease <= cfg.DispatchTimeout {
		lease = 2 * cfg.DispatchTimeout
		log.Printf("⚠️ FOLLOWUP_CLAIM_LEASE %s is not above the dispatch timeout %s, using %s",
			cfg.ClaimLease, cfg.DispatchTimeout, lease)
	}
	return &FollowUpJob{
		store:           store,
		dispatcher:      dispatcher,
		interval:        cfg.TickInterval,
		dispatchTimeout: cfg.DispatchTimeout,
		claimLease:      lease,
		workers:         workers,
		markRetries:     3,
		markBackoff:     200 * time.Millisecond,
		Now:             time.Now,
	}
}

// SetPublisher attaches a publisher for dispatch results
func (j *FollowUpJob) SetPublisher(p ResultPublisher) {
	j.publisher = p
}

// Start schedules Tick every interval. A tick still running when the next
// one is due makes the next one skip.
func (j *FollowUpJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isRunning {
		log.Println("Follow-up job already running")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	spec := fmt.Sprintf("@every %s", j.interval)
	if _, err := c.AddFunc(spec, func() {
		summary := j.Tick(context.Background(), j.Now())
		if summary.Sent > 0 || summary.Failed > 0 {
			log.Printf("Follow-up tick: %d conversations, %d sent, %d failed, %d completed",
				summary.Conversations, summary.Sent, summary.Failed, summary.Completed)
		}
	}); err != nil {
		return fmt.Errorf("schedule follow-up tick %q: %w", spec, err)
	}
	c.Start()

	j.cron = c
	j.isRunning = true
	log.Printf("Follow-up job started (every %s, %d workers)", j.interval, j.workers)
	return nil
}

// Stop halts scheduling and waits for a running tick to finish
func (j *FollowUpJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.isRunning {
		return
	}
	log.Println("Stopping follow-up job...")
	<-j.cron.Stop().Done()
	j.isRunning = false
}

// Tick runs one pass of the loop at now. Failures in one conversation are
// logged and never stop the others.
func (j *FollowUpJob) Tick(ctx context.Context, now time.Time) TickSummary {
	j.housekeeping(ctx, now)

	attachments, err := j.store.ListArmedAttachments(ctx)
	if err != nil {
		log.Printf("Error listing armed follow-ups: %v", err)
		return TickSummary{}
	}

	var sent, failed, completed atomic.Int64
	var g errgroup.Group
	g.SetLimit(j.workers)
	for _, a := range attachments {
		a := a
		g.Go(func() error {
			res := j.processConversation(ctx, a.ConversationID, now)
			sent.Add(int64(res.Sent))
			failed.Add(int64(res.Failed))
			completed.Add(int64(res.Completed))
			return nil
		})
	}
	_ = g.Wait()

	return TickSummary{
		Conversations: len(attachments),
		Sent:          int(sent.Load()),
		Failed:        int(failed.Load()),
		Completed:     int(completed.Load()),
	}
}

func (j *FollowUpJob) housekeeping(ctx context.Context, now time.Time) {
	if j.claimLease > 0 {
		n, err := j.store.ReapStaleClaims(ctx, now.Add(-j.claimLease))
		if err != nil {
			log.Printf("Error reaping stale claims: %v", err)
		} else if n > 0 {
			log.Printf("⚠️ Released %d stale follow-up claims", n)
		}
	}
	if _, err := j.store.DeleteExpiredArmConfirmations(ctx, now); err != nil {
		log.Printf("Error deleting expired arm confirmations: %v", err)
	}
}

// processConversation handles one attachment. It re-reads the attachment so
// a disarm or a new epoch since the listing is honoured.
func (j *FollowUpJob) processConversation(ctx context.Context, conversationID string, now time.Time) (res TickSummary) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Panic processing follow-up for %s: %v\n%s", conversationID, r, debug.Stack())
			res.Failed++
		}
	}()

	a, err := j.store.GetAttachment(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, followup.ErrNotFound) {
			log.Printf("Error loading follow-up for %s: %v", conversationID, err)
		}
		return res
	}
	if !a.AutoSend || a.Completed {
		return res
	}

	templates, err := j.store.ListTemplates(ctx, a.CategoryID)
	if err != nil {
		log.Printf("Error loading templates for category %d: %v", a.CategoryID, err)
		return res
	}

	for _, t := range templates {
		// Templates are ordered by delay, so the rest are locked too.
		if !followup.IsUnlocked(t, a.AnchorAt, now) {
			break
		}
		ok, err := j.dispatch(ctx, a, t)
		if err != nil {
			res.Failed++
			// Later templates wait so the cadence order holds.
			return res
		}
		if ok {
			res.Sent++
		}
	}

	if j.markCompleted(ctx, a, templates) {
		res.Completed++
	}
	return res
}

// dispatch claims and sends one template. It reports whether this call sent
// it; a template claimed elsewhere is skipped without error.
func (j *FollowUpJob) dispatch(ctx context.Context, a *models.Attachment, t models.Template) (bool, error) {
	claim, err := j.store.TryClaim(ctx, a.ConversationID, t.ID, a.Epoch, j.Now())
	if err != nil {
		log.Printf("Error claiming template %d for %s: %v", t.ID, a.ConversationID, err)
		return false, err
	}
	if claim == models.AlreadyClaimed {
		return false, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, j.dispatchTimeout)
	sendErr := j.dispatcher.Send(sendCtx, a.ConversationID, t.Message)
	cancel()

	if sendErr != nil {
		log.Printf("❌ Follow-up %d to %s failed: %v", t.ID, a.ConversationID, sendErr)
		if err := j.store.Release(ctx, a.ConversationID, t.ID, a.Epoch); err != nil {
			// The lease reaper frees it later.
			log.Printf("Error releasing claim for template %d on %s: %v", t.ID, a.ConversationID, err)
		}
		j.publish(ctx, a, t, sendErr)
		return false, sendErr
	}

	if err := j.markSent(ctx, a, t); err != nil {
		// The claim only blocks a resend until the lease runs out.
		log.Printf("🚨 Template %d went out to %s but could not be marked sent: %v", t.ID, a.ConversationID, err)
	}
	log.Printf("✅ Follow-up %q sent to %s", t.Name, a.ConversationID)
	j.publish(ctx, a, t, nil)
	return true, nil
}

// markSent records a delivered message, retrying because an unsent claim
// is eventually reaped and the template sent again.
func (j *FollowUpJob) markSent(ctx context.Context, a *models.Attachment, t models.Template) error {
	var err error
	for attempt := 1; attempt <= j.markRetries; attempt++ {
		if err = j.store.MarkSent(ctx, a.ConversationID, t.ID, a.Epoch, j.Now()); err == nil {
			return nil
		}
		log.Printf("Error marking template %d sent for %s (attempt %d/%d): %v",
			t.ID, a.ConversationID, attempt, j.markRetries, err)
		if attempt == j.markRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * j.markBackoff):
		}
	}
	return err
}

// markCompleted sets completed when every template has a sent record for
// the attachment's epoch. An empty category is complete at once.
func (j *FollowUpJob) markCompleted(ctx context.Context, a *models.Attachment, templates []models.Template) bool {
	sent, err := j.store.SentTemplateIDs(ctx, a.ConversationID, a.Epoch)
	if err != nil {
		log.Printf("Error reading ledger for %s: %v", a.ConversationID, err)
		return false
	}
	for _, t := range templates {
		if !sent[t.ID] {
			return false
		}
	}

	ok, err := j.store.SetCompleted(ctx, a.ConversationID, a.Epoch, true)
	if err != nil {
		log.Printf("Error completing follow-up for %s: %v", a.ConversationID, err)
		return false
	}
	if ok {
		log.Printf("Follow-up cadence completed for %s", a.ConversationID)
	}
	return ok
}

func (j *FollowUpJob) publish(ctx context.Context, a *models.Attachment, t models.Template, sendErr error) {
	if j.publisher == nil {
		return
	}
	result := models.DispatchResult{
		ConversationID: a.ConversationID,
		TemplateID:     t.ID,
		EpochAnchorAt:  a.Epoch,
		Success:        sendErr == nil,
		At:             j.Now().UTC(),
	}
	if sendErr != nil {
		result.Error = sendErr.Error()
	}
	if err := j.publisher.PublishResult(ctx, result); err != nil {
		log.Printf("Error publishing dispatch result for %s: %v", a.ConversationID, err)
	}
}
