// Package scheduler runs the periodic reminder and fact-push cycles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pathakanu/dingbot/internal/model"
	"github.com/pathakanu/dingbot/internal/notify"
)

// ReminderStore is the part of the reminder table the cycle needs.
type ReminderStore interface {
	Due(ctx context.Context, now time.Time) ([]model.Reminder, error)
	Advance(ctx context.Context, id uint, now time.Time) error
}

// History supplies chat logs and stores extracted facts.
type History interface {
	Users(ctx context.Context) ([]string, error)
	Recent(ctx context.Context, userID string, limit int) ([]model.Message, error)
	SetFacts(ctx context.Context, userID string, facts []string) error
}

// Writer produces push message text.
type Writer interface {
	ReminderPush(ctx context.Context, content string) string
	ExtractFacts(ctx context.Context, messages []string) ([]string, error)
	PushFromFacts(ctx context.Context, facts []string) string
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Reminders ReminderStore
	History   History
	Writer    Writer
	Notifier  notify.Notifier
	Logger    *log.Logger

	// CheckInterval is the reminder cycle period.
	CheckInterval time.Duration
	// FactsInterval is the fact cycle period; zero disables it.
	FactsInterval time.Duration
	// Location is the cron time zone. Defaults to time.Local.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// factMessageLimit bounds how much chat history is sent for fact extraction.
const factMessageLimit = 50

// CycleResult summarises one reminder cycle.
type CycleResult struct {
	Due      int
	Notified int
	Failed   int
}

// FactResult summarises one fact cycle.
type FactResult struct {
	Users  int
	Pushed int
	Failed int
}

// Scheduler owns the cron loop that drives both cycles.
type Scheduler struct {
	deps Deps
	cron *cron.Cron

	mu      sync.Mutex
	started bool
}

// New builds a Scheduler. It does nothing until Start is called.
func New(deps Deps) (*Scheduler, error) {
	if deps.Reminders == nil || deps.Writer == nil || deps.Notifier == nil {
		return nil, errors.New("scheduler: reminders, writer and notifier are required")
	}
	if deps.CheckInterval <= 0 {
		return nil, fmt.Errorf("scheduler: check interval must be positive, got %s", deps.CheckInterval)
	}
	if deps.FactsInterval > 0 && deps.History == nil {
		return nil, errors.New("scheduler: fact cycle needs a history store")
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	// A tick that fires while the previous cycle is still running is skipped.
	c := cron.New(
		cron.WithLocation(deps.Location),
		cron.WithLogger(cron.PrintfLogger(deps.Logger)),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(deps.Logger)),
			cron.SkipIfStillRunning(cron.VerbosePrintfLogger(deps.Logger)),
		),
	)
	s := &Scheduler{deps: deps, cron: c}

	// Entries are registered once so a Start after Stop cannot duplicate a cycle.
	if _, err := c.AddFunc(every(deps.CheckInterval), s.reminderTick); err != nil {
		return nil, fmt.Errorf("scheduler: register reminder cycle: %w", err)
	}
	if deps.FactsInterval > 0 {
		if _, err := c.AddFunc(every(deps.FactsInterval), s.factTick); err != nil {
			return nil, fmt.Errorf("scheduler: register fact cycle: %w", err)
		}
	}
	return s, nil
}

// Entries reports how many cycles are registered with the cron loop.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start starts the cron loop. Calling Start twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.cron.Start()
	s.started = true
	s.deps.Logger.Printf("scheduler: started (check interval %s, facts interval %s)", s.deps.CheckInterval, s.deps.FactsInterval)
	return nil
}

// Stop halts the cron loop and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.started = false
	s.deps.Logger.Printf("scheduler: stopped")
}

func (s *Scheduler) reminderTick() {
	if _, err := s.RunCycle(context.Background(), s.deps.Now()); err != nil {
		s.deps.Logger.Printf("scheduler: reminder cycle: %v", err)
	}
}

func (s *Scheduler) factTick() {
	if _, err := s.RunFactCycle(context.Background()); err != nil {
		s.deps.Logger.Printf("scheduler: fact cycle: %v", err)
	}
}

// RunCycle fires every reminder due at now and advances it. A failure on one
// reminder is logged and the rest are still processed. Reminders are advanced
// even when their notification fails.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	due, err := s.deps.Reminders.Due(ctx, now)
	if err != nil {
		return CycleResult{}, err
	}

	result := CycleResult{Due: len(due)}
	for _, reminder := range due {
		if err := s.fire(ctx, reminder, now); err != nil {
			result.Failed++
			s.deps.Logger.Printf("scheduler: reminder %d for %s: %v", reminder.ID, reminder.UserID, err)
			continue
		}
		result.Notified++
	}

	if result.Due > 0 {
		s.deps.Logger.Printf("scheduler: cycle done (due=%d notified=%d failed=%d)", result.Due, result.Notified, result.Failed)
	}
	return result, nil
}

func (s *Scheduler) fire(ctx context.Context, reminder model.Reminder, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	text := s.deps.Writer.ReminderPush(ctx, reminder.Content)
	sendErr := s.deps.Notifier.SendText(ctx, text, reminder.UserID)
	if advErr := s.deps.Reminders.Advance(ctx, reminder.ID, now); advErr != nil {
		return errors.Join(sendErr, fmt.Errorf("advance: %w", advErr))
	}
	if sendErr != nil {
		return fmt.Errorf("notify: %w", sendErr)
	}
	return nil
}

// RunFactCycle extracts facts for every user with chat history, stores them and
// pushes a message built from them to the group. Users are processed independently.
func (s *Scheduler) RunFactCycle(ctx context.Context) (FactResult, error) {
	if s.deps.History == nil {
		return FactResult{}, errors.New("no history store configured")
	}
	users, err := s.deps.History.Users(ctx)
	if err != nil {
		return FactResult{}, err
	}
	if len(users) == 0 {
		return FactResult{}, nil
	}

	result := FactResult{Users: len(users)}
	for _, userID := range users {
		facts, err := s.pushFacts(ctx, userID)
		if err != nil {
			result.Failed++
			s.deps.Logger.Printf("scheduler: facts for %s: %v", userID, err)
			continue
		}
		result.Pushed++
		s.deps.Logger.Printf("scheduler: pushed message for user %s (facts=%d)", userID, facts)
	}
	return result, nil
}

func (s *Scheduler) pushFacts(ctx context.Context, userID string) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	messages, err := s.deps.History.Recent(ctx, userID, factMessageLimit)
	if err != nil {
		return 0, err
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Content)
	}

	facts, err := s.deps.Writer.ExtractFacts(ctx, lines)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}
	if err := s.deps.History.SetFacts(ctx, userID, facts); err != nil {
		return 0, err
	}

	text := s.deps.Writer.PushFromFacts(ctx, facts)
	if err := s.deps.Notifier.SendText(ctx, text); err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return len(facts), nil
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
