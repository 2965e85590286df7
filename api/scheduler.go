/*
scheduler.go - Voucher expiry scheduler

PURPOSE:
  Periodically scans reward ledgers for vouchers that are about to
  expire and notifies their owners. Expiry itself needs no job: a
  voucher is expired the moment the clock passes ExpiresAt, and every
  read path checks ActiveAt. This scheduler only produces the heads-up.

DESIGN:
  - cron-driven, read-only: scanning never mutates a ledger
  - the notification window is configurable (default: 3 days out)
  - a store without the scanner capability disables the scheduler

USAGE:
  sched := NewExpiryScheduler(store, nil)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - streak/store.go: VoucherScanner contract
  - streak/types.go: Voucher.ActiveAt
*/
package api

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/impulse-tracker/streak"
)

// DefaultExpiryWindow is how far ahead the scheduler looks for
// vouchers about to lapse.
const DefaultExpiryWindow = 3 * 24 * time.Hour

// Notifier receives one call per voucher inside the expiry window.
type Notifier interface {
	NotifyExpiring(userID streak.UserID, v streak.Voucher, expiresIn time.Duration)
}

// LogNotifier writes notifications to the process log. The default
// until a push or email channel exists.
type LogNotifier struct{}

func (LogNotifier) NotifyExpiring(userID streak.UserID, v streak.Voucher, expiresIn time.Duration) {
	log.Printf("[Scheduler] Voucher %s for user %s expires in %s", v.ID, userID, expiresIn.Round(time.Hour))
}

// ExpiryScheduler runs the periodic expiring-voucher scan.
type ExpiryScheduler struct {
	Scanner  streak.VoucherScanner
	Notifier Notifier
	Window   time.Duration
	Spec     string // cron spec, default hourly

	cron *cron.Cron
	now  func() time.Time
}

// NewExpiryScheduler creates a scheduler over the given scanner. A nil
// notifier falls back to LogNotifier.
func NewExpiryScheduler(scanner streak.VoucherScanner, notifier Notifier) *ExpiryScheduler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ExpiryScheduler{
		Scanner:  scanner,
		Notifier: notifier,
		Window:   DefaultExpiryWindow,
		Spec:     "@hourly",
		now:      time.Now,
	}
}

// Start registers the cron entry and begins running. Safe to call on a
// scheduler whose scanner is nil; it logs and stays idle.
func (s *ExpiryScheduler) Start() {
	if s.Scanner == nil {
		log.Println("[Scheduler] Store has no voucher scanner, expiry notifications disabled")
		return
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.Spec, s.checkExpiring); err != nil {
		log.Printf("[Scheduler] Invalid cron spec %q: %v", s.Spec, err)
		return
	}
	s.cron.Start()
	log.Printf("[Scheduler] Started, spec %q, window %v", s.Spec, s.Window)
}

// Stop halts the cron runner and waits for an in-flight scan.
func (s *ExpiryScheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[Scheduler] Stopped")
}

func (s *ExpiryScheduler) checkExpiring() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := s.now()
	expiring, err := s.Scanner.ExpiringVouchers(ctx, now, now.Add(s.Window))
	if err != nil {
		log.Printf("[Scheduler] Expiry scan failed: %v", err)
		return
	}
	if len(expiring) == 0 {
		return
	}

	log.Printf("[Scheduler] %d voucher(s) expiring within %v", len(expiring), s.Window)
	for _, ev := range expiring {
		s.Notifier.NotifyExpiring(ev.UserID, ev.Voucher, ev.Voucher.ExpiresAt.Sub(now))
	}
}
