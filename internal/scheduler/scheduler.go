package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/chain"
	"FundMe/internal/ledger"
	"FundMe/internal/model"
	"FundMe/internal/notifier"
	"FundMe/internal/pricefeed"
	"FundMe/internal/recorder"
)

const feedTimeout = 10 * time.Second

// Scheduler runs the periodic jobs and answers operator commands.
type Scheduler struct {
	Cron     *cron.Cron
	Ledger   *ledger.FundMe
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Ctx      context.Context

	mu       sync.Mutex
	feedDown bool
	last     *model.PriceCheck
	wg       sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, fm *ledger.FundMe, n notifier.Notifier, rec recorder.Recorder) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Ledger:   fm,
		Notifier: n,
		Recorder: rec,
		Ctx:      ctx,
	}
}

// RegisterAll registers the price check and report tasks.
func (s *Scheduler) RegisterAll(priceCheckCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(priceCheckCron, func() { s.CheckPrice() }); err != nil {
		return fmt.Errorf("register price check task: %w", err)
	}
	if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs and pending notifications.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	log.Info("scheduler stopped")
}

// CheckPrice queries the feed, records the result and alerts when the feed
// goes down or comes back.
func (s *Scheduler) CheckPrice() *model.PriceCheck {
	feed := s.Ledger.Feed()
	pc := &model.PriceCheck{Feed: feed.Description(), CheckedAt: time.Now()}

	ctx, cancel := context.WithTimeout(s.Ctx, feedTimeout)
	defer cancel()
	price, err := feed.LatestPrice(ctx)
	if err == nil {
		pc.Answer = price.Answer.String()
		pc.Decimals = price.Decimals
		pc.USDPerUnit, err = pricefeed.ToUSD(chain.Ether(1), price)
	}
	if err != nil {
		pc.Error = err.Error()
		log.WithField("feed", feed.Address().Hex()).Warnf("price check failed: %v", err)
	} else {
		pc.OK = true
		log.WithField("usd", notifier.FormatUSD(pc.USDPerUnit)).Info("price check ok")
	}

	if err := s.Recorder.RecordPriceCheck(pc); err != nil {
		log.Errorf("record price check: %v", err)
	}

	s.mu.Lock()
	wasDown := s.feedDown
	s.feedDown = !pc.OK
	s.last = pc
	s.mu.Unlock()

	switch {
	case !pc.OK && !wasDown:
		s.trySend(notifier.FormatPrice(pc))
	case pc.OK && wasDown:
		s.trySend(notifier.FormatFeedRecovered(pc))
	}
	return pc
}

// lastUSD returns the last known price of one unit, or nil.
func (s *Scheduler) lastUSD() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || !s.last.OK {
		return nil
	}
	return s.last.USDPerUnit
}

func (s *Scheduler) reportTask() {
	log.Info("running report task")
	s.trySend(notifier.FormatStatus(s.Ledger.Status(), s.lastUSD()))
}

// OnReceipt is a chain listener announcing committed withdrawals.
func (s *Scheduler) OnReceipt(r *model.Receipt) {
	if !r.Succeeded() {
		return
	}
	for _, e := range r.Events {
		if e.Kind == model.EventWithdrawn {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.trySend(notifier.FormatWithdrawal(r))
			}()
			return
		}
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	var cmd string
	if fields := strings.Fields(command); len(fields) > 0 {
		// "/status@SomeBot" in group chats
		cmd, _, _ = strings.Cut(fields[0], "@")
	}
	switch cmd {
	case "/status":
		return notifier.FormatStatus(s.Ledger.Status(), s.lastUSD())
	case "/funders":
		return notifier.FormatFunders(s.Ledger.Status())
	case "/price":
		return notifier.FormatPrice(s.CheckPrice())
	default:
		return "Available commands:\n• /status\n• /funders\n• /price"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Errorf("send notification: %v", err)
	}
}
