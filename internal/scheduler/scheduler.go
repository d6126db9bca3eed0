package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"

	"igparser/pkg/config"
	"igparser/pkg/logger"
	"igparser/pkg/models"
)

// ErrRunInProgress is returned by Trigger while another run is active
var ErrRunInProgress = errors.New("parser is already running")

// Runner executes one parse run
type Runner interface {
	Run(ctx context.Context, networkID string) (models.RunSummary, error)
}

// Scheduler starts parse runs on a cron schedule and on HTTP request.
// At most one run is active at a time.
type Scheduler struct {
	runner         Runner
	schedule       config.ScheduleConfig
	defaultNetwork string
	logger         logger.Logger

	cron *cron.Cron
	app  *fiber.App

	mu      sync.Mutex
	baseCtx context.Context
	running bool
	last    *models.RunSummary
	lastErr string
	wg      sync.WaitGroup
}

// New builds a scheduler around runner. Routes are mounted immediately so
// the app can be exercised before Start.
func New(runner Runner, cfg *config.Config, log logger.Logger) *Scheduler {
	s := &Scheduler{
		runner:         runner,
		schedule:       cfg.Schedule,
		defaultNetwork: cfg.Scrape.NetworkID,
		logger:         log.WithField("component", "scheduler"),
		baseCtx:        context.Background(),
	}
	s.cron = cron.New(cron.WithLogger(cronLogger{logger: s.logger}))
	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.mountRoutes(s.app)
	return s
}

// App returns the HTTP application
func (s *Scheduler) App() *fiber.App {
	return s.app
}

func (s *Scheduler) mountRoutes(router fiber.Router) {
	router.Get("/healthz", s.health)

	parser := router.Group("/parser")
	parser.Post("/run", s.trigger)
}

func (s *Scheduler) trigger(c *fiber.Ctx) error {
	networkID := c.Query("network_id", s.defaultNetwork)
	if err := v.Validate(networkID, is.Digit); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("network_id: %v", err),
		})
	}

	if err := s.Trigger(networkID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message":    "Parser started",
		"network_id": networkID,
	})
}

func (s *Scheduler) health(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := fiber.Map{
		"status":   "ok",
		"running":  s.running,
		"schedule": s.schedule.Cron,
	}
	if s.last != nil {
		body["last_run"] = s.last
	}
	if s.lastErr != "" {
		body["last_error"] = s.lastErr
	}
	return c.JSON(body)
}

// Trigger starts a run in the background unless one is already active
func (s *Scheduler) Trigger(networkID string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.WithField("network_id", networkID).Warn("Run requested while another is active")
		return ErrRunInProgress
	}
	s.running = true
	ctx := s.baseCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go s.execute(ctx, networkID)
	return nil
}

func (s *Scheduler) execute(ctx context.Context, networkID string) {
	defer s.wg.Done()

	var (
		summary models.RunSummary
		err     error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}

		s.mu.Lock()
		s.running = false
		s.last = &summary
		s.lastErr = ""
		if err != nil {
			s.lastErr = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.WithError(err).WithField("network_id", networkID).Error("Scheduled run failed")
		}
	}()

	summary, err = s.runner.Run(ctx, networkID)
}

// Running reports whether a run is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the active run, if any, has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Start registers the cron job and serves HTTP until ctx is cancelled.
// Cancelling ctx also cancels an active run; Start returns once it has
// stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.schedule.Cron, func() {
		_ = s.Trigger(s.defaultNetwork)
	}); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule.Cron, err)
	}

	s.cron.Start()
	logger.LogComponentStart(s.logger, "scheduler", map[string]interface{}{
		"cron":   s.schedule.Cron,
		"listen": s.schedule.Listen,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.schedule.Listen)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-errCh:
	}

	<-s.cron.Stop().Done()
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		s.logger.WithError(err).Warn("HTTP shutdown failed")
	}
	s.Wait()

	reason := "context cancelled"
	if listenErr != nil {
		reason = listenErr.Error()
	}
	logger.LogComponentStop(s.logger, "scheduler", reason)

	if listenErr != nil {
		return fmt.Errorf("failed to serve on %s: %w", s.schedule.Listen, listenErr)
	}
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.DebugWithFields(msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).ErrorWithFields(msg, pairs(keysAndValues))
}

func pairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
