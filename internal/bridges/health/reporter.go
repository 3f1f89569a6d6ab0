package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 30 * time.Second

// Status is the health state carried in a message.
type Status string

// Health states.
const (
	StatusStarting Status = "starting"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusStopping Status = "stopping"
)

// Message is the JSON payload published on the health topic.
type Message struct {
	Service       string `json:"service"`
	Version       string `json:"version,omitempty"`
	Status        Status `json:"status"`
	Reason        string `json:"reason,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Devices       int    `json:"devices"`
	Timestamp     string `json:"timestamp"`
}

// Publisher is the subset of the MQTT client the reporter needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Logger is the logging interface used by the reporter.
type Logger interface {
	Error(msg string, args ...any)
}

// Config holds configuration for a Reporter.
type Config struct {
	// Service names the bridge, e.g. "ble" or "serial".
	Service string
	Version string

	// Topic is where messages are published.
	Topic string

	// Interval between periodic reports. Default: 30 seconds.
	Interval time.Duration

	Publisher Publisher

	// Check reports whether the bridge's own resource (radio, serial
	// port) is usable. A nil Check counts as healthy.
	Check func() (ok bool, reason string)

	// Devices returns the device count to include. Optional.
	Devices func() int

	// Now is the time source. Default: time.Now.
	Now func() time.Time
}

// Reporter manages periodic health status reporting.
type Reporter struct {
	cfg       Config
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a reporter. Call Start to begin reporting.
func NewReporter(cfg Config) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reporter{
		cfg:       cfg,
		startTime: cfg.Now(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for publish failures.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times, and without a prior Start.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		r.publish(StatusStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (r *Reporter) PublishStarting() error {
	return r.publish(StatusStarting, "bridge starting")
}

// PublishNow publishes the current checked status immediately.
func (r *Reporter) PublishNow() error {
	status, reason := r.determineStatus()
	return r.publish(status, reason)
}

// Current builds the message PublishNow would send.
func (r *Reporter) Current() Message {
	status, reason := r.determineStatus()
	return r.message(status, reason)
}

func (r *Reporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	if err := r.PublishNow(); err != nil {
		r.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.PublishNow(); err != nil {
				r.logError("failed to publish health", err)
			}
		}
	}
}

func (r *Reporter) determineStatus() (Status, string) {
	if r.cfg.Publisher == nil || !r.cfg.Publisher.IsConnected() {
		return StatusDegraded, "MQTT disconnected"
	}
	if r.cfg.Check != nil {
		if ok, reason := r.cfg.Check(); !ok {
			return StatusDegraded, reason
		}
	}
	return StatusHealthy, ""
}

func (r *Reporter) message(status Status, reason string) Message {
	now := r.cfg.Now()
	msg := Message{
		Service:       r.cfg.Service,
		Version:       r.cfg.Version,
		Status:        status,
		Reason:        reason,
		UptimeSeconds: int64(now.Sub(r.startTime) / time.Second),
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	if r.cfg.Devices != nil {
		msg.Devices = r.cfg.Devices()
	}
	return msg
}

func (r *Reporter) publish(status Status, reason string) error {
	if r.cfg.Publisher == nil {
		return nil
	}

	payload, err := json.Marshal(r.message(status, reason))
	if err != nil {
		return err
	}
	return r.cfg.Publisher.Publish(r.cfg.Topic, payload, 1, true)
}

func (r *Reporter) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
