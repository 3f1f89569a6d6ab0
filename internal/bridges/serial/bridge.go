package serial

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/protocol"
	"github.com/nerrad567/bluerial/internal/uart"
	"github.com/nerrad567/bluerial/internal/watcher"
)

const defaultCommandQueue = 32

// Notification verbs.
const (
	verbOpened   = "opened"
	verbClosed   = "closed"
	verbDataSent = "data-sent"
	verbError    = "error"
)

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
}

// Piper is the framed port the bridge drives. *uart.Piper satisfies it.
type Piper interface {
	Open(s uart.Settings) error
	Close() error
	IsOpen() bool
	SetSTX(b []byte)
	SetETX(b []byte)
	Write(data []byte) ([]byte, error)
}

// EventSource supplies presence events for forwarding.
// *watcher.Watcher satisfies it.
type EventSource interface {
	Subscribe(h watcher.Handler, types ...presence.EventType) func()
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge.
type Options struct {
	Piper Piper
	MQTT  MQTTClient

	CommandTopic string
	NotifyTopic  string
	QoS          byte

	// Defaults fill settings a serial-open command leaves out.
	Defaults uart.Settings

	// Events and Forward enable payload forwarding. Optional.
	Events  EventSource
	Forward []string

	CommandQueue int
}

// Bridge translates serial-* commands into port operations.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	piper    Piper
	mqtt     MQTTClient
	cmdTop   string
	outTop   string
	qos      byte
	defaults uart.Settings

	events  EventSource
	forward map[string]bool

	// opMu serialises port operations between commands and forwarding.
	opMu sync.Mutex

	commands    chan string
	unsubscribe func()

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge validates opts and creates a bridge. Call Start to begin.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Piper == nil {
		return nil, fmt.Errorf("piper is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.CommandTopic == "" || opts.NotifyTopic == "" {
		return nil, fmt.Errorf("command and notify topics are required")
	}
	queue := opts.CommandQueue
	if queue <= 0 {
		queue = defaultCommandQueue
	}

	forward := make(map[string]bool, len(opts.Forward))
	for _, f := range opts.Forward {
		if canon := presence.CanonicalKeyText(f); canon != "" {
			forward[canon] = true
		}
	}

	return &Bridge{
		piper:    opts.Piper,
		mqtt:     opts.MQTT,
		cmdTop:   opts.CommandTopic,
		outTop:   opts.NotifyTopic,
		qos:      opts.QoS,
		defaults: opts.Defaults,
		events:   opts.Events,
		forward:  forward,
		commands: make(chan string, queue),
		done:     make(chan struct{}),
	}, nil
}

// Start subscribes to the command topic and, when configured, to
// presence events for forwarding.
func (b *Bridge) Start() error {
	if b.events != nil && len(b.forward) > 0 {
		b.unsubscribe = b.events.Subscribe(b.handleEvent, presence.EventNewDiscovery, presence.EventDataChanged)
	}

	b.wg.Add(1)
	go b.commandLoop()

	if err := b.mqtt.Subscribe(b.cmdTop, b.qos, b.handleMessage); err != nil {
		b.Stop()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", b.cmdTop, "forwarding", len(b.forward))
	return nil
}

// Stop unsubscribes and waits for the command worker. The port is left as
// it is; the owner closes the piper. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.mqtt.Unsubscribe(b.cmdTop); err != nil {
			b.logDebug("unsubscribe failed", "topic", b.cmdTop, "error", err)
		}
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		close(b.done)
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Open opens the port with s and announces it. Used for the configured
// startup port as well as serial-open.
func (b *Bridge) Open(s uart.Settings) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	return b.open(s)
}

func (b *Bridge) open(s uart.Settings) error {
	if err := b.piper.Open(s); err != nil {
		b.publishError(err)
		return err
	}
	b.logInfo("serial port opened", "port", s.Port, "baud_rate", s.BaudRate)
	b.publish(protocol.New(protocol.NamespaceSerial, verbOpened))
	return nil
}

func (b *Bridge) handleMessage(_ string, payload []byte) error {
	select {
	case <-b.done:
		return nil
	default:
	}

	select {
	case b.commands <- string(payload):
		return nil
	default:
		return ErrCommandQueueFull
	}
}

func (b *Bridge) commandLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case raw := <-b.commands:
			b.execute(raw)
		}
	}
}

func (b *Bridge) execute(raw string) {
	cmd, err := ParseCommand(raw, b.defaults)
	if err != nil {
		if errors.Is(err, ErrWrongNamespace) {
			b.logDebug("ignoring non-serial message", "message", raw)
			return
		}
		b.logWarn("ignoring command", "message", raw, "error", err)
		if errors.Is(err, ErrInvalidPayload) {
			b.publishError(err)
		}
		return
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	switch cmd.Kind {
	case CommandOpen:
		//nolint:errcheck // open publishes its own error notification
		b.open(cmd.Settings)
	case CommandClose:
		if !b.piper.IsOpen() {
			return
		}
		if err := b.piper.Close(); err != nil {
			b.publishError(err)
			return
		}
		b.publish(protocol.New(protocol.NamespaceSerial, verbClosed))
	case CommandSTX:
		b.piper.SetSTX(cmd.Bytes)
	case CommandETX:
		b.piper.SetETX(cmd.Bytes)
	case CommandMessage:
		b.write(cmd.Bytes, true)
	}
}

// handleEvent runs on the watcher's dispatcher goroutine.
func (b *Bridge) handleEvent(ev watcher.Event) {
	if len(ev.Record.Payload) == 0 || !b.forwarded(ev.Record) {
		return
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	if !b.piper.IsOpen() {
		b.logDebug("port closed, not forwarding", "device", ev.Record.Key.String())
		return
	}
	b.write(ev.Record.Payload, false)
}

func (b *Bridge) forwarded(rec presence.Record) bool {
	if b.forward[presence.CanonicalKeyText(rec.Key.String())] {
		return true
	}
	return b.forward[presence.FormatAddress(rec.Address)]
}

// write sends one frame. Callers hold opMu. A closed port is reported as
// an error notification only when reportClosed is set.
func (b *Bridge) write(data []byte, reportClosed bool) {
	frame, err := b.piper.Write(data)
	if err != nil {
		if errors.Is(err, uart.ErrNotOpen) && !reportClosed {
			return
		}
		b.publishError(err)
		return
	}
	b.publish(protocol.WithPayload(protocol.NamespaceSerial, verbDataSent, protocol.FormatHexBytes(frame, ",")))
}

func (b *Bridge) publishError(err error) {
	b.logError("serial error", err)
	b.publish(protocol.WithPayload(protocol.NamespaceSerial, verbError, err.Error()))
}

func (b *Bridge) publish(msg protocol.Message) {
	if err := b.mqtt.Publish(b.outTop, msg.Bytes(), b.qos, false); err != nil {
		b.logError("failed to publish notification", err)
	}
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
