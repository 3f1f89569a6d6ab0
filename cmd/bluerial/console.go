package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
	"github.com/nerrad567/bluerial/internal/infrastructure/logging"
	"github.com/nerrad567/bluerial/internal/infrastructure/mqtt"
	"github.com/nerrad567/bluerial/internal/protocol"
)

const consoleHelp = `Type a command and press enter. Examples:
  ble-start
  ble-devices
  ble-add-###AABBCCDDEEFF
  ble-timeout-###45
  serial-open-###port:/dev/ttyUSB0,baudRate:9600
  serial-message-###0A,01,02
Type "quit" to exit.
`

func newConsoleCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Send text commands and print notifications over MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsole(cmd.Context(), root.resolveConfigPath(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runConsole connects to the broker without announcing service status,
// prints every notification, and publishes each input line to the command
// topic of its namespace.
func runConsole(ctx context.Context, configPath string, in io.Reader, out io.Writer) error {
	cfg, err := loadConsoleConfig(configPath)
	if err != nil {
		return err
	}

	log := logging.New(config.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"}, version)

	cfg.MQTT.Broker.ClientID = "bluerial-console-" + uuid.NewString()[:8]
	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithoutStatus())
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer client.Close() //nolint:errcheck // best-effort on exit
	client.SetLogger(log.Component("mqtt"))

	session := newConsoleSession(client, mqtt.NewTopics(cfg.MQTT.Topics), byte(cfg.MQTT.QoS), out)
	for _, topic := range []string{session.topics.BLENotifications(), session.topics.SerialNotifications()} {
		if err := client.Subscribe(topic, session.qos, session.notify); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	session.printf("connected to %s:%d as %s\n", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, client.ClientID())
	session.printf("%s", consoleHelp)

	lines := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	// The scanner blocks on input, so it lives outside the group and is
	// abandoned when the process exits.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || session.handleLine(line) {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

// loadConsoleConfig loads the config file, or falls back to defaults when
// the file does not exist so the console works against a local broker.
func loadConsoleConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

// consolePublisher is the part of *mqtt.Client the console sends through.
type consolePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// consoleSession routes input lines and prints notifications.
type consoleSession struct {
	publisher consolePublisher
	topics    mqtt.Topics
	qos       byte

	outMu sync.Mutex
	out   io.Writer
}

func newConsoleSession(p consolePublisher, topics mqtt.Topics, qos byte, out io.Writer) *consoleSession {
	return &consoleSession{publisher: p, topics: topics, qos: qos, out: out}
}

// notify prints one notification. It is called from MQTT handlers.
func (s *consoleSession) notify(_ string, payload []byte) error {
	s.printf("< %s\n", payload)
	return nil
}

// handleLine processes one input line and reports whether the console
// should exit.
func (s *consoleSession) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help":
		s.printf("%s", consoleHelp)
		return false
	}

	msg, err := protocol.Parse(line)
	if err != nil {
		s.printf("! %v\n", err)
		return false
	}

	topic := s.topics.CommandTopic(msg.Namespace)
	if topic == "" {
		s.printf("! no service handles %q commands\n", msg.Namespace)
		return false
	}

	if err := s.publisher.Publish(topic, msg.Bytes(), s.qos, false); err != nil {
		s.printf("! publish failed: %v\n", err)
		return false
	}
	s.printf("> %s\n", msg)
	return false
}

func (s *consoleSession) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
