package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxip-device/internal/infrastructure/mqtt"
	"github.com/nerrad567/knxip-device/internal/knxip"
)

const (
	defaultInterval   = 10 * time.Second
	defaultQueueDepth = 256

	triggerQoS = 1
)

// ErrInvalidTrigger is returned for trigger messages on unknown topics.
var ErrInvalidTrigger = errors.New("bridge: invalid trigger topic")

// Device is the part of *knxip.Device the bridge reads and drives.
type Device interface {
	Feedback() []knxip.FeedbackValue
	TriggerFeedback(id knxip.FeedbackID) error
	Stats() knxip.Stats
	SetMonitor(fn func(knxip.Message))
}

// Publisher is the MQTT side of the bridge, satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// History records values over time, satisfied by *influxdb.Client.
type History interface {
	WriteFeedback(values []knxip.FeedbackValue, at time.Time)
	WriteTelegram(msg knxip.Message, at time.Time)
	WriteStats(s knxip.Stats, at time.Time)
}

// Recorder counts bridge activity, satisfied by *metrics.Metrics.
type Recorder interface {
	ObservePublish(kind string, err error)
	ObserveTrigger(origin string, err error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge. Device and Topics are required; every sink
// is optional.
type Options struct {
	Device    Device
	Topics    mqtt.Topics
	Publisher Publisher
	History   History
	Recorder  Recorder
	Logger    Logger

	// Interval between feedback and stats publishes. Default 10s.
	Interval time.Duration

	// QueueDepth bounds buffered telegram events. Default 256.
	QueueDepth int
}

type telegramEvent struct {
	msg knxip.Message
	at  time.Time
}

// Bridge publishes device state. Create with New, then Start.
type Bridge struct {
	dev       Device
	topics    mqtt.Topics
	publisher Publisher
	history   History
	recorder  Recorder
	logger    Logger
	interval  time.Duration
	started   time.Time

	telegrams chan telegramEvent
	dropped   uint64

	// last published value per feedback item, for change detection
	lastFeedback map[knxip.FeedbackID]knxip.FeedbackValue
	mu           sync.Mutex

	now func() time.Time

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a bridge. Call Start to begin publishing.
func New(opts Options) (*Bridge, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("bridge: device is required")
	}
	if opts.Topics.Device == "" {
		return nil, fmt.Errorf("bridge: topics device is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	return &Bridge{
		dev:          opts.Device,
		topics:       opts.Topics,
		publisher:    opts.Publisher,
		history:      opts.History,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		interval:     opts.Interval,
		telegrams:    make(chan telegramEvent, opts.QueueDepth),
		lastFeedback: make(map[knxip.FeedbackID]knxip.FeedbackValue),
		now:          time.Now,
	}, nil
}

// Start subscribes to trigger topics, installs the telegram monitor and
// launches the publish loops. They stop when ctx is cancelled or Stop is
// called.
func (b *Bridge) Start(ctx context.Context) error {
	if b.publisher != nil {
		if err := b.publisher.Subscribe(b.topics.AllFeedbackTriggers(), triggerQoS, b.handleTrigger); err != nil {
			return fmt.Errorf("subscribe to feedback triggers: %w", err)
		}
		b.logger.Info("subscribed to feedback triggers", "topic", b.topics.AllFeedbackTriggers())
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.started = b.now()
	b.dev.SetMonitor(b.enqueueTelegram)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.publishLoop(ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.telegramLoop(ctx)
	}()

	b.logger.Info("bridge started", "device", b.topics.Device, "interval", b.interval)
	return nil
}

// Stop removes the monitor, stops the loops and waits for them.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.dev.SetMonitor(nil)
		if b.cancel != nil {
			b.cancel()
		}
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) publishLoop(ctx context.Context) {
	b.PublishNow()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.PublishNow()
		}
	}
}

func (b *Bridge) telegramLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.telegrams:
			b.publishTelegram(ev)
		}
	}
}

// enqueueTelegram runs on the receive path and must not block.
func (b *Bridge) enqueueTelegram(msg knxip.Message) {
	msg.Payload = append([]byte(nil), msg.Payload...)
	select {
	case b.telegrams <- telegramEvent{msg: msg, at: b.now()}:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Dropped returns the number of telegram events lost to a full queue.
func (b *Bridge) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// PublishNow publishes changed feedback values and the stats snapshot.
// It returns the number of feedback items published.
func (b *Bridge) PublishNow() int {
	at := b.now()
	values := b.dev.Feedback()
	stats := b.dev.Stats()

	if b.history != nil {
		b.history.WriteFeedback(values, at)
		b.history.WriteStats(stats, at)
	}

	if b.publisher == nil || !b.publisher.IsConnected() {
		return 0
	}

	published := 0
	for _, v := range b.changedFeedback(values) {
		err := b.publisher.PublishJSON(b.topics.Feedback(uint8(v.ID)), FeedbackMessage{
			FeedbackValue: v,
			Timestamp:     at.UTC().Format(time.RFC3339),
		}, true)
		b.observePublish(KindFeedback, err)
		if err != nil {
			// Forget the value so the next interval retries it.
			b.mu.Lock()
			delete(b.lastFeedback, v.ID)
			b.mu.Unlock()
			b.logger.Warn("failed to publish feedback", "id", v.ID, "name", v.Name, "error", err)
			continue
		}
		published++
	}

	err := b.publisher.PublishJSON(b.topics.Stats(), newStatsMessage(stats, b.started, at), true)
	b.observePublish(KindStats, err)
	if err != nil {
		b.logger.Warn("failed to publish stats", "error", err)
	}

	return published
}

// changedFeedback returns the values that differ from the last publish
// and records them as published.
func (b *Bridge) changedFeedback(values []knxip.FeedbackValue) []knxip.FeedbackValue {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changed []knxip.FeedbackValue
	for _, v := range values {
		if last, ok := b.lastFeedback[v.ID]; ok && last == v {
			continue
		}
		b.lastFeedback[v.ID] = v
		changed = append(changed, v)
	}
	return changed
}

// ResetChangeTracking makes the next publish send every feedback value,
// e.g. after the broker connection comes back.
func (b *Bridge) ResetChangeTracking() {
	b.mu.Lock()
	b.lastFeedback = make(map[knxip.FeedbackID]knxip.FeedbackValue)
	b.mu.Unlock()
}

func (b *Bridge) publishTelegram(ev telegramEvent) {
	if b.history != nil {
		b.history.WriteTelegram(ev.msg, ev.at)
	}
	if b.publisher == nil || !b.publisher.IsConnected() {
		return
	}

	topic := b.topics.Telegram(ev.msg.Destination.URLEncode())
	err := b.publisher.PublishJSON(topic, newTelegramMessage(ev.msg, ev.at), false)
	b.observePublish(KindTelegram, err)
	if err != nil {
		b.logger.Debug("failed to publish telegram", "topic", topic, "error", err)
	}
}

// handleTrigger runs the action of the feedback item named by topic. The
// payload is ignored.
func (b *Bridge) handleTrigger(topic string, _ []byte) error {
	id, ok := b.topics.ParseFeedbackTrigger(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTrigger, topic)
	}

	err := b.dev.TriggerFeedback(knxip.FeedbackID(id))
	if b.recorder != nil {
		b.recorder.ObserveTrigger("mqtt", err)
	}
	if err != nil {
		return fmt.Errorf("trigger feedback %d: %w", id, err)
	}
	b.logger.Info("feedback triggered", "id", id, "origin", "mqtt")
	return nil
}

func (b *Bridge) observePublish(kind string, err error) {
	if b.recorder != nil {
		b.recorder.ObservePublish(kind, err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
