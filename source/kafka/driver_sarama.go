package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"transformd/internal/logging"
)

type SaramaDriver struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup

	lastCommitNS atomic.Int64
}

func init() { Register("sarama", func() Adapter { return &SaramaDriver{} }) }

// NewSaramaDriverFromGroup wraps an existing consumer group.
func NewSaramaDriverFromGroup(cfg Config, group sarama.ConsumerGroup) *SaramaDriver {
	cfg.ApplyDefaults()
	return &SaramaDriver{cfg: cfg, group: group}
}

func (d *SaramaDriver) Configure(config Config) error {
	config.ApplyDefaults()
	d.cfg = config
	if len(config.Topics) == 0 || config.GroupID == "" {
		return errors.New("kafka: topics and group_id are required")
	}

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(config.GroupID, d.cl)
	return err
}

// Run consumes until ctx ends, rejoining the group after every rebalance.
func (d *SaramaDriver) Run(ctx context.Context, emit EmitFunc) error {
	handler := &groupHandler{driver: d, emit: emit}
	go func() {
		for err := range d.group.Errors() {
			logging.With("kafka").Warn("consumer group error", "err", err)
		}
	}()

	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *SaramaDriver) Close() error {
	err := d.group.Close()
	if d.cl != nil {
		_ = d.cl.Close()
	}
	return err
}

// commitDue reports whether the commit interval elapsed and resets it.
func (d *SaramaDriver) commitDue(now time.Time) bool {
	last := d.lastCommitNS.Load()
	if last+d.cfg.CommitInt.Nanoseconds() > now.UnixNano() {
		return false
	}
	return d.lastCommitNS.CompareAndSwap(last, now.UnixNano())
}

type groupHandler struct {
	driver *SaramaDriver
	emit   EmitFunc
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup flushes marked offsets before partitions move.
func (*groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	sess.Commit()
	logging.With("kafka").Info("sarama-driver: rebalance, offsets flushed")
	return nil
}

func (h *groupHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case <-sess.Context().Done():
			return sess.Context().Err()

		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.emit(sess.Context(), toMessage(msg)); err != nil {
				logging.With("kafka").Error("message handling failed",
					"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
				return err
			}
			sess.MarkMessage(msg, "")
			if h.driver.commitDue(time.Now()) {
				sess.Commit()
			}
		}
	}
}

func toMessage(msg *sarama.ConsumerMessage) Message {
	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   toHeaderMap(msg.Headers),
		Timestamp: msg.Timestamp,
	}
}

func toHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}
