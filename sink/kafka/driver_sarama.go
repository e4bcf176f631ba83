package kafka

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"transformd/internal/logging"
	"transformd/sink"
)

type Config struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	Acks    int16    `koanf:"required_acks"` // 0,1,-1
}

type driver struct {
	cfg  Config
	p    sarama.AsyncProducer
	wg   sync.WaitGroup
	once sync.Once
}

// New wraps an existing producer; Configure is not needed afterwards.
func New(cfg Config, p sarama.AsyncProducer) sink.Adapter {
	d := &driver{cfg: cfg}
	d.start(p)
	return d
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: topic is required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true
	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.start(p)
	return nil
}

func (d *driver) start(p sarama.AsyncProducer) {
	d.p = p
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log := logging.With("sink.kafka")
		for perr := range p.Errors() {
			log.Error("event delivery failed", "topic", d.cfg.Topic, "err", perr.Err)
		}
	}()
}

func (d *driver) Push(e sink.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	d.p.Input() <- &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(e.NodeRef),
		Value: sarama.ByteEncoder(b),
	}
	return nil
}

func (d *driver) Close() error {
	var err error
	d.once.Do(func() {
		err = d.p.Close()
		d.wg.Wait()
	})
	return err
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
