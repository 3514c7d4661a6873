package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const BooksTopic = "catalog.books"

type Config struct {
	Addrs  []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
	Enable bool     `envconfig:"KAFKA_ENABLE" default:"false"`
}

func NewAsyncProducer(cfg Config) (sarama.AsyncProducer, error) {
	defaultCfg := sarama.NewConfig()
	defaultCfg.Producer.RequiredAcks = sarama.WaitForLocal
	defaultCfg.Producer.Return.Successes = false
	defaultCfg.Producer.Return.Errors = true
	defaultCfg.Producer.Flush.Frequency = 500 * time.Millisecond

	return sarama.NewAsyncProducer(cfg.Addrs, defaultCfg)
}

// Publisher sends JSON events to a topic. A nil *Publisher is a no-op.
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	log      *zap.Logger
}

func NewPublisher(producer sarama.AsyncProducer, topic string, log *zap.Logger) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		log:      log.Named("publisher"),
	}
	go p.drainErrors()
	return p
}

func (p *Publisher) drainErrors() {
	for err := range p.producer.Errors() {
		p.log.Warn("publish failed", zap.String("topic", p.topic), zap.Error(err.Err))
	}
}

func (p *Publisher) Publish(key string, v any) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
