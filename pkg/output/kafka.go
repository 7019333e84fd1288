package output

import (
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
)

const defaultIdleWindow = 200 * time.Millisecond

// KafkaOutput is the broker producer: one instance per URI, batching writes
// and flushing on capacity or idle timeout.
type KafkaOutput struct {
	backpressure
	uri        string
	topic      string
	producer   sarama.SyncProducer
	intake     chan Item
	stopCh     chan struct{}
	bufferSize int
}

// NewKafkaOutput dials hosts and starts the background batching worker for
// uri/topic. bufferSize is the batch capacity; the acknowledgement policy
// requires at least one replica to confirm.
func NewKafkaOutput(uri, topic string, hosts []string, bufferSize int) (*KafkaOutput, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 0 // the output's own flush loop owns retries

	producer, err := sarama.NewSyncProducer(hosts, cfg)
	if err != nil {
		return nil, err
	}

	k := &KafkaOutput{
		uri:        uri,
		topic:      topic,
		producer:   producer,
		intake:     make(chan Item, bufferSize),
		stopCh:     make(chan struct{}),
		bufferSize: bufferSize,
	}
	go k.run()
	return k, nil
}

// Write enqueues item, retrying on a full intake with a 1ms sleep until
// accepted. No item is dropped.
func (k *KafkaOutput) Write(item Item) {
	k.markWritten()
	for {
		select {
		case k.intake <- item:
			return
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func (k *KafkaOutput) run() {
	componentLog := log.WithComponent("output.kafka")
	batch := make([]Item, 0, k.bufferSize)
	idle := time.NewTimer(defaultIdleWindow)
	defer idle.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		k.flush(batch, componentLog)
		batch = batch[:0]
	}

	for {
		select {
		case item := <-k.intake:
			batch = append(batch, item)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(defaultIdleWindow)
			if len(batch) >= k.bufferSize {
				flush()
			}
		case <-idle.C:
			flush()
			idle.Reset(defaultIdleWindow)
		case <-k.stopCh:
			flush()
			return
		}
	}
}

func (k *KafkaOutput) flush(batch []Item, componentLog zerolog.Logger) {
	timer := metrics.NewTimer()
	messages := make([]*sarama.ProducerMessage, len(batch))
	for i, item := range batch {
		messages[i] = &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(strconv.Itoa(i)),
			Value: sarama.ByteEncoder(item.Value),
		}
	}

	for {
		err := k.producer.SendMessages(messages)
		if err == nil {
			break
		}
		metrics.BrokerRetriesTotal.WithLabelValues(k.uri).Inc()
		componentLog.Warn().Err(err).Msg("batch send failed, retrying")
		time.Sleep(time.Millisecond)
	}

	k.markDelivered(int64(len(batch)))
	metrics.BatchesFlushedTotal.WithLabelValues(k.uri).Inc()
	timer.ObserveDurationVec(metrics.BatchFlushDuration, k.uri)
}

// Wait blocks in 1ms polling until every item written so far has been
// delivered.
func (k *KafkaOutput) Wait(n int64) {
	k.wait(n)
}

// Close flushes any pending batch and releases the underlying producer.
func (k *KafkaOutput) Close() error {
	close(k.stopCh)
	return k.producer.Close()
}
