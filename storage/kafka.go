package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/janelia-flyem/voxflow/dvid"

	"github.com/Shopify/sarama"
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * 1000

// KafkaConfig describes the kafka servers that receive dirty-region events.  With no
// servers the log is disabled and publishing is a no-op.
type KafkaConfig struct {
	TopicPrefix string `toml:"topic_prefix"` // if supplied, will be prefixed to every output topic
	Servers     []string
	BufferSize  int `toml:"buffer_size"` // producer channel buffer size
}

// DirtyEvent is the JSON message published for each dirty notification of an output.
type DirtyEvent struct {
	Output string
	Axes   string `json:",omitempty"`
	Start  []int  `json:",omitempty"`
	Stop   []int  `json:",omitempty"`
	Whole  bool   `json:",omitempty"` // parameter change: the entire output is stale
	Time   int64
}

// DirtyLog publishes dirty-region events for named outputs to Kafka.  Messages that
// the producer fails to deliver are saved into an optional KeyValueDB under
// "kafka-failed/<topic>/<timestamp>".
type DirtyLog struct {
	producer sarama.AsyncProducer
	prefix   string
	failed   KeyValueDB
	wg       sync.WaitGroup
}

var topicCleaner = regexp.MustCompile(`[^a-zA-Z0-9\._\-]+`)

// NewDirtyLog connects an async producer to the configured servers.  The returned log
// is disabled if no servers are configured.
func NewDirtyLog(kc KafkaConfig, failed KeyValueDB) (*DirtyLog, error) {
	if len(kc.Servers) == 0 {
		dvid.Infof("No Kafka servers specified; dirty-region log disabled.\n")
		return &DirtyLog{}, nil
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	if kc.BufferSize > 0 {
		config.ChannelBufferSize = kc.BufferSize
	}
	producer, err := sarama.NewAsyncProducer(kc.Servers, config)
	if err != nil {
		return nil, err
	}
	dvid.Infof("Kafka topic prefix for dirty regions: %q\n", kc.TopicPrefix)
	return newDirtyLog(producer, kc.TopicPrefix, failed), nil
}

func newDirtyLog(producer sarama.AsyncProducer, prefix string, failed KeyValueDB) *DirtyLog {
	l := &DirtyLog{producer: producer, prefix: prefix, failed: failed}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for err := range producer.Errors() {
			dirtyEventsFailed.Inc()
			dvid.Errorf("error on kafka send: %v\n", err)
			value, _ := err.Msg.Value.Encode()
			l.storeFailedMsg(err.Msg.Topic, value)
		}
	}()
	return l
}

// Enabled returns true if events are actually sent.
func (l *DirtyLog) Enabled() bool {
	return l != nil && l.producer != nil
}

// Topic returns the topic used for the named output.
func (l *DirtyLog) Topic(name string) string {
	return topicCleaner.ReplaceAllString(l.prefix+name, "-")
}

// Publish sends a dirty event for the named output.  An empty roi marks the whole output.
func (l *DirtyLog) Publish(name string, roi dvid.Roi) error {
	if !l.Enabled() {
		return nil
	}
	ev := DirtyEvent{Output: name, Time: time.Now().UnixNano()}
	if roi.NumDims() == 0 {
		ev.Whole = true
	} else {
		ev.Axes = string(roi.Axes())
		ev.Start = roi.Start()
		ev.Stop = roi.Stop()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("unable to marshal dirty event for %q: %v", name, err)
	}
	timeKey := sarama.StringEncoder(strconv.FormatInt(ev.Time, 10))
	l.producer.Input() <- &sarama.ProducerMessage{Topic: l.Topic(name), Value: sarama.ByteEncoder(value), Key: timeKey}
	dirtyEventsPublished.Inc()
	return nil
}

// Watch publishes every dirty notification passed to the returned callback, which
// is meant for graph.OutputSlot.Subscribe.
func (l *DirtyLog) Watch(name string) func(dvid.Roi) {
	return func(roi dvid.Roi) {
		if err := l.Publish(name, roi); err != nil {
			dvid.Errorf("unable to publish dirty region of %q: %v\n", name, err)
		}
	}
}

// Close flushes the producer queue before stopping.
func (l *DirtyLog) Close() error {
	if !l.Enabled() {
		return nil
	}
	err := l.producer.Close()
	l.wg.Wait()
	if err != nil {
		dvid.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	dvid.Infof("Successfully shut down kafka producer.\n")
	return nil
}

func (l *DirtyLog) storeFailedMsg(topic string, msg []byte) {
	if l.failed == nil {
		dvid.Criticalf("unable to store failed kafka message to topic %q because no store\n", topic)
		return
	}
	key := fmt.Sprintf("kafka-failed/%s/%020d", topic, time.Now().UnixNano())
	if err := l.failed.Put(key, msg); err != nil {
		dvid.Criticalf("unable to store failed kafka message to topic %q: %v\n", topic, err)
	}
}
