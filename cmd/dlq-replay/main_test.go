package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/digidine/internal/messaging/kafka"
)

func dlqValue(t *testing.T, topic, key string, update map[string]any) []byte {
	t.Helper()
	original, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	raw, err := json.Marshal(dlqRecord{
		OriginalTopic: topic,
		OriginalKey:   key,
		OriginalValue: string(original),
		ErrorMessage:  "store revision conflict",
		RetryCount:    3,
	})
	if err != nil {
		t.Fatalf("marshal dlq record: %v", err)
	}
	return raw
}

func shippedUpdate(orderID int64) map[string]any {
	return map[string]any{"order_id": orderID, "status": "shipped"}
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
	if got := parseBrokers(""); len(got) != 0 {
		t.Fatalf("expected no brokers, got %+v", got)
	}
}

func TestDecodeDLQRecord(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: dlqValue(t, kafka.TopicStatusUpdates, "42", shippedUpdate(42))}
	got, err := decodeDLQRecord(msg, "fallback")
	if err != nil {
		t.Fatalf("decodeDLQRecord: %v", err)
	}
	if got.topic != kafka.TopicStatusUpdates || got.key != "42" || got.orderID != 42 {
		t.Fatalf("unexpected replay message: %+v", got)
	}

	msg = &sarama.ConsumerMessage{Value: dlqValue(t, "", "", shippedUpdate(7))}
	got, err = decodeDLQRecord(msg, "fallback")
	if err != nil {
		t.Fatalf("decodeDLQRecord: %v", err)
	}
	if got.topic != "fallback" || got.key != "7" {
		t.Fatalf("expected fallback topic and order key, got %+v", got)
	}
}

func TestDecodeDLQRecord_Rejects(t *testing.T) {
	cases := map[string][]byte{
		"not json":         []byte("garbage"),
		"no original":      []byte(`{"original_topic":"digidine.order.status"}`),
		"broken original":  []byte(`{"original_value":"{"}`),
		"missing order id": dlqValue(t, "", "", map[string]any{"status": "shipped"}),
		"unknown status":   dlqValue(t, "", "", map[string]any{"order_id": 1, "status": "lost"}),
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeDLQRecord(&sarama.ConsumerMessage{Value: value}, kafka.TopicStatusUpdates); err == nil {
				t.Fatal("expected record to be rejected")
			}
		})
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-order-id=1792074600000",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig failed: %v", err)
		}
		if len(cfg.brokers) != 2 || cfg.limit != 10 || !cfg.execute || !cfg.fromNewest {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.orderID != 1792074600000 {
			t.Fatalf("unexpected order id: %d", cfg.orderID)
		}
		if cfg.sourceTopic != kafka.TopicDeadLetterQueue || cfg.targetTopic != kafka.TopicStatusUpdates {
			t.Fatalf("unexpected default topics: %s -> %s", cfg.sourceTopic, cfg.targetTopic)
		}
		if cfg.idleTimeout != 3*time.Second {
			t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
		}
	})
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv(envBrokers, "env-broker:9092")
	withFlagArgs(t, nil, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig failed: %v", err)
		}
		if len(cfg.brokers) != 1 || cfg.brokers[0] != "env-broker:9092" {
			t.Fatalf("unexpected brokers: %+v", cfg.brokers)
		}
	})
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	t.Setenv(envBrokers, "")
	cases := []struct {
		args    []string
		wantErr string
	}{
		{args: []string{"-brokers="}, wantErr: "kafka brokers are required"},
		{args: []string{"-brokers=b:9092", "-source-topic="}, wantErr: "source-topic is required"},
		{args: []string{"-brokers=b:9092", "-target-topic="}, wantErr: "target-topic is required"},
		{args: []string{"-brokers=b:9092", "-limit=0"}, wantErr: "limit must be > 0"},
		{args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, wantErr: "idle-timeout must be > 0"},
		{args: []string{"-brokers=b:9092", "-order-id=-1"}, wantErr: "order-id must be >= 0"},
	}
	for _, tc := range cases {
		withFlagArgs(t, tc.args, func() {
			_, err := readConfig()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("args %v: expected %q, got %v", tc.args, tc.wantErr, err)
			}
		})
	}
}

func TestPublishReplay(t *testing.T) {
	if err := publishReplay(nil, replayMessage{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	if err := publishReplay(producer, replayMessage{topic: "topic", key: "42", value: []byte(`{}`)}); err != nil {
		t.Fatalf("publishReplay failed: %v", err)
	}
	if producer.lastMsg == nil || producer.lastMsg.Topic != "topic" {
		t.Fatalf("unexpected last message: %+v", producer.lastMsg)
	}
	headers := producer.lastMsg.Headers
	if len(headers) != 1 || string(headers[0].Key) != kafka.HeaderRetryCount || string(headers[0].Value) != "0" {
		t.Fatalf("expected retry counter reset, got %+v", headers)
	}

	producer.sendErr = errors.New("send failed")
	if err := publishReplay(producer, replayMessage{topic: "topic"}); err == nil {
		t.Fatal("expected publishReplay error")
	}
}

func TestReplayPartition_DryRunAndExecute(t *testing.T) {
	messages := func() []*sarama.ConsumerMessage {
		return []*sarama.ConsumerMessage{
			{Offset: 0, Value: dlqValue(t, kafka.TopicStatusUpdates, "1", shippedUpdate(1))},
			{Offset: 1, Value: []byte("garbage")},
			{Offset: 2, Value: dlqValue(t, kafka.TopicStatusUpdates, "2", shippedUpdate(2))},
		}
	}
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicStatusUpdates, idleTimeout: 50 * time.Millisecond}

	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(messages())}}
	stats, err := replayPartition(context.Background(), cfg, client, consumer, nil, 0, 10)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if stats != (replayStats{scanned: 3, replayed: 2, skipped: 1}) {
		t.Fatalf("unexpected dry-run stats: %+v", stats)
	}

	cfg.execute = true
	cfg.orderID = 2
	producer := &stubReplayProducer{}
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(messages())}}
	stats, err = replayPartition(context.Background(), cfg, client, consumer, producer, 0, 10)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stats.replayed != 1 || producer.calls != 1 {
		t.Fatalf("expected only order 2 replayed, got %+v calls=%d", stats, producer.calls)
	}
	if string(producer.lastMsg.Key.(sarama.StringEncoder)) != "2" {
		t.Fatalf("unexpected key: %v", producer.lastMsg.Key)
	}
}

func TestReplayPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 10}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(nil)}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicStatusUpdates, fromNewest: true, idleTimeout: 20 * time.Millisecond}

	if _, err := replayPartition(context.Background(), cfg, client, consumer, nil, 0, 3); err != nil {
		t.Fatalf("replayPartition: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 7 {
		t.Fatalf("expected scan from offset 7, got %+v", consumer.calls)
	}
}

func TestReplayPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicStatusUpdates, execute: true, idleTimeout: 20 * time.Millisecond}

	clientOffsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	if _, err := replayPartition(context.Background(), cfg, clientOffsetErr, &stubPartitionConsumerSource{}, &stubReplayProducer{}, 0, 1); err == nil {
		t.Fatal("expected offset error")
	}

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	if _, err := replayPartition(context.Background(), cfg, client, &stubPartitionConsumerSource{consumeErr: errors.New("consume")}, &stubReplayProducer{}, 0, 1); err == nil {
		t.Fatal("expected consume error")
	}

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	if _, err := replayPartition(context.Background(), cfg, client, consumer, &stubReplayProducer{}, 0, 1); err == nil {
		t.Fatal("expected consumer error branch")
	}

	pcOK := closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: dlqValue(t, "", "", shippedUpdate(1))}})
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcOK}}
	if _, err := replayPartition(context.Background(), cfg, client, consumer, &stubReplayProducer{sendErr: errors.New("send fail")}, 0, 1); err == nil {
		t.Fatal("expected producer send error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idle := &stubPartitionConsumer{messages: make(chan *sarama.ConsumerMessage), errors: make(chan *sarama.ConsumerError)}
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idle}}
	cfg.idleTimeout = time.Minute
	if _, err := replayPartition(ctx, cfg, client, consumer, nil, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRunReplay(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicStatusUpdates, limit: 1, idleTimeout: 20 * time.Millisecond}

	if err := runReplay(context.Background(), cfg, nil, nil, nil); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 1},
			2: {oldest: 0, newest: 1},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: dlqValue(t, "", "", shippedUpdate(1))}}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 2, Offset: 0, Value: dlqValue(t, "", "", shippedUpdate(2))}}),
		},
	}

	if err := runReplay(context.Background(), cfg, client, consumer, nil); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].partition != 0 {
		t.Fatalf("expected only sorted partition 0 due to limit=1, got %+v", consumer.calls)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if err := runReplay(context.Background(), executeCfg, client, consumer, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	if err := runReplay(context.Background(), cfg, &stubOffsetClient{}, consumer, nil); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
}

func TestRun_ClosesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	defer func() { newReplayDependencies = oldDeps }()

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicStatusUpdates, limit: 1, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: dlqValue(t, "", "", shippedUpdate(1))}}),
	}}
	producer := &stubReplayProducer{}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	os.Args = append([]string{"dlq-replay"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions []int32
	offsets    map[int32]offsetRange
	offsetErr  map[int32]error
	closed     bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error                             { return nil }

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
