package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaSinkConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaSinkConfig
		wantErr string
	}{
		{"no brokers", KafkaSinkConfig{Topic: "sla"}, "at least one Kafka broker"},
		{"no topic", KafkaSinkConfig{Brokers: []string{"localhost:9092"}}, "topic is required"},
		{"bad sasl", KafkaSinkConfig{Brokers: []string{"localhost:9092"}, Topic: "sla", SASL: &KafkaSASLConfig{Mechanism: "GSSAPI"}}, "unsupported SASL mechanism"},
		{"bad codec", KafkaSinkConfig{Brokers: []string{"localhost:9092"}, Topic: "sla", CompressionCodec: "brotli"}, "unsupported compression codec"},
		{"bad ca", KafkaSinkConfig{Brokers: []string{"localhost:9092"}, Topic: "sla", TLS: &KafkaTLSConfig{Enabled: true, CACert: []byte("nope")}}, "failed to parse CA certificate"},
		{"valid", KafkaSinkConfig{Brokers: []string{"localhost:9092"}, Topic: "sla"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewKafkaSink(tt.cfg, zap.NewNop())
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "kafka", sink.Name())
				_ = sink.Close()
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKafkaSinkDefaults(t *testing.T) {
	sink, err := NewKafkaSink(KafkaSinkConfig{Name: "sla-events", Brokers: []string{"b1:9092", "b2:9092"}, Topic: "sla"}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	w, ok := sink.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 100, w.BatchSize)
	assert.Equal(t, kafka.RequiredAcks(-1), w.RequiredAcks)
	assert.Equal(t, kafka.Snappy, w.Compression)
	assert.Equal(t, "sla", w.Topic)
	assert.Equal(t, "sla-events", sink.Name())
}

func TestKafkaSinkWriteKeysByViolation(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink("kafka", "sla", w, zap.NewNop())

	event := testEvent()
	require.NoError(t, sink.Write(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, "violation.opened", header(msg, "event-type"))
	assert.Equal(t, "critical", header(msg, "severity"))
	assert.Equal(t, "acme", header(msg, "tenant"))
	assert.Equal(t, event.ID, header(msg, "event-id"))
	assert.Contains(t, string(msg.Value), `"violation":{"id":42`)

	written, failed := sink.Stats()
	assert.Equal(t, int64(1), written)
	assert.Zero(t, failed)
}

func TestKafkaSinkWriteFailure(t *testing.T) {
	w := &fakeWriter{err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	sink := newKafkaSink("kafka", "sla", w, zap.NewNop())

	err := sink.WriteBatch(context.Background(), []*Event{testEvent(), testEvent()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(network)")
	assert.False(t, sink.IsConnected())
	assert.Error(t, sink.LastError())

	_, failed := sink.Stats()
	assert.Equal(t, int64(2), failed)

	w.err = nil
	require.NoError(t, sink.Write(context.Background(), testEvent()))
	assert.True(t, sink.IsConnected())
}

func TestKafkaSinkClose(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink("kafka", "sla", w, zap.NewNop())

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Equal(t, 1, w.closed)

	err := sink.Write(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
	assert.Error(t, sink.WriteBatch(context.Background(), nil))
}

func TestBuildSASLMechanism(t *testing.T) {
	for _, m := range []string{"PLAIN", "SCRAM-SHA-256", "scram-sha-512"} {
		t.Run(m, func(t *testing.T) {
			mech, err := buildSASLMechanism(&KafkaSASLConfig{Mechanism: m, Username: "u", Password: "p"})
			require.NoError(t, err)
			assert.NotNil(t, mech)
		})
	}
	_, err := buildSASLMechanism(&KafkaSASLConfig{Mechanism: "OAUTHBEARER"})
	assert.Error(t, err)
}

func TestBuildTLSConfigWithoutCA(t *testing.T) {
	cfg, err := buildTLSConfig(&KafkaTLSConfig{Enabled: true, InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = buildTLSConfig(&KafkaTLSConfig{Enabled: true, ClientCert: []byte("x"), ClientKey: []byte("y")})
	assert.Error(t, err)
}

func TestClassifyKafkaError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("wrapped: %w", context.Canceled), "cancelled"},
		{&net.DNSError{Err: "no such host", Name: "kafka"}, "dns"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "network"},
		{errors.New("SASL handshake failed"), "auth"},
		{errors.New("topic authorization failed"), "authorization"},
		{errors.New("x509: certificate signed by unknown authority"), "tls"},
		{errors.New("not leader for partition"), "broker"},
		{errors.New("unknown topic or partition"), "topic"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyKafkaError(tt.err), "%v", tt.err)
	}
}
