package natsbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestTransport provides testcontainers-based NATS for testing
type TestTransport struct {
	container testcontainers.Container
	Transport *Transport
	URL       string
	cleanup   func()
}

// testConfig holds configuration for the test transport
type testConfig struct {
	jetstream    bool
	kvBuckets    []string
	natsVersion  string
	timeout      time.Duration
	startTimeout time.Duration
	options      []Option
}

// TestOption for configuring the test transport
type TestOption func(*testConfig)

// WithJetStream enables JetStream for tests that need it
func WithJetStream() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
	}
}

// WithKVBuckets pre-creates specific KV buckets
func WithKVBuckets(buckets ...string) TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true // KV requires JetStream
		cfg.kvBuckets = append(cfg.kvBuckets, buckets...)
	}
}

// WithNATSVersion specifies a specific NATS server version to use
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// WithTransportOptions forwards options to the Transport under test
func WithTransportOptions(opts ...Option) TestOption {
	return func(cfg *testConfig) {
		cfg.options = append(cfg.options, opts...)
	}
}

// NewTestTransport creates a NATS test container and a Transport connected
// to it. Accepts testing.TB so it works with both *testing.T and *testing.B.
func NewTestTransport(t testing.TB, opts ...TestOption) *TestTransport {
	t.Helper()

	cfg := &testConfig{
		natsVersion:  "2.11.7-alpine",
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	args := []string{
		"--port", "4222",
		"--http_port", "8222",
	}
	if cfg.jetstream {
		args = append(args, "--js")
	}

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          args,
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	transportOpts := append([]Option{
		WithTimeout(cfg.timeout),
		WithMaxReconnects(0), // No reconnects in tests
	}, cfg.options...)

	transport, err := NewTransport(url, transportOpts...)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to connect transport: %v", err)
	}

	tt := &TestTransport{
		container: container,
		Transport: transport,
		URL:       url,
		cleanup: func() {
			_ = transport.Close()                          // Best effort test cleanup
			_ = container.Terminate(context.Background()) // Best effort test cleanup
		},
	}

	if len(cfg.kvBuckets) > 0 {
		if err := tt.setupKVBuckets(ctx, cfg.kvBuckets); err != nil {
			tt.cleanup()
			t.Fatalf("Failed to setup KV buckets: %v", err)
		}
	}

	t.Cleanup(tt.cleanup)

	return tt
}

// setupKVBuckets creates the requested KV buckets
func (tt *TestTransport) setupKVBuckets(ctx context.Context, buckets []string) error {
	for _, bucketName := range buckets {
		cfg := jetstream.KeyValueConfig{
			Bucket: bucketName,
		}
		if _, err := tt.Transport.CreateKeyValueBucket(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create KV bucket %s: %w", bucketName, err)
		}
	}
	return nil
}

// Terminate manually terminates the container and transport (usually
// handled by t.Cleanup)
func (tt *TestTransport) Terminate() error {
	if tt.cleanup != nil {
		tt.cleanup()
		tt.cleanup = nil
	}
	return nil
}

// IsReady checks if the NATS connection is ready for use
func (tt *TestTransport) IsReady() bool {
	return tt.Transport.Conn().IsConnected()
}
