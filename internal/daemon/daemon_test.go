package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/gopacket"

	"github.com/nivex/fastgate/internal/classifier"
	"github.com/nivex/fastgate/internal/command"
	"github.com/nivex/fastgate/internal/event"
	"github.com/nivex/fastgate/internal/metrics"
	"github.com/nivex/fastgate/internal/whitelist"
)

func TestDaemon_StartStopIntegration(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "config.yml")
	configContent := `
fastgate:
  control:
    socket: ` + filepath.Join(tmpDir, "fastgate.sock") + `
  filter:
    rules:
      - role: listener
        port: 8080
        protocols: [tcp]
  events:
    min_severity: debug
  metrics:
    enabled: true
    listen: 127.0.0.1:0
  log:
    level: debug
    format: text
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	socketPath := filepath.Join(tmpDir, "fastgate.sock")
	pidFile := filepath.Join(tmpDir, "fastgate.pid")

	d, err := New(configPath, socketPath, pidFile)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}

	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		t.Errorf("PID file was not created: %s", pidFile)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		t.Errorf("control socket was not created: %s", socketPath)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	time.Sleep(100 * time.Millisecond)

	// Shut down over the control socket, the way the CLI does it
	client := command.NewUDSClient(socketPath, 2*time.Second)
	resp, err := client.DaemonShutdown(context.Background())
	if err != nil {
		t.Fatalf("DaemonShutdown failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("DaemonShutdown returned error: %v", resp.Error.Message)
	}

	// Repeated triggers while the shutdown is in flight must be no-ops
	d.TriggerShutdown()
	d.TriggerShutdown()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("daemon.Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("PID file was not removed after shutdown: %s", pidFile)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("control socket was not removed after shutdown: %s", socketPath)
	}
}

// stubSource keeps reporting poll timeouts until it is stopped, like
// an idle capture device, and records reads arriving after Stop.
type stubSource struct {
	stopped        atomic.Bool
	readsAfterStop atomic.Int64
}

func (s *stubSource) Start(ctx context.Context) error { return nil }

func (s *stubSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.stopped.Load() {
		s.readsAfterStop.Add(1)
	}
	time.Sleep(time.Millisecond)
	return nil, gopacket.CaptureInfo{}, errors.New("poll timeout")
}

func (s *stubSource) Stop() error {
	s.stopped.Store(true)
	return nil
}

func TestClassifyLoopDrainsOnCancel(t *testing.T) {
	tables := whitelist.New(8, 8, 8)
	emitter := event.NewEmitter(event.NewChannelSink(16), event.SeverityInfo)
	resolver := classifier.NewResolver()
	if err := resolver.Register(0, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	cls := classifier.New(tables, emitter, resolver, 0)

	src := &stubSource{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		classifyLoop(ctx, src, cls, metrics.FramesTotal.WithLabelValues("stub"))
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("classify loop did not exit after cancel")
	}

	// The shutdown order is cancel, drain, then Stop; once the loop
	// has exited the source can be closed without being read again.
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if n := src.readsAfterStop.Load(); n != 0 {
		t.Errorf("%d reads arrived after the source was stopped", n)
	}
}
