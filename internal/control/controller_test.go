package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lsst/qserv-sub016/internal/registry"
	"github.com/lsst/qserv-sub016/internal/registry/memory"
)

var errTransportFailed = errors.New("transport failed")

type fakeTransport struct {
	mu    sync.Mutex
	delay time.Duration
	fail  bool
}

func (t *fakeTransport) Send(ctx context.Context, worker, opcode string, body []byte) ([]byte, error) {
	t.mu.Lock()
	delay, fail := t.delay, t.fail
	t.mu.Unlock()
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fail {
		return nil, errTransportFailed
	}
	return append([]byte(nil), body...), nil
}

type fakeSource struct {
	workers []registry.HeartbeatEntry
}

func (s *fakeSource) LiveWorkers(ctx context.Context) ([]registry.HeartbeatEntry, error) {
	return s.workers, nil
}
func (s *fakeSource) LiveCzars(ctx context.Context) ([]registry.HeartbeatEntry, error) { return nil, nil }

func newTestController(t *testing.T, transport Transport, source WorkerSource) *Controller {
	t.Helper()
	cfg, err := registry.Load(context.Background(), memory.NewStore())
	require.NoError(t, err)
	require.NoError(t, cfg.SetSettings(context.Background(), registry.Settings{HeartbeatIvalSec: 1}))
	return New(transport, source, cfg, nil)
}

func TestSubmitCompletesSuccessfully(t *testing.T) {
	ctrl := newTestController(t, &fakeTransport{}, nil)
	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	req, err := ctrl.Submit(context.Background(), "worker01", "ECHO", []byte("hi"), NORMAL, uuid.Nil, 0, nil)
	require.NoError(t, err)

	require.NoError(t, req.Wait(context.Background()))
	require.Equal(t, FINISHED, req.State())
	require.Equal(t, SUCCESS, req.Status())
	result, err := req.Result()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), result)
}

func TestSubmitExpires(t *testing.T) {
	ctrl := newTestController(t, &fakeTransport{delay: time.Hour}, nil)
	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	req, err := ctrl.Submit(context.Background(), "worker01", "ECHO", nil, NORMAL, uuid.Nil, 10*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, req.Wait(context.Background()))
	require.Equal(t, TIMEOUT_EXPIRED, req.Status())
}

func TestSubmitBeforeStartFails(t *testing.T) {
	ctrl := newTestController(t, &fakeTransport{}, nil)
	_, err := ctrl.Submit(context.Background(), "worker01", "ECHO", nil, NORMAL, uuid.Nil, 0, nil)
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestOnFinishCallbackRunsOnCompletion(t *testing.T) {
	ctrl := newTestController(t, &fakeTransport{}, nil)
	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	done := make(chan *Request, 1)
	_, err := ctrl.Submit(context.Background(), "worker01", "ECHO", nil, NORMAL, uuid.Nil, 0, func(r *Request) {
		done <- r
	})
	require.NoError(t, err)

	select {
	case r := <-done:
		require.Equal(t, FINISHED, r.State())
	case <-time.After(time.Second):
		t.Fatal("onFinish never called")
	}
}

func TestTrackFleetAutoRegistersWorkers(t *testing.T) {
	source := &fakeSource{workers: []registry.HeartbeatEntry{{Name: "worker01", SvcHost: "h", SvcPort: 5012}}}
	ctrl := newTestController(t, &fakeTransport{}, source)
	require.NoError(t, ctrl.cfg.SetSettings(context.Background(), registry.Settings{HeartbeatIvalSec: 1, AutoRegisterWorkers: true}))
	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	require.Eventually(t, func() bool {
		_, err := ctrl.cfg.Worker("worker01")
		return err == nil
	}, time.Second, 10*time.Millisecond)
}
