package membership

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tilinna/clock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	apperrors "github.com/kbukum/infermesh/errors"
	"github.com/kbukum/infermesh/events"
	grpccfg "github.com/kbukum/infermesh/grpc"
	"github.com/kbukum/infermesh/grpc/server"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/peer"
	"github.com/kbukum/infermesh/resilience"
)

// network serves membership nodes over in-memory listeners keyed by address.
type network struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
}

func newNetwork() *network {
	return &network{listeners: map[string]*bufconn.Listener{}}
}

// serve starts a membership node at addr backed by reg.
func (n *network) serve(t *testing.T, addr peer.Address, reg peer.Registry, opts ...Option) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := server.New(grpccfg.ServerConfig{}, nil, server.WithListener(lis))
	Register(srv.Registrar(), NewService(reg, nil, opts...))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	n.mu.Lock()
	n.listeners[addr.String()] = lis
	n.mu.Unlock()
}

func (n *network) dialer() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		n.mu.Lock()
		lis := n.listeners[addr]
		n.mu.Unlock()
		if lis == nil {
			return nil, fmt.Errorf("%s: connection refused", addr)
		}
		return lis.DialContext(ctx)
	})
}

func (n *network) client() *Client {
	return NewClient(grpccfg.Config{}, nil, n.dialer())
}

func snapshot(t *testing.T, r peer.Registry) []peer.Address {
	t.Helper()
	got, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return got
}

func assertPeers(t *testing.T, got []peer.Address, want ...peer.Address) {
	t.Helper()
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("peers = %v, want %v", got, want)
	}
}

func TestService_AnnounceIncludesCallerAndIsIdempotent(t *testing.T) {
	reg := peer.NewMemoryRegistry("node1:50051")
	svc := NewService(reg, nil)
	ctx := context.Background()

	first, err := svc.Announce(ctx, "node4:50051")
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	assertPeers(t, first, "node1:50051", "node4:50051")

	second, err := svc.Announce(ctx, "node4:50051")
	if err != nil {
		t.Fatalf("second Announce: %v", err)
	}
	assertPeers(t, second, first...)
	assertPeers(t, snapshot(t, reg), "node1:50051", "node4:50051")
}

func TestService_EmptyAddressAddsNothing(t *testing.T) {
	reg := peer.NewMemoryRegistry("node1:50051")
	got, err := NewService(reg, nil).Announce(context.Background(), "")
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	assertPeers(t, got, "node1:50051")
}

func TestService_AdmitterRejects(t *testing.T) {
	reg := peer.NewMemoryRegistry()
	svc := NewService(reg, nil, WithAdmitter(func(_ context.Context, addr peer.Address) error {
		if strings.HasPrefix(addr.String(), "evil") {
			return apperrors.AnnounceRejected(addr.String(), "not allowed")
		}
		return nil
	}))
	_, err := svc.Announce(context.Background(), "evil:1")
	if !apperrors.IsAnnounceRejected(err) {
		t.Fatalf("err = %v, want AnnounceRejected", err)
	}
	if got := snapshot(t, reg); len(got) != 0 {
		t.Errorf("rejected address was added: %v", got)
	}
	if _, err := svc.Announce(context.Background(), "good:1"); err != nil {
		t.Errorf("Announce good: %v", err)
	}
}

func TestService_PublishesJoinOnlyForNewPeers(t *testing.T) {
	var mu sync.Mutex
	var got []events.Event
	sink := events.SinkFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})
	svc := NewService(peer.NewMemoryRegistry(), nil, WithEvents(sink, "self:1"))
	ctx := context.Background()
	_, _ = svc.Announce(ctx, "node2:1")
	_, _ = svc.Announce(ctx, "node2:1")
	_, _ = svc.Announce(ctx, "node3:1")

	if len(got) != 2 {
		t.Fatalf("events = %+v", got)
	}
	if got[0].Type != events.PeerJoined || got[0].Peer != "node2:1" || got[0].Node != "self:1" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestClient_AnnounceOverGRPC(t *testing.T) {
	mesh := newNetwork()
	remote := peer.NewMemoryRegistry("node2:50051", "node3:50051")
	mesh.serve(t, "node2:50051", remote)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := mesh.client().Announce(ctx, "node2:50051", "node1:50051")
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	assertPeers(t, got, "node1:50051", "node2:50051", "node3:50051")
	assertPeers(t, snapshot(t, remote), "node1:50051", "node2:50051", "node3:50051")
}

func TestClient_RejectionMapsToAnnounceRejected(t *testing.T) {
	mesh := newNetwork()
	mesh.serve(t, "node2:50051", peer.NewMemoryRegistry(), WithAdmitter(func(_ context.Context, addr peer.Address) error {
		return apperrors.AnnounceRejected(addr.String(), "closed mesh")
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := mesh.client().Announce(ctx, "node2:50051", "node1:50051")
	if !apperrors.IsAnnounceRejected(err) {
		t.Fatalf("err = %v, want AnnounceRejected", err)
	}
}

func TestClient_UnreachableSeed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := newNetwork().client().Announce(ctx, "nowhere:50051", "node1:50051")
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeConnectionFailed {
		t.Fatalf("err = %v, want CONNECTION_FAILED", err)
	}
}

func TestBootstrap_MergesFirstSeedView(t *testing.T) {
	mesh := newNetwork()
	mesh.serve(t, "node2:50051", peer.NewMemoryRegistry("node2:50051", "node3:50051"))

	local := peer.NewMemoryRegistry()
	var joined []events.Event
	sink := events.SinkFunc(func(_ context.Context, e events.Event) error {
		joined = append(joined, e)
		return nil
	})
	b := NewBootstrapper("node1:50051", StaticSeeds{"node2:50051"}, mesh.client(), local, nil,
		WithAnnounceTimeout(2*time.Second), WithJoinEvents(sink))

	res, err := b.Join(context.Background())
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Standalone || res.Seed != "node2:50051" || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
	assertPeers(t, snapshot(t, local), "node1:50051", "node2:50051", "node3:50051")
	if len(joined) != 1 || joined[0].Type != events.MeshJoined {
		t.Errorf("events = %+v", joined)
	}
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	calls []peer.Address
	fn    func(seed peer.Address) ([]peer.Address, error)
}

func (f *fakeAnnouncer) Announce(_ context.Context, seed, _ peer.Address) ([]peer.Address, error) {
	f.mu.Lock()
	f.calls = append(f.calls, seed)
	f.mu.Unlock()
	return f.fn(seed)
}

func (f *fakeAnnouncer) Calls() []peer.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func TestBootstrap_StopsAtFirstSuccessAndSkipsSelf(t *testing.T) {
	a := &fakeAnnouncer{fn: func(seed peer.Address) ([]peer.Address, error) {
		if seed == "down:1" {
			return nil, errors.New("unreachable")
		}
		return []peer.Address{seed, "other:1"}, nil
	}}
	local := peer.NewMemoryRegistry()
	seeds := StaticSeeds{"self:1", "down:1", "up:1", "never:1"}
	res, err := NewBootstrapper("self:1", seeds, a, local, nil).Join(context.Background())
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := a.Calls(); !slices.Equal(got, []peer.Address{"down:1", "up:1"}) {
		t.Errorf("announced to %v", got)
	}
	if res.Seed != "up:1" || res.Attempts != 2 {
		t.Errorf("result = %+v", res)
	}
	assertPeers(t, snapshot(t, local), "self:1", "up:1", "other:1")
}

func TestBootstrap_AllSeedsUnreachableIsStandalone(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d seeds", n), func(t *testing.T) {
			seeds := make(StaticSeeds, n)
			for i := range seeds {
				seeds[i] = peer.Address(fmt.Sprintf("dead-%d:50051", i))
			}
			local := peer.NewMemoryRegistry()
			b := NewBootstrapper("node1:50051", seeds, newNetwork().client(), local, nil,
				WithAnnounceTimeout(time.Second))

			res, err := b.Join(context.Background())
			if err != nil {
				t.Fatalf("Join: %v", err)
			}
			if !res.Standalone || res.Attempts != n || res.Seed != "" {
				t.Errorf("result = %+v", res)
			}
			assertPeers(t, snapshot(t, local), "node1:50051")
		})
	}
}

func TestBootstrap_SeedSourceErrorIsStandalone(t *testing.T) {
	failing := seedFunc(func(context.Context) ([]peer.Address, error) { return nil, errors.New("consul down") })
	local := peer.NewMemoryRegistry()
	res, err := NewBootstrapper("self:1", failing, &fakeAnnouncer{}, local, nil).Join(context.Background())
	if err != nil || !res.Standalone {
		t.Fatalf("Join = %+v, %v", res, err)
	}
	assertPeers(t, snapshot(t, local), "self:1")
}

type seedFunc func(ctx context.Context) ([]peer.Address, error)

func (f seedFunc) Seeds(ctx context.Context) ([]peer.Address, error) { return f(ctx) }

func TestStaticSeeds_DropsEmpty(t *testing.T) {
	got, _ := StaticSeeds{"a:1", "", "b:1"}.Seeds(context.Background())
	if !slices.Equal(got, []peer.Address{"a:1", "b:1"}) {
		t.Errorf("seeds = %v", got)
	}
}

func TestRejoiner_RetriesUntilSeedAnswers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mock := clock.NewMock(time.Unix(1, 0))
	ctx = clock.Context(ctx, mock)

	var mu sync.Mutex
	up := false
	a := &fakeAnnouncer{fn: func(seed peer.Address) ([]peer.Address, error) {
		mu.Lock()
		defer mu.Unlock()
		if !up {
			return nil, errors.New("unreachable")
		}
		return []peer.Address{seed}, nil
	}}
	local := peer.NewMemoryRegistry("self:1")
	b := NewBootstrapper("self:1", StaticSeeds{"seed:1"}, a, local, nil)
	r := NewRejoiner(b, local, RejoinConfig{
		Backoff:       resilience.BackoffConfig{Initial: time.Second, Max: 4 * time.Second, Factor: 2},
		CheckInterval: time.Minute,
	}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	// Advance until several attempts have failed, then bring the seed up.
	for len(a.Calls()) < 3 {
		if ctx.Err() != nil {
			t.Fatal("rejoiner made no attempts")
		}
		mock.AddNext()
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	up = true
	mu.Unlock()

	for {
		peers := snapshot(t, local)
		if slices.Contains(peers, "seed:1") {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("rejoiner never joined")
		}
		mock.AddNext()
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRejoiner_IdleWhenConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := clock.NewMock(time.Unix(1, 0))
	ctx = clock.Context(ctx, mock)

	a := &fakeAnnouncer{fn: func(peer.Address) ([]peer.Address, error) { return nil, nil }}
	local := peer.NewMemoryRegistry("self:1", "node2:1")
	b := NewBootstrapper("self:1", StaticSeeds{"node2:1"}, a, local, nil)
	r := NewRejoiner(b, local, RejoinConfig{CheckInterval: time.Second}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	for i := 0; i < 5; i++ {
		mock.Add(time.Second)
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	if calls := a.Calls(); len(calls) != 0 {
		t.Errorf("announced while connected: %v", calls)
	}
}

func TestRejoiner_QuietWithoutSeeds(t *testing.T) {
	tests := []struct {
		name  string
		seeds StaticSeeds
	}{
		{"empty", nil},
		{"only self", StaticSeeds{"self:1", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			mock := clock.NewMock(time.Unix(1, 0))
			ctx = clock.Context(ctx, mock)

			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, &logger.Config{Level: "debug", Format: "json"}, "test")
			a := &fakeAnnouncer{fn: func(peer.Address) ([]peer.Address, error) { return nil, nil }}
			local := peer.NewMemoryRegistry("self:1")
			b := NewBootstrapper("self:1", tt.seeds, a, local, log)
			r := NewRejoiner(b, local, RejoinConfig{
				Backoff:       resilience.BackoffConfig{Initial: time.Second, Max: 4 * time.Second, Factor: 2},
				CheckInterval: time.Second,
			}, log)

			done := make(chan struct{})
			go func() {
				defer close(done)
				r.Run(ctx)
			}()
			for i := 0; i < 20; i++ {
				mock.AddNext()
				time.Sleep(time.Millisecond)
			}
			cancel()
			<-done

			if calls := a.Calls(); len(calls) != 0 {
				t.Errorf("announced with no usable seeds: %v", calls)
			}
			if strings.Contains(buf.String(), "standalone") {
				t.Errorf("Join ran on an isolated node with no seeds:\n%s", buf.String())
			}
		})
	}
}

func TestConsulSeeds(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch {
		case r.URL.Path == "/v1/health/service/infermesh":
			if r.URL.Query().Get("passing") == "" {
				t.Errorf("query not restricted to passing instances: %s", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[
				{"Node":{"Address":"10.0.0.1"},"Service":{"Address":"node2","Port":50051}},
				{"Node":{"Address":"10.0.0.3"},"Service":{"Address":"","Port":50051}},
				{"Node":{"Address":"10.0.0.4"},"Service":{"Address":"node4","Port":0}}
			]`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	seeds, err := NewConsulSeeds(ConsulConfig{Addr: strings.TrimPrefix(srv.URL, "http://")}, nil)
	if err != nil {
		t.Fatalf("NewConsulSeeds: %v", err)
	}
	got, err := seeds.Seeds(context.Background())
	if err != nil {
		t.Fatalf("Seeds: %v", err)
	}
	if !slices.Equal(got, []peer.Address{"node2:50051", "10.0.0.3:50051"}) {
		t.Errorf("seeds = %v", got)
	}

	reg, err := seeds.Registration("node1:50051")
	if err != nil {
		t.Fatalf("Registration: %v", err)
	}
	ctx := context.Background()
	if err := reg.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := reg.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var registered, deregistered bool
	for _, p := range paths {
		if p == "PUT /v1/agent/service/register" {
			registered = true
		}
		if strings.HasPrefix(p, "PUT /v1/agent/service/deregister/infermesh-node1") {
			deregistered = true
		}
	}
	if !registered || !deregistered {
		t.Errorf("consul calls = %v", paths)
	}
}

func TestConsulRegistration_RetriesUntilAgentAnswers(t *testing.T) {
	var mu sync.Mutex
	registers := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agent/service/register" {
			w.WriteHeader(http.StatusOK)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		registers++
		if registers < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	seeds, err := NewConsulSeeds(ConsulConfig{Addr: strings.TrimPrefix(srv.URL, "http://")}, nil)
	if err != nil {
		t.Fatalf("NewConsulSeeds: %v", err)
	}
	reg, err := seeds.Registration("node1:50051")
	if err != nil {
		t.Fatalf("Registration: %v", err)
	}
	reg.retry.Backoff = resilience.BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}

	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if registers != 3 {
		t.Errorf("register calls = %d, want 3", registers)
	}
	if h := reg.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("health = %s", h.Status)
	}
}

func TestConsulSeeds_RegistrationRejectsBadSelf(t *testing.T) {
	seeds, err := NewConsulSeeds(ConsulConfig{}, nil)
	if err != nil {
		t.Fatalf("NewConsulSeeds: %v", err)
	}
	if _, err := seeds.Registration("no-port"); err == nil {
		t.Error("expected error for address without port")
	}
}
