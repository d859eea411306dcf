package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

func TestParseSource(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Source{
		"":         SourceNone,
		"none":     SourceNone,
		"Remote":   SourceRemote,
		" managed": SourceManaged,
		"local":    SourceLocal,
	} {
		got, err := ParseSource(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
	_, err := ParseSource("lambda")
	require.Error(t, err)
}

func TestNewProviderSelectsSource(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(Config{Source: SourceNone}, nil)
	require.NoError(t, err)
	require.IsType(t, Unavailable{}, p)

	_, err = NewProvider(Config{Source: SourceRemote}, nil)
	require.ErrorContains(t, err, "ws_endpoint")

	p, err = NewProvider(Config{Source: SourceRemote, WSEndpoint: "ws://127.0.0.1:9222/devtools/browser/x"}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "remote", p.Name())

	p, err = NewProvider(Config{Source: SourceLocal, MaxParallel: 3}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, cap(p.(*chromeProvider).limiter))

	_, err = NewProvider(Config{Source: SourceLocal, MaxParallel: -1}, nil)
	require.Error(t, err)
}

func TestSessionCloseRunsClosersOnceInReverse(t *testing.T) {
	t.Parallel()

	var order []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := NewSession(ctx,
		func() { order = append(order, "allocator") },
		func() { order = append(order, "tab") },
	)
	require.Same(t, ctx, session.Context())

	session.Close()
	session.Close()
	require.Equal(t, []string{"tab", "allocator"}, order)

	var nilSession *Session
	nilSession.Close()
}

func TestUnavailableObtain(t *testing.T) {
	t.Parallel()

	session, err := Unavailable{}.Obtain(context.Background())
	require.Nil(t, session)
	require.ErrorIs(t, err, scrape.ErrNoBrowserAvailable)
}

func TestObtainAllocatorFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	p := newChromeProvider(Config{Source: SourceLocal, MaxParallel: 1, LaunchTimeout: time.Second},
		func(context.Context) (context.Context, func(), error) {
			return nil, nil, context.DeadlineExceeded
		}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := p.Obtain(context.Background())
		require.ErrorIs(t, err, scrape.ErrNoBrowserAvailable)
	}
	require.Empty(t, p.limiter)
}

func TestSessionCloseIdempotent(t *testing.T) {
	t.Parallel()

	calls := []string{}
	s := &Session{closers: []func(){
		func() { calls = append(calls, "first") },
		func() { calls = append(calls, "second") },
	}}
	s.Close()
	s.Close()
	require.Equal(t, []string{"second", "first"}, calls)

	var nilSession *Session
	require.NotPanics(t, nilSession.Close)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()
	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child not canceled after parent")
	}
	stop()
}
