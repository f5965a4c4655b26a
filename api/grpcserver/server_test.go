package grpcserver

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"lockfree/infra/logging"
	"lockfree/infra/memory"
)

func startServer(t *testing.T, opts ...Option) (*Server, *Client) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(memory.NewCollector(memory.Config{CollectEvery: 4}), opts...)

	gs := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logging.Discard())))
	Register(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, NewClient(conn)
}

func TestStackOverGRPC(t *testing.T) {
	srv, c := startServer(t)
	ctx := context.Background()

	require.NoError(t, c.StackPush(ctx, []byte("a")))
	require.NoError(t, c.StackPush(ctx, []byte("b")))
	require.Equal(t, 2, srv.Stack().Len())

	v, ok, err := c.StackPop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("b"), v)

	v, ok, err = c.StackPop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), v)

	_, ok, err = c.StackPop(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueueOverGRPC(t *testing.T) {
	_, c := startServer(t)
	ctx := context.Background()

	for _, s := range []string{"x", "y", "z"} {
		require.NoError(t, c.QueuePush(ctx, []byte(s)))
	}
	for _, want := range []string{"x", "y", "z"} {
		v, ok, err := c.QueuePop(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, string(v))
	}
	_, ok, err := c.QueuePop(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStatsReportsLengths(t *testing.T) {
	_, c := startServer(t)
	ctx := context.Background()

	require.NoError(t, c.StackPush(ctx, []byte{1}))
	require.NoError(t, c.QueuePush(ctx, []byte{1}))
	require.NoError(t, c.QueuePush(ctx, []byte{2}))
	_, _, err := c.QueuePop(ctx)
	require.NoError(t, err)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	fields := st.GetFields()
	require.Equal(t, float64(1), fields["stack_len"].GetNumberValue())
	require.Equal(t, float64(1), fields["queue_len"].GetNumberValue())
	require.Equal(t, float64(1), fields["retired"].GetNumberValue())
}

func TestConcurrentClientsConserveValues(t *testing.T) {
	srv, c := startServer(t)
	ctx := context.Background()

	const clients, per = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < per; j++ {
				if err := c.QueuePush(ctx, []byte{byte(i), byte(j)}); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, clients*per, srv.Queue().Len())

	seen := make(map[[2]byte]bool)
	for {
		v, ok, err := c.QueuePop(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		k := [2]byte{v[0], v[1]}
		require.False(t, seen[k])
		seen[k] = true
	}
	require.Len(t, seen, clients*per)
}
