package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"lockfree/domain/container"
	"lockfree/infra/memory"
	"lockfree/infra/report"
	"lockfree/service"
)

// Server exposes one shared stack and one shared queue over gRPC. Every
// RPC runs on its own goroutine, so the containers see real contention.
type Server struct {
	stack     *container.Stack[[]byte]
	queue     *container.Queue[[]byte]
	collector *memory.Collector

	runner   *service.Runner
	recorder Recorder
}

// Recorder stores finished stress reports; *report.Store is one.
type Recorder interface {
	Put(report.Report) (uint64, error)
}

type Option func(*Server)

// WithStress enables the Stress RPC. Reports are stored through rec when
// it is non-nil, so an outbox owned by this process sees them at once.
func WithStress(r *service.Runner, rec Recorder) Option {
	return func(s *Server) {
		s.runner = r
		s.recorder = rec
	}
}

func NewServer(c *memory.Collector, opts ...Option) *Server {
	s := &Server{
		stack:     container.NewStack[[]byte](container.WithCollector(c)),
		queue:     container.NewQueue[[]byte](container.WithCollector(c)),
		collector: c,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Stack() *container.Stack[[]byte] { return s.stack }
func (s *Server) Queue() *container.Queue[[]byte] { return s.queue }

// -------------------- Commands --------------------

func (s *Server) StackPush(_ context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	s.stack.Push(req.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *Server) QueuePush(_ context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	s.queue.Push(req.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *Server) StackPop(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	v, ok := s.stack.Pop()
	if !ok {
		return nil, status.Error(codes.NotFound, "stack is empty")
	}
	return wrapperspb.Bytes(v), nil
}

func (s *Server) QueuePop(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	v, ok := s.queue.Pop()
	if !ok {
		return nil, status.Error(codes.NotFound, "queue is empty")
	}
	return wrapperspb.Bytes(v), nil
}

// -------------------- Queries --------------------

func (s *Server) Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st := s.collector.Stats()
	return structpb.NewStruct(map[string]any{
		"stack_len":    s.stack.Len(),
		"queue_len":    s.queue.Len(),
		"epoch":        st.Epoch,
		"participants": st.Participants,
		"retired":      st.Retired,
		"reclaimed":    st.Reclaimed,
		"spilled":      st.Spilled,
		"pending":      st.Pending(),
	})
}

// -------------------- Interceptors --------------------

// LoggingInterceptor logs every call at debug level and failures at warn,
// except NotFound which is a normal empty pop.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		level := slog.LevelDebug
		if err != nil && code != codes.NotFound {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "rpc",
			"method", info.FullMethod, "code", code.String(), "took", time.Since(start))
		return resp, err
	}
}
