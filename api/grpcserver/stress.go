package grpcserver

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"lockfree/infra/report"
	"lockfree/service"
)

const (
	scenarioWorkers = 8
	scenarioIters   = 100
)

// StressRequest is the body of a Stress call. Scenario ignores Workload
// and runs the fixed 8x100 stack scenario.
type StressRequest struct {
	Workload service.Workload
	Scenario bool
}

// Seed travels as a string for the same reason report ids do.
func (r StressRequest) Proto() (*structpb.Struct, error) {
	w := r.Workload
	return structpb.NewStruct(map[string]any{
		"container":      w.Container,
		"workers":        w.Workers,
		"ops_per_worker": w.OpsPerWorker,
		"push_ratio":     w.PushRatio,
		"seed":           strconv.FormatUint(w.Seed, 10),
		"exact":          w.Exact,
		"scenario":       r.Scenario,
	})
}

func stressRequestFromProto(s *structpb.Struct) (StressRequest, error) {
	f := s.GetFields()
	req := StressRequest{
		Workload: service.Workload{
			Container:    f["container"].GetStringValue(),
			Workers:      int(f["workers"].GetNumberValue()),
			OpsPerWorker: int(f["ops_per_worker"].GetNumberValue()),
			PushRatio:    f["push_ratio"].GetNumberValue(),
			Exact:        f["exact"].GetBoolValue(),
		},
		Scenario: f["scenario"].GetBoolValue(),
	}
	if seed := f["seed"].GetStringValue(); seed != "" {
		v, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return StressRequest{}, errors.Wrap(err, "seed")
		}
		req.Workload.Seed = v
	}
	return req, nil
}

// -------------------- Stress --------------------

// Stress runs a workload in this process and records the report, so the
// broadcaster sharing the outbox publishes it on its next scan.
func (s *Server) Stress(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.runner == nil {
		return nil, status.Error(codes.Unimplemented, "stress runs are not enabled")
	}
	req, err := stressRequestFromProto(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var rep report.Report
	if req.Scenario {
		rep = s.runner.RunScenario(scenarioWorkers, scenarioIters)
	} else {
		rep, err = s.runner.Run(ctx, req.Workload)
		switch {
		case errors.Is(err, service.ErrUnknownContainer), errors.Is(err, service.ErrInvalidWorkload):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case err != nil:
			return nil, status.FromContextError(err).Err()
		}
	}

	if s.recorder != nil {
		id, err := s.recorder.Put(rep)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "store report: %v", err)
		}
		rep.ID = id
	}
	return rep.Proto()
}
