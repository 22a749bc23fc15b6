// Package nbi exposes the simulator over gRPC.
package nbi

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/internal/simulation"
	"github.com/signalsfoundry/orbital-power-sim/model"
)

const defaultListLimit = 20

// SimulationService implements SimulationServiceServer on top of a
// simulation.Service.
type SimulationService struct {
	svc *simulation.Service
	log logging.Logger
}

// NewSimulationService constructs a SimulationService.
func NewSimulationService(svc *simulation.Service, log logging.Logger) *SimulationService {
	if log == nil {
		log = logging.Noop()
	}
	return &SimulationService{svc: svc, log: log}
}

// RunSimulation runs a request synchronously. A run that fails after
// validation returns a status error whose details carry a Struct with
// simulation_id and message.
func (s *SimulationService) RunSimulation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log).With(logging.String("operation", "run"))

	req, err := decodeRequest(in)
	if err != nil {
		log.Debug(ctx, "undecodable simulation request", logging.Err(err))
		return nil, ToStatusError(err)
	}

	resp, err := s.svc.Run(ctx, req)
	if err != nil {
		st := status.Convert(ToStatusError(err))
		if resp != nil {
			detail, derr := structpb.NewStruct(map[string]any{
				"simulation_id": resp.SimulationID,
				"message":       resp.Message,
			})
			if derr == nil {
				if withDetail, werr := st.WithDetails(detail); werr == nil {
					st = withDetail
				}
			}
		}
		return nil, st.Err()
	}
	return toStruct(resp)
}

// GetRun returns the record for {"simulation_id": ...}.
func (s *SimulationService) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["simulation_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "simulation_id is required")
	}

	_, span := StartChildSpan(ctx, "registry.Get", "simulation", id)
	rec, err := s.svc.Get(id)
	span.End()
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(rec)
}

// ListRuns returns recent records, newest first. {"limit": n} is optional.
func (s *SimulationService) ListRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	limit := defaultListLimit
	if v, ok := in.GetFields()["limit"]; ok {
		n := int(v.GetNumberValue())
		if n <= 0 {
			return nil, status.Error(codes.InvalidArgument, "limit must be positive")
		}
		limit = n
	}
	runs := s.svc.List(limit)
	return toStruct(map[string]any{"runs": runs, "count": len(runs)})
}

// ListExamples returns the canned requests.
func (s *SimulationService) ListExamples(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(simulation.Examples())
}

func decodeRequest(in *structpb.Struct) (model.SimulationRequest, error) {
	data := []byte("{}")
	if in != nil && len(in.GetFields()) > 0 {
		b, err := protojson.Marshal(in)
		if err != nil {
			return model.SimulationRequest{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		data = b
	}
	req, err := model.DecodeSimulationRequest(data)
	if err != nil {
		return model.SimulationRequest{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return req, nil
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ToStruct converts a request for clients of SimulationServiceClient.
func ToStruct(req model.SimulationRequest) (*structpb.Struct, error) {
	return toStruct(req)
}
