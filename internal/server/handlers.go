package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshuarubin/moldock-supervisor/pkg/launcher"
	"github.com/joshuarubin/moldock-supervisor/pkg/project"
	supervisorv1 "github.com/joshuarubin/moldock-supervisor/pkg/proto/supervisor/v1"
	"github.com/joshuarubin/moldock-supervisor/pkg/registry"
	"github.com/joshuarubin/moldock-supervisor/pkg/supervisor"
)

// DefaultCSVPreviewRows is used when a CSVPreview request doesn't set max_rows
const DefaultCSVPreviewRows = 50

// outputChunkSize is the largest message sent by Output
const outputChunkSize = 32 * 1024

var errInvalidRequest = errors.New("invalid request")

// toStatus converts err to a grpc status error
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Internal
	switch {
	case errors.Is(err, errInvalidRequest):
		code = codes.InvalidArgument
	case errors.Is(err, launcher.ErrLaunch):
		code = codes.FailedPrecondition
	case errors.Is(err, project.ErrPathRejected):
		code = codes.PermissionDenied
	case errors.Is(err, project.ErrProjectBusy):
		code = codes.AlreadyExists
	case errors.Is(err, supervisor.ErrJobNotFound),
		errors.Is(err, project.ErrNoProgress),
		errors.Is(err, fs.ErrNotExist):
		code = codes.NotFound
	case errors.Is(err, project.ErrNotRegular), errors.Is(err, project.ErrNotDirectory):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}

	return status.Error(code, err.Error())
}

func decode(in *structpb.Struct, v any) error {
	if err := supervisorv1.FromStruct(in, v); err != nil {
		return toStatus(errors.Join(errInvalidRequest, err))
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := supervisorv1.ToStruct(v)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	log := slog.With("method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
	if code == codes.Internal || code == codes.Unknown {
		log.Error("request failed", "err", err)
	} else {
		log.Debug("request")
	}

	return resp, err
}

func (s *Server) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req supervisor.Request
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	res, err := s.sup.Run(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(res)
}

func (s *Server) Launch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req supervisor.Request
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	if len(req.Args) == 0 {
		return nil, status.Error(codes.InvalidArgument, "args are required")
	}

	launched, err := s.sup.Launch(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(launched)
}

func (s *Server) Status(_ context.Context, in *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	return encode(s.sup.Status(registry.ID(in.GetValue())))
}

func (s *Server) Output(in *wrapperspb.UInt64Value, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	r, err := s.sup.Output(registry.ID(in.GetValue()))
	if err != nil {
		return toStatus(err)
	}
	defer r.Close()

	// unblock Read once the client goes away
	go func() {
		<-stream.Context().Done()
		_ = r.Close()
	}()

	buf := make([]byte, outputChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if serr := stream.Send(wrapperspb.Bytes(buf[:n])); serr != nil {
				return serr
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if cerr := stream.Context().Err(); cerr != nil {
				return toStatus(cerr)
			}
			return toStatus(err)
		}
	}
}

func (s *Server) Progress(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req supervisorv1.ProgressRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	if req.Project == "" {
		return nil, status.Error(codes.InvalidArgument, "project is required")
	}

	if req.Path == "" {
		req.Path = project.ProgressPath(req.Project)
	}

	p, err := project.ReadProgress(req.Project, req.Path)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(p)
}

func (s *Server) Projects(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	projects, err := project.Discover(s.sources...)
	if err != nil {
		return nil, toStatus(err)
	}

	if projects == nil {
		projects = []project.Project{}
	}

	return encode(supervisorv1.ProjectsResponse{Projects: projects})
}

func (s *Server) ReadText(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}

	text, err := project.ReadText(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	return wrapperspb.String(text), nil
}

func (s *Server) CSVPreview(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req supervisorv1.CSVPreviewRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	if req.Path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}

	if req.MaxRows <= 0 {
		req.MaxRows = DefaultCSVPreviewRows
	}

	p, err := project.ReadCSVPreview(req.Path, req.MaxRows)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(p)
}
