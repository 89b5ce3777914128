package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	api "github.com/shiv122/ecsexec/api/v1"
	"github.com/shiv122/ecsexec/internal/awscli"
	"github.com/shiv122/ecsexec/internal/config"
	"github.com/shiv122/ecsexec/internal/eventbus"
	"github.com/shiv122/ecsexec/internal/procmanager"
	"github.com/shiv122/ecsexec/internal/tlsconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// shutdownGrace bounds how long in-flight calls may run after sessions have
// been killed before the server is stopped hard.
const shutdownGrace = 5 * time.Second

type server struct {
	api.UnimplementedSessionServiceServer

	client *awscli.Client
	bus    *eventbus.Bus
	logger *slog.Logger
	cfg    *config.Config

	grpcServer *grpc.Server
}

func newServer(
	client *awscli.Client,
	bus *eventbus.Bus,
	logger *slog.Logger,
	cfg *config.Config,
) (*server, error) {
	s := &server{client: client, bus: bus, logger: logger, cfg: cfg}

	creds, err := s.loadCreds()
	if err != nil {
		return nil, fmt.Errorf("load transport credentials: %w", err)
	}

	unary := []grpc.UnaryServerInterceptor{contextCheckUnaryInterceptor}
	var streams []grpc.StreamServerInterceptor

	if cfg.TLS.Enabled() {
		unary = append(unary, authUnaryInterceptor(logger))
		streams = append(streams, authStreamInterceptor(logger))
	}

	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(streams...),
		grpc.Creds(creds),
	)

	api.RegisterSessionServiceServer(s.grpcServer, s)

	return s, nil
}

func (s *server) start(listener net.Listener) error {
	s.logger.Info(
		"server listening",
		"addr", listener.Addr().String(),
		"tls", s.cfg.TLS.Enabled(),
	)

	return s.grpcServer.Serve(listener)
}

// shutdown kills every session so that open Watch streams finish, then stops
// the server.
func (s *server) shutdown(ctx context.Context) {
	s.client.Shutdown(ctx)

	stopped := make(chan struct{})

	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		s.logger.Warn("graceful stop timed out")
		s.grpcServer.Stop()
	}

	// Watch streams have returned, so remaining subscriptions are the
	// daemon's own.
	s.logger.Debug("clearing event bus", "subscriptions", s.bus.SubscriptionCount())
	s.bus.Clear()
}

// scope fills in the configured default profile and region.
func (s *server) scope(sc api.Scope) api.Scope {
	if sc.Profile == "" {
		sc.Profile = s.cfg.AWS.DefaultProfile
	}

	if sc.Region == "" {
		sc.Region = s.cfg.AWS.DefaultRegion
	}

	return sc
}

func (s *server) ListClusters(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	sc := s.scope(api.ParseListClustersRequest(in).Scope)

	clusters, err := s.client.ListClusters(ctx, sc.Profile, sc.Region)
	if err != nil {
		return nil, s.mapError("list clusters", err)
	}

	return api.StringsValue(clusters), nil
}

func (s *server) ListServices(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	req := api.ParseListServicesRequest(in)
	if req.Cluster == "" {
		return nil, status.Error(codes.InvalidArgument, "cluster is empty")
	}

	sc := s.scope(req.Scope)

	services, err := s.client.ListServices(ctx, sc.Profile, sc.Region, req.Cluster)
	if err != nil {
		return nil, s.mapError("list services", err)
	}

	return api.StringsValue(services), nil
}

func (s *server) ListTasks(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	req := api.ParseListTasksRequest(in)
	if req.Cluster == "" {
		return nil, status.Error(codes.InvalidArgument, "cluster is empty")
	}

	sc := s.scope(req.Scope)

	tasks, err := s.client.ListTasks(ctx, sc.Profile, sc.Region, req.Cluster, req.Service)
	if err != nil {
		return nil, s.mapError("list tasks", err)
	}

	return api.StringsValue(tasks), nil
}

func (s *server) DescribeTasks(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	req := api.ParseDescribeTasksRequest(in)
	if req.Cluster == "" {
		return nil, status.Error(codes.InvalidArgument, "cluster is empty")
	}

	if req.Task == "" {
		return nil, status.Error(codes.InvalidArgument, "task is empty")
	}

	sc := s.scope(req.Scope)

	doc, err := s.client.DescribeTasks(ctx, sc.Profile, sc.Region, req.Cluster, req.Task)
	if err != nil {
		return nil, s.mapError("describe tasks", err)
	}

	v, err := structpb.NewValue(doc)
	if err != nil {
		return nil, s.mapError("encode task description", err)
	}

	return v, nil
}

func (s *server) CheckTools(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	statuses := s.client.CheckRequiredTools(ctx)

	tools := make([]api.Tool, 0, len(statuses))
	for _, st := range statuses {
		tools = append(tools, api.Tool{
			Name:      st.Name,
			Installed: st.Installed,
			Version:   st.Version,
		})
	}

	return api.ToolsValue(tools), nil
}

func (s *server) loginProfile(in *structpb.Struct) (string, error) {
	profile := s.scope(api.Scope{Profile: api.ParseLoginRequest(in).Profile}).Profile
	if profile == "" {
		return "", status.Error(codes.InvalidArgument, "profile is empty")
	}

	return profile, nil
}

func (s *server) Login(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	profile, err := s.loginProfile(in)
	if err != nil {
		return nil, err
	}

	msg, err := s.client.SSOLogin(ctx, profile)
	if err != nil {
		return nil, s.mapError("sso login", err)
	}

	return structpb.NewStringValue(msg), nil
}

func (s *server) CancelLogin(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	profile, err := s.loginProfile(in)
	if err != nil {
		return nil, err
	}

	inProgress := s.client.LoginInProgress(profile)

	if err := s.client.CancelSSOLogin(profile); err != nil {
		return nil, s.mapError("cancel sso login", err)
	}

	return structpb.NewBoolValue(inProgress), nil
}

// StartSession returns the session id, generating one if the request has
// none.
func (s *server) StartSession(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	req := api.ParseStartSessionRequest(in)

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sc := s.scope(req.Scope)

	if err := s.client.StartExecSession(ctx, req.SessionID, awscli.ExecTarget{
		Profile:   sc.Profile,
		Region:    sc.Region,
		Cluster:   req.Cluster,
		Task:      req.Task,
		Container: req.Container,
		Shell:     req.Shell,
	}); err != nil {
		return nil, s.mapError("start session", err)
	}

	return structpb.NewStringValue(req.SessionID), nil
}

func (s *server) SendInput(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	req, err := api.ParseSendInputRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session id is empty")
	}

	if err := s.client.SendInput(req.SessionID, req.Data); err != nil {
		return nil, s.mapError("send input", err)
	}

	return api.Empty(), nil
}

func (s *server) CloseSession(
	ctx context.Context,
	in *structpb.Struct,
) (*structpb.Value, error) {
	req := api.ParseSessionRequest(in)
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session id is empty")
	}

	if err := s.client.CloseSession(req.SessionID); err != nil {
		return nil, s.mapError("close session", err)
	}

	return api.Empty(), nil
}

func (s *server) Watch(
	in *structpb.Struct,
	stream grpc.ServerStreamingServer[structpb.Struct],
) error {
	req := api.ParseSessionRequest(in)
	if req.SessionID == "" {
		return status.Error(codes.InvalidArgument, "session id is empty")
	}

	ctx := stream.Context()

	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err()).Err()
	}

	ns := s.client.Namespace()

	kinds := map[string]string{
		procmanager.Topic(ns, procmanager.EventData, req.SessionID):  api.EventData,
		procmanager.Topic(ns, procmanager.EventError, req.SessionID): api.EventError,
		procmanager.Topic(ns, procmanager.EventExit, req.SessionID):  api.EventExit,
	}

	topics := make([]string, 0, len(kinds))
	for topic := range kinds {
		topics = append(topics, topic)
	}

	watcher := s.bus.Watch(topics...)
	defer watcher.Close()

	if err := stream.Send(api.WatchEvent{Kind: api.EventReady}.Struct()); err != nil {
		s.logger.Warn("send ready to client", "id", req.SessionID, "err", err)
		return status.Error(codes.DataLoss, "failed to stream events")
	}

	for {
		event, err := watcher.Next(ctx)
		if err != nil {
			return status.FromContextError(err).Err()
		}

		kind := kinds[event.Topic]

		if err := stream.Send(api.WatchEvent{
			Kind:    kind,
			Topic:   event.Topic,
			Payload: string(event.Payload),
		}.Struct()); err != nil {
			s.logger.Warn("stream event to client", "id", req.SessionID, "err", err)
			return status.Error(codes.DataLoss, "failed to stream events")
		}

		if kind == api.EventExit {
			return nil
		}
	}
}

// mapError translates domain errors to gRPC errors. Errors that carry a
// message meant for the user keep it.
func (s *server) mapError(logMsg string, err error) error {
	var (
		toolNotFound  *procmanager.ToolNotFoundError
		cliUnusable   *awscli.CLIUnavailableError
		commandFailed *procmanager.CommandFailedError
		loginFailed   *awscli.LoginFailedError
		invalidState  procmanager.InvalidStateError
	)

	switch {
	case errors.Is(err, procmanager.ErrSessionNotFound):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, awscli.ErrInvalidTarget):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, procmanager.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, procmanager.ErrCancelled),
		errors.Is(err, context.Canceled):
		s.logger.Info(logMsg, "err", err)
		return status.Error(codes.Canceled, err.Error())

	case errors.As(err, &cliUnusable),
		errors.As(err, &toolNotFound),
		errors.As(err, &commandFailed),
		errors.As(err, &loginFailed),
		errors.As(err, &invalidState):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		s.logger.Error(logMsg, "err", err)
		return status.Error(codes.Internal, "internal server error")
	}
}

// loadCreds returns mTLS credentials when TLS material is configured and
// insecure credentials otherwise.
func (s *server) loadCreds() (credentials.TransportCredentials, error) {
	if !s.cfg.TLS.Enabled() {
		return insecure.NewCredentials(), nil
	}

	tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
		CertPath:   s.cfg.TLS.Cert,
		KeyPath:    s.cfg.TLS.Key,
		CACertPath: s.cfg.TLS.CA,
		Server:     true,
	})
	if err != nil {
		return nil, err
	}

	return credentials.NewTLS(tlsConfig), nil
}

// contextCheckUnaryInterceptor rejects requests with a cancelled context.
func contextCheckUnaryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	if ctx.Err() != nil {
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	return handler(ctx, req)
}
