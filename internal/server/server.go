// Package server exposes the decision pipeline over gRPC and hot-reloads
// its configuration.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/stancewatch/internal/audit"
	"github.com/ppiankov/stancewatch/internal/config"
	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/nonce"
	"github.com/ppiankov/stancewatch/internal/pipeline"
	"github.com/ppiankov/stancewatch/internal/ratelimit"
)

// Config holds gRPC server configuration.
type Config struct {
	// Listen overrides server.listen from the config file.
	Listen     string
	ConfigPath string
	Generator  pipeline.Generator
	Logger     zerolog.Logger
}

// Server implements DecisionService.
type Server struct {
	mu       sync.RWMutex
	stack    *pipeline.Stack
	settings *config.Config
	limiter  *ratelimit.Limiter

	store    nonce.Store
	auditLog *audit.Log
	cfg      Config
	logger   zerolog.Logger

	grpcServer *grpc.Server
}

// New loads the configuration, opens the nonce store and audit log, and
// builds the pipeline.
func New(ctx context.Context, cfg Config) (*Server, error) {
	settings, hash, err := config.LoadWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := nonce.Open(ctx, settings.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to open nonce store: %w", err)
	}

	var auditLog *audit.Log
	if settings.AuditLog != "" {
		auditLog, err = audit.Open(settings.AuditLog)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	s := &Server{
		settings:   settings,
		limiter:    ratelimit.New(store, settings.RateLimit),
		store:      store,
		auditLog:   auditLog,
		cfg:        cfg,
		logger:     cfg.Logger,
		grpcServer: grpc.NewServer(),
	}
	s.stack, err = s.build(ctx, settings, hash)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.grpcServer.RegisterService(&ServiceDesc, s)
	return s, nil
}

func (s *Server) build(ctx context.Context, settings *config.Config, hash string) (*pipeline.Stack, error) {
	stack, err := pipeline.Build(ctx, settings, hash, pipeline.BuildOptions{
		Generator: s.cfg.Generator,
		Logger:    s.logger,
		Store:     s.store,
		AuditLog:  s.auditLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return stack, nil
}

// Addr returns the listen address: the override, else server.listen.
func (s *Server) Addr() string {
	if s.cfg.Listen != "" {
		return s.cfg.Listen
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Server.Listen
}

// Serve listens on Addr. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.grpcServer.Serve(lis)
}

// ServeOn serves on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Close releases the pipeline, nonce store and audit log.
func (s *Server) Close() error {
	s.mu.Lock()
	stack := s.stack
	s.stack = nil
	s.mu.Unlock()
	if stack != nil {
		stack.Close()
	}
	var err error
	if s.auditLog != nil {
		err = s.auditLog.Close()
	}
	if s.store != nil {
		if cerr := s.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Server) current() *pipeline.Stack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stack
}

// admit applies the per-user rate limit. A store failure refuses the
// request.
func (s *Server) admit(ctx context.Context, req model.RequestContext) (model.DecisionResult, bool) {
	s.mu.RLock()
	limiter := s.limiter
	s.mu.RUnlock()

	res, err := limiter.Allow(ctx, req.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("rate limit check failed")
		return refusal(req, "rate_limit_unavailable"), false
	}
	if res.Exceeded {
		s.logger.Warn().Str("user_id", req.UserID).Int64("count", res.Current).Msg(res.Reason)
		return refusal(req, ratelimit.Reason), false
	}
	return model.DecisionResult{}, true
}

func refusal(req model.RequestContext, reason string) model.DecisionResult {
	return model.DecisionResult{
		RequestID:     req.RequestID,
		Stance:        model.StanceShield,
		Action:        model.ActionStop,
		FailureReason: reason,
	}
}

// Evaluate implements the Evaluate RPC. Malformed requests fail closed with
// a stop decision rather than an RPC error.
func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return ToStruct(refusal(model.RequestContext{}, "malformed_request"))
	}
	stack := s.current()
	if stack == nil {
		return nil, status.Error(codes.Unavailable, "server shutting down")
	}
	if res, ok := s.admit(ctx, req); !ok {
		return ToStruct(res)
	}
	return ToStruct(stack.Process(ctx, req))
}

// Revoke implements the Revoke RPC.
func (s *Server) Revoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RevokeRequest
	if in != nil {
		if err := FromStruct(in, &req); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	if req.TokenID == "" {
		return nil, status.Error(codes.InvalidArgument, "token_id is required")
	}
	stack := s.current()
	if stack == nil {
		return nil, status.Error(codes.Unavailable, "server shutting down")
	}
	if err := stack.Handshake.Revoke(ctx, req.TokenID); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.logger.Info().Str("token_id", req.TokenID).Msg("ack token revoked")
	return ToStruct(RevokeResponse{TokenID: req.TokenID, Revoked: true})
}

// Reload rebuilds the pipeline from the config file and swaps it in.
// The nonce store and audit log are kept; changing them needs a restart.
func (s *Server) Reload(ctx context.Context) error {
	settings, hash, err := config.LoadWithHash(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	s.mu.RLock()
	prev := s.settings
	s.mu.RUnlock()
	if settings.Nonce != prev.Nonce || settings.AuditLog != prev.AuditLog {
		s.logger.Warn().Msg("nonce and audit_log changes take effect after restart")
	}
	if settings.Ack.Secret == "" {
		return fmt.Errorf("refusing reload without ack secret: outstanding tokens would be invalidated")
	}

	stack, err := s.build(ctx, settings, hash)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.stack
	s.stack = stack
	s.settings = settings
	s.limiter = ratelimit.New(s.store, settings.RateLimit)
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// ConfigPath returns the watched config file path.
func (s *Server) ConfigPath() string {
	if s.cfg.ConfigPath != "" {
		return s.cfg.ConfigPath
	}
	return config.DefaultPath()
}

// CatalogPath returns the risk catalog extension path, if any.
func (s *Server) CatalogPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Catalog
}
