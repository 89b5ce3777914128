package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shiv122/ecsexec/internal/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func authorise(ctx context.Context, method string, logger *slog.Logger) error {
	cn, role, err := auth.Authorise(ctx, method)
	if err != nil {
		logger.Warn(
			"failed to authorise client",
			"cn", cn,
			"role", role,
			"method", method,
			"err", err,
		)

		if errors.Is(err, auth.ErrUnauthenticated) {
			return status.Error(codes.Unauthenticated, "not authenticated")
		}

		return status.Error(codes.PermissionDenied, "not authorised")
	}

	logger.Debug(
		"authorised client request",
		"cn", cn,
		"role", role,
		"method", method,
	)

	return nil
}

func authUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := authorise(ctx, info.FullMethod, logger); err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

func authStreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := authorise(ss.Context(), info.FullMethod, logger); err != nil {
			return err
		}

		return handler(srv, ss)
	}
}
