package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"finance-server-go/internal/registry"
	"finance-server-go/internal/service"
)

// RPCMetrics records per-call outcome; *monitor.Monitor satisfies it.
type RPCMetrics interface {
	RecordRPC(method, code string, seconds float64)
}

// clientID is the caller's remote address, or "unknown" when the transport
// did not attach a peer.
func clientID(ctx context.Context) registry.ClientID {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	return registry.ClientID(p.Addr.String())
}

// hookUnary runs the connection hook before every unary handler.
func hookUnary(hook service.ConnectionHook) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		hook.Observe(clientID(ctx))
		return handler(ctx, req)
	}
}

func hookStream(hook service.ConnectionHook) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		hook.Observe(clientID(ss.Context()))
		return handler(srv, ss)
	}
}

func loggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(log, info.FullMethod, clientID(ctx), start, err)
		return resp, err
	}
}

func loggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		client := clientID(ss.Context())
		log.Info("stream opened", zap.String("method", info.FullMethod), zap.String("client", string(client)))
		start := time.Now()
		err := handler(srv, ss)
		logCall(log, info.FullMethod, client, start, err)
		return err
	}
}

func logCall(log *zap.Logger, method string, client registry.ClientID, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("client", string(client)),
		zap.String("code", status.Code(err).String()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		log.Warn("request failed", append(fields, zap.Error(err))...)
		return
	}
	log.Info("request served", fields...)
}

func metricsUnary(m RPCMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordRPC(info.FullMethod, status.Code(err).String(), time.Since(start).Seconds())
		return resp, err
	}
}

func metricsStream(m RPCMetrics) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		m.RecordRPC(info.FullMethod, status.Code(err).String(), time.Since(start).Seconds())
		return err
	}
}
