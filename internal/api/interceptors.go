package api

import (
	"context"
	"path"
	"strings"
	"time"

	"classbook/internal/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const requestIDMetadataKey = "x-request-id"

type claimsKey struct{}

func claimsFrom(ctx context.Context) *TokenClaims {
	c, _ := ctx.Value(claimsKey{}).(*TokenClaims)
	return c
}

// AuthInterceptor requires a bearer token on BookingService calls and rate
// limits each caller. Health and reflection stay open.
type AuthInterceptor struct {
	tokens  *TokenIssuer
	limiter *rateLimiter
}

func NewAuthInterceptor(tokens *TokenIssuer, limiter *rateLimiter) *AuthInterceptor {
	return &AuthInterceptor{tokens: tokens, limiter: limiter}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	prefix := "/" + bookingServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}

		raw := bearerToken(metadataValue(ctx, "authorization"))
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := a.tokens.Parse(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if a.limiter != nil && !a.limiter.allow("account:"+claims.Subject) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}

		return handler(context.WithValue(ctx, claimsKey{}, claims), req)
	}
}

// LoggingUnaryInterceptor tags every call with a request id, echoed back in
// the response header, and writes one log line per call.
func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	log := logging.Component(logger, "grpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := metadataValue(ctx, requestIDMetadataKey)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))
		ctx = context.WithValue(ctx, ctxRequestID, requestID)

		started := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		var event *zerolog.Event
		switch code {
		case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss:
			event = log.Error().Err(err)
		case codes.OK:
			event = log.Info()
		default:
			event = log.Warn()
		}
		event.
			Str("request_id", requestID).
			Str("method", path.Base(info.FullMethod)).
			Str("peer", peerAddr(ctx)).
			Stringer("code", code).
			Dur("elapsed", time.Since(started)).
			Msg("grpc call")

		return resp, err
	}
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
