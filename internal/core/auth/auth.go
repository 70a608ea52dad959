// Package auth provides shared-token authentication for the gRPC surface.
package auth

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKey carries the token on every request.
const MetadataKey = "x-api-key"

// healthPrefix lets probes reach the health service without a token.
const healthPrefix = "/grpc.health.v1.Health/"

// Authenticator checks requests against one configured token.
// An empty token disables authentication.
type Authenticator struct {
	digest *tokenDigest
}

// NewAuthenticator creates an authenticator for token.
func NewAuthenticator(token string) (*Authenticator, error) {
	if token == "" {
		return &Authenticator{}, nil
	}
	if err := ValidateToken(token); err != nil {
		return nil, err
	}
	digest, err := newTokenDigest(token)
	if err != nil {
		return nil, err
	}
	return &Authenticator{digest: digest}, nil
}

// Enabled reports whether requests must carry a token.
func (a *Authenticator) Enabled() bool {
	return a.digest != nil
}

// Authenticate validates a presented token.
func (a *Authenticator) Authenticate(presented string) error {
	if !a.Enabled() {
		return nil
	}
	if presented == "" {
		return ErrMissingToken
	}
	if !a.digest.matches(presented) {
		return ErrInvalidToken
	}
	return nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.Enabled() || strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}

		var presented string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(MetadataKey); len(values) > 0 {
				presented = values[0]
			}
		}

		if err := a.Authenticate(presented); err != nil {
			zerolog.Ctx(ctx).Warn().Str("method", info.FullMethod).Err(err).Msg("request rejected")
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}
