package connect

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

// TokenHeader is the header name for the service token.
const TokenHeader = "X-Trackd-Token"

var errInvalidToken = errors.New("invalid or missing token")

// authInterceptor rejects calls that do not carry the configured token.
// It covers unary and streaming handlers.
type authInterceptor struct {
	token string
}

// NewAuthInterceptor creates an interceptor that validates the service token.
// An empty token disables authentication.
func NewAuthInterceptor(token string) connect.Interceptor {
	return &authInterceptor{token: token}
}

func (a *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if err := a.check(req.Header()); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (a *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (a *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := a.check(conn.RequestHeader()); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (a *authInterceptor) check(header http.Header) error {
	if a.token == "" {
		return nil
	}

	token := header.Get(TokenHeader)
	if token == "" {
		token = strings.TrimPrefix(header.Get("Authorization"), "Bearer ")
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
	}
	return nil
}

// tokenCredentials attaches the token to outgoing calls.
type tokenCredentials struct {
	token string
}

func (c *tokenCredentials) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if c.token != "" {
			req.Header().Set(TokenHeader, c.token)
		}
		return next(ctx, req)
	}
}

func (c *tokenCredentials) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if c.token != "" {
			conn.RequestHeader().Set(TokenHeader, c.token)
		}
		return conn
	}
}

func (c *tokenCredentials) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
