package authcore

import "context"

type clientIPContextKey struct{}
type clientIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for request throttling keys and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithClientID attaches the requesting OAuth client's identifier to ctx. The
// MFA challenge engine uses it to select the client-level MFA policy; without
// it the default policy applies.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, clientID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func clientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	clientID, _ := ctx.Value(clientIDContextKey{}).(string)
	return clientID
}
