package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span and metric attribute keys.
//
// Never set these to credential material (tokens, codes, verifiers); only
// metadata. Traces outlive requests and travel through monitoring
// infrastructure.
const (
	AttrClientID     = "oauth.client_id"
	AttrUserHash     = "oauth.user_hash"
	AttrScope        = "oauth.scope"
	AttrGrantType    = "oauth.grant_type"
	AttrResponseType = "oauth.response_type"
	AttrClientType   = "oauth.client_type"
	AttrPKCEMethod   = "oauth.pkce.method"
	AttrTokenDirect  = "oauth.token.direct"
	AttrResult       = "oauth.result"
	AttrError        = "oauth.error"

	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	AttrRateLimiterType = "security.rate_limiter.type"

	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span and marks it failed. Nil-safe.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks a span as successful. Nil-safe.
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError marks a span failed with a message, without an error value.
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// AddFlowAttributes attaches common OAuth flow attributes to a span.
// userHash must already be hashed (security.HashIdentifier).
func AddFlowAttributes(span trace.Span, clientID, userHash, scope string) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, 3)
	if clientID != "" {
		attrs = append(attrs, attribute.String(AttrClientID, clientID))
	}
	if userHash != "" {
		attrs = append(attrs, attribute.String(AttrUserHash, userHash))
	}
	if scope != "" {
		attrs = append(attrs, attribute.String(AttrScope, scope))
	}
	span.SetAttributes(attrs...)
}

// AddStorageAttributes attaches storage operation attributes to a span.
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}
