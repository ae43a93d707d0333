package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for the OAuth server core.
//
// Never record credential material (tokens, codes, verifiers) as attribute
// values; only metadata such as client IDs, methods, and results.
type Metrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	AuthorizationRequested metric.Int64Counter
	LoginRedirects         metric.Int64Counter
	ContinuationsResumed   metric.Int64Counter
	CodeIssued             metric.Int64Counter
	CodeExchanged          metric.Int64Counter
	CodeReuseDetected      metric.Int64Counter
	TokenIssued            metric.Int64Counter
	TokenRevoked           metric.Int64Counter
	TokenValidated         metric.Int64Counter
	ClientRegistered       metric.Int64Counter
	PKCEValidationFailed   metric.Int64Counter
	RateLimitExceeded      metric.Int64Counter

	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	storageMeter := inst.Meter("storage")

	m := &Metrics{}

	instruments := []struct {
		counter *metric.Int64Counter
		meter   metric.Meter
		name    string
		desc    string
		unit    string
	}{
		{&m.HTTPRequestsTotal, httpMeter, "oauth.http.requests.total", "Total HTTP requests handled", "{request}"},
		{&m.AuthorizationRequested, serverMeter, "oauth.authorization.requested", "Authorization requests received", "{request}"},
		{&m.LoginRedirects, serverMeter, "oauth.authorization.login_redirects", "Authorization requests parked for host login", "{redirect}"},
		{&m.ContinuationsResumed, serverMeter, "oauth.authorization.continuations_resumed", "Authorization flows resumed from the continuation cookie", "{flow}"},
		{&m.CodeIssued, serverMeter, "oauth.code.issued", "Authorization codes issued", "{code}"},
		{&m.CodeExchanged, serverMeter, "oauth.code.exchanged", "Authorization codes exchanged for tokens", "{exchange}"},
		{&m.CodeReuseDetected, serverMeter, "oauth.code.reuse_detected", "Consumed authorization codes presented again", "{event}"},
		{&m.TokenIssued, serverMeter, "oauth.token.issued", "Access tokens issued", "{token}"},
		{&m.TokenRevoked, serverMeter, "oauth.token.revoked", "Access tokens revoked", "{revocation}"},
		{&m.TokenValidated, serverMeter, "oauth.token.validated", "Bearer token validations", "{validation}"},
		{&m.ClientRegistered, serverMeter, "oauth.client.registered", "Clients registered", "{client}"},
		{&m.PKCEValidationFailed, serverMeter, "oauth.pkce.validation_failed", "PKCE verifier validation failures", "{failure}"},
		{&m.RateLimitExceeded, serverMeter, "oauth.ratelimit.exceeded", "Rate limit rejections", "{rejection}"},
		{&m.StorageOperationTotal, storageMeter, "oauth.storage.operations.total", "Storage operations executed", "{operation}"},
	}
	for _, in := range instruments {
		counter, err := in.meter.Int64Counter(in.name,
			metric.WithDescription(in.desc),
			metric.WithUnit(in.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", in.name, err)
		}
		*in.counter = counter
	}

	var err error
	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"oauth.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage duration histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs, attrs)
}

// RecordAuthorizationRequested records an authorization request.
func (m *Metrics) RecordAuthorizationRequested(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.AuthorizationRequested.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

// RecordLoginRedirect records a request parked for host login.
func (m *Metrics) RecordLoginRedirect(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.LoginRedirects.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

// RecordContinuationResumed records a flow resumed from the cookie.
func (m *Metrics) RecordContinuationResumed(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.ContinuationsResumed.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

// RecordCodeIssued records an issued authorization code.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodeIssued.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

// RecordCodeExchange records a code exchange, with the PKCE method used.
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID, pkceMethod string) {
	if m == nil {
		return
	}
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.String(AttrPKCEMethod, pkceMethod),
	))
}

// RecordCodeReuseDetected records a reuse event.
func (m *Metrics) RecordCodeReuseDetected(ctx context.Context) {
	if m == nil {
		return
	}
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordTokenIssued records token issuance.
func (m *Metrics) RecordTokenIssued(ctx context.Context, direct bool) {
	if m == nil {
		return
	}
	m.TokenIssued.Add(ctx, 1, metric.WithAttributes(attribute.Bool(AttrTokenDirect, direct)))
}

// RecordTokenRevoked records n revocations.
func (m *Metrics) RecordTokenRevoked(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokenRevoked.Add(ctx, n)
}

// RecordTokenValidated records a bearer validation attempt.
func (m *Metrics) RecordTokenValidated(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.TokenValidated.Add(ctx, 1, metric.WithAttributes(attribute.Bool(AttrResult, success)))
}

// RecordClientRegistration records a registration.
func (m *Metrics) RecordClientRegistration(ctx context.Context, clientType string) {
	if m == nil {
		return
	}
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientType, clientType)))
}

// RecordPKCEValidationFailed records a failed verifier check.
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrPKCEMethod, method)))
}

// RecordRateLimitExceeded records a rate limit rejection.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRateLimiterType, limiterType)))
}

// RecordStorageOperation records one storage call with its result.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageResult, result),
	)
	m.StorageOperationTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, durationMs, attrs)
}
