package tracing

import (
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Attribute keys set by the interceptors
const (
	AttrHTTPMethod     = string(semconv.HTTPRequestMethodKey)
	AttrHTTPStatusCode = string(semconv.HTTPResponseStatusCodeKey)
	AttrHTTPRoute      = string(semconv.HTTPRouteKey)
	AttrURLPath        = string(semconv.URLPathKey)
	AttrURLFull        = string(semconv.URLFullKey)
	AttrServerAddress  = string(semconv.ServerAddressKey)
	AttrRPCSystem      = string(semconv.RPCSystemKey)
	AttrRPCMethod      = string(semconv.RPCMethodKey)
	AttrRPCService     = string(semconv.RPCServiceKey)
	AttrRPCStatusCode  = string(semconv.RPCGRPCStatusCodeKey)
	AttrErrorType      = string(semconv.ErrorTypeKey)
)
