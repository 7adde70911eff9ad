// Package elab is a thin client for the eLabFTW v2 REST API.
//
// Every call is authenticated with the configured API key and bounded by the
// configured timeout. Calls are never retried. Failures surface as one of the
// typed errors in this package: UpstreamError for any non-success response,
// NotFoundError when an identifier has no upstream resource, TransportError
// when no response was received. Use KindOf to classify them.
package elab
