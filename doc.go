// Package svcpipe provides the request-execution pipeline shared by data
// access services. Every call passes through an ordered middleware chain:
//
//   - Logging: request id, start / outcome, elapsed time across retries
//   - Authentication: bearer token injection with one refresh-and-retry on 401
//   - Error context: service, operation and timestamp on every failure
//   - Retry: exponential backoff (1s, 2s, 4s, ...) on network errors, 408, 429 and 5xx
//   - Cache: per-service TTL cache for GET requests that opt in
//
// and ends in an execution core that builds the URL, encodes the body,
// bounds the attempt with a timeout derived from the caller's context and
// decodes the response by content type.
//
// Typical usage:
//
//	svc := svcpipe.New(
//	    svcpipe.WithBaseURL("https://api.example.com"),
//	    svcpipe.WithServiceName("items"),
//	    svcpipe.WithTokenStore(auth.NewStaticStore(token)),
//	)
//	resp, err := svc.Request(ctx, &svcpipe.Request{
//	    Endpoint: "/items",
//	    UseCache: true,
//	})
//
// Concrete services embed *Service and call SetCache / GetCache / ClearCache
// to invalidate after writes. Extra middleware (for example a CircuitBreaker
// or RateLimiter) is appended with Use and runs once per network attempt.
// Failures are always *ServiceError; branch on Code or Status.
package svcpipe
