// Package httputil provides the HTTP plumbing shared by the mirror ranker,
// the acquirer and the vendor metadata clients.
//
// # Overview
//
//   - [NewClient]: an *http.Client built from mirror configuration (timeout,
//     TLS verification, user agent) that reports requests to the registered
//     [observability.HTTPHooks]
//   - [Policy]: bounded retries with doubling delays for errors marked
//     with [Retryable]
//
// # Retry
//
// Wrap transient failures (connection resets, 5xx responses) and leave
// permanent ones alone:
//
//	err := httputil.MetadataPolicy.Do(ctx, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    ...
//	})
//
// The orchestrator uses its own Policy with a predicate over recoverable
// build errors.
package httputil
