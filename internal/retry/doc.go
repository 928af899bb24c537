// Package retry provides the bounded retry combinators shared by the fetch,
// download, upload and sound stages.
//
// Do retries a single fallible operation while its error is retryable. Until
// drives a side-effecting action until a predicate reports the desired state,
// re-checking the predicate after every attempt. Both are bounded by Policy and
// honour context cancellation between attempts.
package retry
