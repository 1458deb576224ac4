package tablebase

import "errors"

// Transport and contract errors. ErrTimeout and ErrRateLimited are produced
// only after the transport's internal retries are exhausted; everything else
// surfaces immediately. None of these are ever cached.
var (
	ErrTimeout           = errors.New("tablebase: request timed out")
	ErrRateLimited       = errors.New("tablebase: rate limited by oracle")
	ErrOracleRejected    = errors.New("tablebase: request rejected by oracle")
	ErrMalformedResponse = errors.New("tablebase: malformed oracle response")
)
