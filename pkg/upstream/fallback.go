package upstream

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoCandidates is returned by DoFallback when no paths were given.
var ErrNoCandidates = errors.New("no candidate paths")

// DoFallback executes req against each candidate path in order.
//
// A failure advances to the next candidate only when the upstream answered
// 404 or 405 and the failing candidate is not the last one. Any other
// failure (including 400 and 422 business errors and transport errors) is
// returned immediately. The error from the last candidate is returned as-is
// once the list is exhausted.
func (c *Client) DoFallback(ctx context.Context, req Request, paths []string) (*Response, error) {
	if len(paths) == 0 {
		return nil, ErrNoCandidates
	}

	for i, path := range paths {
		attempt := req
		attempt.Path = path

		resp, err := c.Do(ctx, attempt)
		if err == nil {
			return resp, nil
		}

		var se *StatusError
		last := i == len(paths)-1
		if last || !errors.As(err, &se) || !se.IsRoutingMiss() {
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, &UnavailableError{Method: attempt.Method, URL: c.baseURL + path, Err: ctx.Err()}
		}
	}

	// Unreachable: the loop returns on the last candidate.
	return nil, fmt.Errorf("candidate paths exhausted")
}
