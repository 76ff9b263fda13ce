package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Fetcher transfers one payload from a URL to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// restyFetcher downloads over HTTP, streaming the body straight to disk.
type restyFetcher struct {
	// client is the shared HTTP client.
	client *resty.Client
}

// errBadHTTPStatus is returned when the source answers with a non-2xx status.
var errBadHTTPStatus = errors.New("unexpected http status")

// newRestyFetcher creates a fetcher with a shared resty client.
// No request timeout is set: audiobook payloads are large and transfer time
// is bounded by job cancellation instead.
func newRestyFetcher() *restyFetcher {
	return &restyFetcher{
		client: resty.New(),
	}
}

// Fetch downloads url into dest. The file is written by resty's output
// option, so partial files can remain after a failure; completed jobs are
// the only ones whose paths are reported as final.
func (f *restyFetcher) Fetch(ctx context.Context, url, dest string) error {
	response, err := f.client.R().
		SetContext(ctx).
		SetOutput(dest).
		Get(url)
	if err != nil {
		// Unwrap so cancellation is recognizable upstream.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return fmt.Errorf("fetch %s: %w", url, err)
	}

	if response.IsError() {
		return fmt.Errorf("fetch %s: %w: %s", url, errBadHTTPStatus, response.Status())
	}

	return nil
}
