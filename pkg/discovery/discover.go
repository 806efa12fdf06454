package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/upstream"
)

// ErrSourceUnreadable marks a source that could not be read. It is
// non-fatal for a discovery pass unless every source fails.
var ErrSourceUnreadable = errors.New("discovery source unreadable")

// Discoverer reads documentation sources and extracts functions.
type Discoverer struct {
	parser *Parser
	client *upstream.Client
}

// NewDiscoverer creates a Discoverer. client fetches http(s) sources and
// is used with absolute URLs.
func NewDiscoverer(parser *Parser, client *upstream.Client) *Discoverer {
	return &Discoverer{parser: parser, client: client}
}

// Result is the outcome of one discovery pass.
type Result struct {
	Functions []Function

	// Failed lists the sources that could not be read.
	Failed []string
}

// Discover reads every source in order and merges the results first-seen-wins.
// Unreadable sources are logged and skipped. An error wrapping
// ErrSourceUnreadable is returned only when every source failed.
func (d *Discoverer) Discover(ctx context.Context, sources []Source) (Result, error) {
	var (
		res     Result
		batches [][]Function
		errs    []error
	)
	for _, src := range sources {
		content, err := d.read(ctx, src)
		if err != nil {
			slog.Warn("discovery source unreadable", "source", src.label(), "error", err)
			res.Failed = append(res.Failed, src.label())
			errs = append(errs, fmt.Errorf("%s: %w", src.label(), err))
			continue
		}
		format := detectFormat(src, content)
		fns := d.parser.Parse(content, format, src.label())
		debug.Log("discovery", "source parsed",
			"source", src.label(),
			"format", string(format),
			"functions", len(fns),
		)
		batches = append(batches, fns)
	}

	if len(sources) > 0 && len(batches) == 0 {
		return res, fmt.Errorf("%w: %w", ErrSourceUnreadable, errors.Join(errs...))
	}
	res.Functions = Merge(batches...)
	return res, nil
}

func (d *Discoverer) read(ctx context.Context, src Source) ([]byte, error) {
	loc := src.Location
	switch {
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		resp, err := d.client.Do(ctx, upstream.Request{
			Method:  http.MethodGet,
			Path:    loc,
			Headers: map[string]string{"Accept": "text/markdown, text/html;q=0.9, */*;q=0.5"},
		})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	default:
		return os.ReadFile(strings.TrimPrefix(loc, "file://"))
	}
}
