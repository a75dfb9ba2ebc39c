package openmeteo

import (
	"context"
	"fmt"
	"os"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
)

// Extract fetches the document selected by q.
func (c *Client) Extract(ctx context.Context, q domain.Query) (domain.RawSeriesResponse, error) {
	return c.Fetch(ctx, Request(q))
}

// FileSource reads a previously downloaded document from disk. The query is
// ignored; location and dates come from the document itself.
type FileSource struct {
	Path string
}

func (s FileSource) Extract(_ context.Context, _ domain.Query) (domain.RawSeriesResponse, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return domain.RawSeriesResponse{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	resp, err := Decode(data)
	if err != nil {
		return domain.RawSeriesResponse{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return resp, nil
}
