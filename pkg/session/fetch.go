package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pathlight-io/graphclient/pkg/graphurl"
)

// page is the decoded shape of one Graph collection response. Only the
// pagination cursor and the results container are interpreted; records
// stay raw.
type page struct {
	NextLink string            `json:"@odata.nextLink"`
	Value    []json.RawMessage `json:"value"`
}

// FetchAll retrieves every record of a collection endpoint, following
// @odata.nextLink cursors until the last page. Records are returned in
// page order, within each page in server order, with no deduplication and
// no page cap. An empty response body terminates the loop early with
// whatever was accumulated; any fatal error aborts the call and discards
// accumulated pages.
func (c *Controller) FetchAll(ctx context.Context, version graphurl.Version, endpoint string, opts graphurl.QueryOptions) ([]json.RawMessage, error) {
	if !version.Valid() {
		return nil, fmt.Errorf("unknown Graph version %q", version)
	}

	nextURL, err := graphurl.Build(c.config.BaseURL, version, endpoint, opts.Values())
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	var records []json.RawMessage
	pages := 0

	for nextURL != "" {
		c.logger.Debug().Str("url", nextURL).Msg("Fetching page")

		body, err := c.executor.Execute(ctx, http.MethodGet, nextURL, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
		}
		if len(body) == 0 {
			break
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode page for %s: %w", endpoint, err)
		}

		records = append(records, p.Value...)
		pages++
		graphPagesFetchedTotal.WithLabelValues(endpoint).Inc()

		if pages%50 == 0 {
			c.logger.Info().
				Str("endpoint", endpoint).
				Int("pages", pages).
				Int("records", len(records)).
				Msg("Fetch progress")
		}

		// Cursor is an absolute URL, used verbatim; absent on the last page
		nextURL = p.NextLink
	}

	c.logger.Info().
		Str("endpoint", endpoint).
		Int("pages", pages).
		Int("records", len(records)).
		Dur("duration", time.Since(startTime)).
		Msg("Fetch complete")

	return records, nil
}
