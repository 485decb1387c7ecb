package census

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/ports"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

// TractStatistics queries the ACS 5-year dataset for one tract.
func (c *Client) TractStatistics(ctx context.Context, tract ports.TractRef, fields []string) (ports.Table, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanTractStatistics)
	defer span.End()

	q := url.Values{}
	q.Set("get", strings.Join(fields, ","))
	q.Set("for", "tract:"+tract.TractFIPS)
	q.Set("in", "state:"+tract.StateFIPS+" county:"+tract.CountyFIPS)
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}

	base := strings.TrimRight(c.cfg.StatsURL, "/") + "/" + strconv.Itoa(c.cfg.Year) + "/acs/acs5"
	body, status, err := c.get(ctx, base, q)
	if err != nil {
		return ports.Table{}, err
	}
	// The statistics API answers 204 when the geography has no rows.
	if status == http.StatusNoContent {
		return ports.Table{}, domain.NewDemographicsError(domain.FailureNoStatistics, "no statistics for tract "+tract.TractFIPS, nil)
	}
	return ParseStatisticsResponse(body)
}

// ParseStatisticsResponse reads a [[header...],[row...]] array.
func ParseStatisticsResponse(body []byte) (ports.Table, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return ports.Table{}, domain.NewDemographicsError(domain.FailureEmptyBody, "statistics service returned an empty body", nil)
	}
	if !gjson.ValidBytes(body) {
		return ports.Table{}, domain.NewDemographicsError(domain.FailureMalformed, "statistics service returned invalid JSON", nil)
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return ports.Table{}, domain.NewDemographicsError(domain.FailureMalformed, "statistics response is not a table", nil)
	}

	rows := root.Array()
	if len(rows) < 2 {
		return ports.Table{}, domain.NewDemographicsError(domain.FailureNoStatistics, "statistics response has no data row", nil)
	}
	if !rows[0].IsArray() || !rows[1].IsArray() {
		return ports.Table{}, domain.NewDemographicsError(domain.FailureMalformed, "statistics rows are not arrays", nil)
	}

	return ports.Table{Header: rowStrings(rows[0]), Row: rowStrings(rows[1])}, nil
}

func rowStrings(r gjson.Result) []string {
	vals := r.Array()
	out := make([]string, len(vals))
	for i, v := range vals {
		if v.Type != gjson.Null {
			out[i] = v.String()
		}
	}
	return out
}
