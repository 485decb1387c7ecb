package census

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/ports"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

const tractsLayer = "Census Tracts"

// ResolveTract maps a coordinate to the census tract containing it.
func (c *Client) ResolveTract(ctx context.Context, p domain.GeoPoint) (ports.TractRef, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanGeocode)
	defer span.End()

	q := url.Values{}
	q.Set("x", strconv.FormatFloat(p.Lng, 'f', 6, 64))
	q.Set("y", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	q.Set("benchmark", "Public_AR_Current")
	q.Set("vintage", "Current_Current")
	q.Set("layers", tractsLayer)
	q.Set("format", "json")

	body, _, err := c.get(ctx, c.cfg.GeocoderURL, q)
	if err != nil {
		return ports.TractRef{}, err
	}
	return ParseGeocoderResponse(body)
}

// ParseGeocoderResponse extracts the first tract from a geographies response.
func ParseGeocoderResponse(body []byte) (ports.TractRef, error) {
	if len(body) == 0 {
		return ports.TractRef{}, domain.NewDemographicsError(domain.FailureEmptyBody, "geocoder returned an empty body", nil)
	}
	if !gjson.ValidBytes(body) {
		return ports.TractRef{}, domain.NewDemographicsError(domain.FailureMalformed, "geocoder returned invalid JSON", nil)
	}

	root := gjson.ParseBytes(body)
	if msg := root.Get("errors.0"); msg.Exists() {
		return ports.TractRef{}, domain.NewDemographicsError(domain.FailureMalformed, "geocoder error: "+msg.String(), nil)
	}

	geos := root.Get("result.geographies")
	if !geos.Exists() {
		return ports.TractRef{}, domain.NewDemographicsError(domain.FailureMalformed, "geocoder response has no result.geographies", nil)
	}

	tract := geos.Get(gjson.Escape(tractsLayer) + ".0")
	if !tract.Exists() {
		return ports.TractRef{}, domain.NewDemographicsError(domain.FailureNoGeography, "no census tract at this location", nil)
	}

	ref := ports.TractRef{
		StateFIPS:  tract.Get("STATE").String(),
		CountyFIPS: tract.Get("COUNTY").String(),
		TractFIPS:  tract.Get("TRACT").String(),
		Name:       tract.Get("NAME").String(),
	}
	if ref.StateFIPS == "" || ref.CountyFIPS == "" || ref.TractFIPS == "" {
		return ports.TractRef{}, domain.NewDemographicsError(domain.FailureMissingField, "tract is missing STATE, COUNTY or TRACT", nil)
	}
	return ref, nil
}
