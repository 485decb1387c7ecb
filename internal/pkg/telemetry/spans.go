package telemetry

// Span names shared by the services and adapters.
const (
	SpanDemographicsFetch = "demographics.fetch"
	SpanGeocode           = "census.geocode"
	SpanTractStatistics   = "census.tract_statistics"
	SpanPlacesNearby      = "places.nearby"
	SpanEnrich            = "recommendations.enrich"
	SpanGenerate          = "recommendations.generate"
	SpanSearch            = "search.run"
)
