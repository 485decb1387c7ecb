package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
	"github.com/samirrijal/gapfinder/internal/pkg/geospatial"
)

var errInvalidPoint = errors.New("point outside lat/lng range")

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	geoPointInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "GeoPointInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"lng": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	entityInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "CoverageEntityInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"id":       &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"location": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(geoPointInput)},
			"radius":   &graphql.InputObjectFieldConfig{Type: graphql.Float, Description: "meters; omitted or 0 means 2.5 miles"},
		},
	})

	overlapType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Overlap",
		Fields: graphql.Fields{
			"id_a":               &graphql.Field{Type: graphql.String},
			"id_b":               &graphql.Field{Type: graphql.String},
			"distance":           &graphql.Field{Type: graphql.Float},
			"overlap_area_sq_m":  &graphql.Field{Type: graphql.Float},
			"overlap_percentage": &graphql.Field{Type: graphql.Float},
		},
	})

	recordType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DemographicsRecord",
		Fields: graphql.Fields{
			"population":            &graphql.Field{Type: graphql.Int},
			"median_income_usd":     &graphql.Field{Type: graphql.Int},
			"median_home_value_usd": &graphql.Field{Type: graphql.Int},
			"college_percent":       &graphql.Field{Type: graphql.Float},
			"tract_name":            &graphql.Field{Type: graphql.String},
			"state_fips":            &graphql.Field{Type: graphql.String},
			"county_fips":           &graphql.Field{Type: graphql.String},
			"tract_fips":            &graphql.Field{Type: graphql.String},
			"income_display": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*domain.DemographicsRecord).IncomeDisplay(), nil
				},
			},
			"home_value_display": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*domain.DemographicsRecord).HomeValueDisplay(), nil
				},
			},
		},
	})

	failureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DemographicsFailure",
		Fields: graphql.Fields{
			"kind": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(*domain.DemographicsFailure).Kind), nil
				},
			},
			"message": &graphql.Field{Type: graphql.String},
			"detail":  &graphql.Field{Type: graphql.String},
		},
	})

	demographicsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Demographics",
		Fields: graphql.Fields{
			"ok": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.DemographicsResult).OK(), nil
				},
			},
			"record":  &graphql.Field{Type: recordType},
			"failure": &graphql.Field{Type: failureType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"distance": &graphql.Field{
				Type:        graphql.Float,
				Description: "Great-circle distance in meters",
				Args: graphql.FieldConfigArgument{
					"from": &graphql.ArgumentConfig{Type: graphql.NewNonNull(geoPointInput)},
					"to":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(geoPointInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from := pointArg(p.Args["from"])
					to := pointArg(p.Args["to"])
					if !from.Valid() || !to.Valid() {
						return nil, errInvalidPoint
					}
					return geospatial.Distance(from, to), nil
				},
			},
			"destination": &graphql.Field{
				Type:        geoPointType,
				Description: "Point reached from origin after distance meters on bearing degrees",
				Args: graphql.FieldConfigArgument{
					"origin":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(geoPointInput)},
					"bearing":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"distance": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					origin := pointArg(p.Args["origin"])
					if !origin.Valid() {
						return nil, errInvalidPoint
					}
					return geospatial.DestinationPoint(origin, p.Args["bearing"].(float64), p.Args["distance"].(float64)), nil
				},
			},
			"overlaps": &graphql.Field{
				Type:        graphql.NewList(overlapType),
				Description: "Pairwise coverage overlaps",
				Args: graphql.FieldConfigArgument{
					"entities": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(entityInput)))},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					raw, _ := p.Args["entities"].([]interface{})
					if len(raw) > maxOverlapEntities {
						return nil, errors.New("too many entities")
					}
					entities := make([]domain.CoverageEntity, 0, len(raw))
					for _, r := range raw {
						m, _ := r.(map[string]interface{})
						e := domain.CoverageEntity{Location: pointArg(m["location"])}
						e.ID, _ = m["id"].(string)
						e.Radius, _ = m["radius"].(float64)
						if !e.Location.Valid() {
							return nil, errInvalidPoint
						}
						entities = append(entities, e)
					}
					return usecases.DetectOverlaps(entities), nil
				},
			},
			"demographics": &graphql.Field{
				Type:        demographicsType,
				Description: "Census tract demographics at a point",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Demographics == nil {
						return nil, errors.New("demographics not configured")
					}
					pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
					if !pt.Valid() {
						return nil, errInvalidPoint
					}
					return deps.Demographics.Fetch(p.Context, pt), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func pointArg(v interface{}) domain.GeoPoint {
	m, _ := v.(map[string]interface{})
	lat, _ := m["lat"].(float64)
	lng, _ := m["lng"].(float64)
	return domain.GeoPoint{Lat: lat, Lng: lng}
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
