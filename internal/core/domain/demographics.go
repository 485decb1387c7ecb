package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// DemographicsRecord holds tract-level socioeconomic aggregates.
// A zero MedianIncomeUSD or MedianHomeValueUSD means "not available".
type DemographicsRecord struct {
	Population         int     `json:"population"`
	MedianIncomeUSD    int     `json:"median_income_usd"`
	MedianHomeValueUSD int     `json:"median_home_value_usd"`
	CollegePercent     float64 `json:"college_percent"`
	TractName          string  `json:"tract_name"`
	StateFIPS          string  `json:"state_fips"`
	CountyFIPS         string  `json:"county_fips"`
	TractFIPS          string  `json:"tract_fips"`
}

// IncomeAvailable reports whether a median income was published for the tract.
func (r DemographicsRecord) IncomeAvailable() bool { return r.MedianIncomeUSD > 0 }

// HomeValueAvailable reports whether a median home value was published for the tract.
func (r DemographicsRecord) HomeValueAvailable() bool { return r.MedianHomeValueUSD > 0 }

// IncomeDisplay renders the median income for display.
func (r DemographicsRecord) IncomeDisplay() string { return formatUSD(r.MedianIncomeUSD) }

// HomeValueDisplay renders the median home value for display.
func (r DemographicsRecord) HomeValueDisplay() string { return formatUSD(r.MedianHomeValueUSD) }

// NotAvailable is rendered in place of sentinel zero values.
const NotAvailable = "not available"

func formatUSD(v int) string {
	if v <= 0 {
		return NotAvailable
	}
	s := strconv.Itoa(v)
	out := make([]byte, 0, len(s)+len(s)/3+1)
	out = append(out, '$')
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// FailureKind classifies why a demographics lookup produced no record.
type FailureKind string

const (
	FailureNetwork      FailureKind = "network"
	FailureStatus       FailureKind = "status"
	FailureEmptyBody    FailureKind = "empty_body"
	FailureMalformed    FailureKind = "malformed"
	FailureNoGeography  FailureKind = "no_geography"
	FailureNoStatistics FailureKind = "no_statistics"
	FailureMissingField FailureKind = "missing_field"
	FailureCancelled    FailureKind = "cancelled"
)

// Transient reports whether retrying the same lookup later may succeed.
// Missing geography or statistics are facts about the location, not outages.
func (k FailureKind) Transient() bool {
	switch k {
	case FailureNetwork, FailureStatus, FailureEmptyBody, FailureMalformed:
		return true
	}
	return false
}

// DemographicsFailure is the failure alternative to DemographicsRecord.
type DemographicsFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
}

// Cancelled reports whether the lookup was abandoned rather than failed.
func (f DemographicsFailure) Cancelled() bool { return f.Kind == FailureCancelled }

// DemographicsResult holds exactly one of Record or Failure.
type DemographicsResult struct {
	Record  *DemographicsRecord  `json:"record,omitempty"`
	Failure *DemographicsFailure `json:"failure,omitempty"`
}

// DemographicsOK wraps a successful record.
func DemographicsOK(r DemographicsRecord) DemographicsResult {
	return DemographicsResult{Record: &r}
}

// DemographicsFailed wraps a failure.
func DemographicsFailed(kind FailureKind, message, detail string) DemographicsResult {
	return DemographicsResult{Failure: &DemographicsFailure{Kind: kind, Message: message, Detail: detail}}
}

// OK reports whether the result carries a record.
func (r DemographicsResult) OK() bool { return r.Record != nil }

// IsSet reports whether either alternative is present.
func (r DemographicsResult) IsSet() bool { return r.Record != nil || r.Failure != nil }

// DemographicsError is returned by census adapters so the service can map
// transport-level problems onto a FailureKind.
type DemographicsError struct {
	Kind FailureKind
	Msg  string
	Err  error
}

func (e *DemographicsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DemographicsError) Unwrap() error { return e.Err }

// NewDemographicsError builds a classified adapter error.
func NewDemographicsError(kind FailureKind, msg string, err error) error {
	return &DemographicsError{Kind: kind, Msg: msg, Err: err}
}

// DemographicsKind extracts the FailureKind carried by err, defaulting to network.
func DemographicsKind(err error) FailureKind {
	var de *DemographicsError
	if errors.As(err, &de) {
		return de.Kind
	}
	return FailureNetwork
}
