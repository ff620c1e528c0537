package streetview

import "time"

// OutcomeKind classifies the result of one metadata query.
type OutcomeKind int

const (
	// KindFound means the endpoint returned a panorama near the queried point.
	KindFound OutcomeKind = iota
	// KindNotFound means no imagery exists within the search radius.
	KindNotFound
	// KindRateLimited means the endpoint asked us to slow down.
	KindRateLimited
	// KindServerError means the endpoint returned a 5xx or reported an
	// internal failure.
	KindServerError
	// KindTransportError means the request never produced a usable response.
	KindTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindTransportError:
		return "transport_error"
	}
	return "unknown"
}

// Outcome is the parsed result of one metadata query. Panorama fields are
// populated only for KindFound; RetryAfter only when the server sent one.
type Outcome struct {
	Kind       OutcomeKind
	PanoID     string
	Lat        float64
	Lng        float64
	Date       string
	Copyright  string
	RetryAfter time.Duration
	HTTPStatus int
	Err        error
}
