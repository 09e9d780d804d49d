package marketplace

// The upstream API shape is not fixed: paths and auth schemes have shifted
// between releases. Each operation category carries an ordered candidate
// table; the first candidate that produces a decisive response is memoized
// for the lifetime of the client and never re-probed.

type Category int

const (
	OpWarehouses Category = iota
	OpSlots
	OpBooking
	OpBooked
)

func (c Category) String() string {
	switch c {
	case OpWarehouses:
		return "warehouses"
	case OpSlots:
		return "slots"
	case OpBooking:
		return "booking"
	case OpBooked:
		return "booked"
	}
	return "unknown"
}

type AuthScheme int

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthScheme = iota
	// AuthRawHeader sends the key as the bare Authorization header value.
	AuthRawHeader
	// AuthHeaderKey sends the key in X-Api-Key.
	AuthHeaderKey
)

type Candidate struct {
	Auth AuthScheme
	Path string
}

func DefaultCandidates() map[Category][]Candidate {
	return map[Category][]Candidate{
		OpWarehouses: {
			{AuthBearer, "/api/v1/warehouses"},
			{AuthRawHeader, "/api/v1/warehouses"},
			{AuthBearer, "/api/v3/warehouses"},
			{AuthHeaderKey, "/api/v1/warehouses"},
		},
		OpSlots: {
			{AuthBearer, "/api/v1/supply/slots"},
			{AuthRawHeader, "/api/v1/supply/slots"},
			{AuthBearer, "/api/v1/acceptance/coefficients"},
		},
		OpBooking: {
			{AuthBearer, "/api/v1/supply/book"},
			{AuthRawHeader, "/api/v1/supply/book"},
		},
		OpBooked: {
			{AuthBearer, "/api/v1/supply/booked"},
			{AuthRawHeader, "/api/v1/supply/booked"},
		},
	}
}
