// Package statevector decodes aircraft state vectors delivered as positional JSON arrays
// and normalises them into storage.Flight records.
//
// The field order is the OpenSky Network /states/all contract. It lives in FieldNames
// and nowhere else; the Idx constants are positions into that table.
package statevector

// FieldNames lists the state vector fields in array order.
var FieldNames = [...]string{
	"icao24",
	"callsign",
	"origin_country",
	"time_position",
	"last_contact",
	"longitude",
	"latitude",
	"baro_altitude",
	"on_ground",
	"velocity",
	"true_track",
	"vertical_rate",
	"sensors",
	"geo_altitude",
	"squawk",
	"spi",
	"position_source",
}

// Positions of the fields the normaliser reads.
const (
	IdxICAO24 = iota
	IdxCallsign
	IdxOriginCountry
	IdxTimePosition
	IdxLastContact
	IdxLongitude
	IdxLatitude
	IdxBaroAltitude
	IdxOnGround
	IdxVelocity
	IdxTrueTrack
	IdxVerticalRate
	IdxSensors
	IdxGeoAltitude
	IdxSquawk
	IdxSPI
	IdxPositionSource
)

// Record is one raw state vector. Values are whatever the JSON decoder produced
// (json.Number, string, bool, nil, []any ...).
type Record []any

// Named pairs each value with its documented field name. Records shorter than
// FieldNames only populate the names they have values for; extra trailing values
// are ignored.
func (r Record) Named() map[string]any {
	n := min(len(FieldNames), len(r))
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		out[FieldNames[i]] = r[i]
	}
	return out
}
