package domain

// Station is a monitoring station with the coordinates used for archive lookups.
type Station struct {
	OriginalID string `validate:"required,excludesall=/\\"` // used verbatim in artifact file names
	Latitude   string `validate:"required,latitude"`
	Longitude  string `validate:"required,longitude"`

	// Reconciliation details, carried through when the roster has them.
	MatchedStationID       string
	Number                 string
	InternationalStationID string
}
