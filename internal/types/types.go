package types

// SBSRecord represents one decoded SBS (BaseStation) line.
//
// Optional numeric fields are nil when the raw field was empty. Flag fields
// are carried as the raw strings received from the feed.
type SBSRecord struct {
	MessageType      string
	TransmissionType string
	SessionID        string
	AircraftID       string
	HexIdent         string
	FlightID         string
	GeneratedDate    string
	GeneratedTime    string
	LoggedDate       string
	LoggedTime       string

	Callsign     *string
	Altitude     *int
	GroundSpeed  *float64
	Track        *float64
	Latitude     *float64
	Longitude    *float64
	VerticalRate *int

	Squawk     string
	Alert      string
	Emergency  string
	SPI        string
	IsOnGround string
}

// HasPosition reports whether both latitude and longitude are present
func (r *SBSRecord) HasPosition() bool {
	return r != nil && r.Latitude != nil && r.Longitude != nil
}
