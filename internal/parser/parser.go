package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/saviobatista/sbs2cot/internal/types"
)

// MinFields is the number of comma-separated fields an SBS line must carry
const MinFields = 22

// TransmissionType represents the MSG subtype of an SBS line
type TransmissionType int

const (
	// SBS MSG transmission types
	TransmissionIdentCategory TransmissionType = 1
	TransmissionSurfacePos    TransmissionType = 2
	TransmissionAirbornePos   TransmissionType = 3
	TransmissionAirborneVel   TransmissionType = 4
	TransmissionSurveilAlt    TransmissionType = 5
	TransmissionSurveilID     TransmissionType = 6
	TransmissionAirToAir      TransmissionType = 7
	TransmissionAllCallReply  TransmissionType = 8
)

var transmissionNames = map[TransmissionType]string{
	TransmissionIdentCategory: "ident_category",
	TransmissionSurfacePos:    "surface_position",
	TransmissionAirbornePos:   "airborne_position",
	TransmissionAirborneVel:   "airborne_velocity",
	TransmissionSurveilAlt:    "surveillance_altitude",
	TransmissionSurveilID:     "surveillance_id",
	TransmissionAirToAir:      "air_to_air",
	TransmissionAllCallReply:  "all_call_reply",
}

// String returns the metric label for the transmission type
func (t TransmissionType) String() string {
	if name, ok := transmissionNames[t]; ok {
		return name
	}
	return "unknown"
}

var (
	// ErrTooFewFields is returned for lines shorter than MinFields
	ErrTooFewFields = errors.New("too few fields")
	// ErrInvalidField is wrapped by errors for present but malformed numeric fields
	ErrInvalidField = errors.New("invalid field")
)

// field positions within an SBS line
const (
	idxMessageType = iota
	idxTransmissionType
	idxSessionID
	idxAircraftID
	idxHexIdent
	idxFlightID
	idxGeneratedDate
	idxGeneratedTime
	idxLoggedDate
	idxLoggedTime
	idxCallsign
	idxAltitude
	idxGroundSpeed
	idxTrack
	idxLatitude
	idxLongitude
	idxVerticalRate
	idxSquawk
	idxAlert
	idxEmergency
	idxSPI
	idxIsOnGround
)

// ParseRecord decodes one SBS line into a record.
//
// Every error means the line should be skipped; no partial record is ever
// returned alongside an error.
func ParseRecord(line string) (*types.SBSRecord, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < MinFields {
		return nil, fmt.Errorf("%w: expected at least %d, got %d", ErrTooFewFields, MinFields, len(fields))
	}

	record := &types.SBSRecord{
		MessageType:      fields[idxMessageType],
		TransmissionType: fields[idxTransmissionType],
		SessionID:        fields[idxSessionID],
		AircraftID:       fields[idxAircraftID],
		HexIdent:         fields[idxHexIdent],
		FlightID:         fields[idxFlightID],
		GeneratedDate:    fields[idxGeneratedDate],
		GeneratedTime:    fields[idxGeneratedTime],
		LoggedDate:       fields[idxLoggedDate],
		LoggedTime:       fields[idxLoggedTime],
		Squawk:           fields[idxSquawk],
		Alert:            fields[idxAlert],
		Emergency:        fields[idxEmergency],
		SPI:              fields[idxSPI],
		IsOnGround:       fields[idxIsOnGround],
	}

	if callsign := strings.TrimSpace(fields[idxCallsign]); callsign != "" {
		record.Callsign = &callsign
	}

	var err error
	if record.Altitude, err = optionalInt("altitude", fields[idxAltitude]); err != nil {
		return nil, err
	}
	if record.GroundSpeed, err = optionalFloat("ground_speed", fields[idxGroundSpeed]); err != nil {
		return nil, err
	}
	if record.Track, err = optionalFloat("track", fields[idxTrack]); err != nil {
		return nil, err
	}
	if record.Latitude, err = optionalFloat("latitude", fields[idxLatitude]); err != nil {
		return nil, err
	}
	if record.Longitude, err = optionalFloat("longitude", fields[idxLongitude]); err != nil {
		return nil, err
	}
	if record.VerticalRate, err = optionalInt("vertical_rate", fields[idxVerticalRate]); err != nil {
		return nil, err
	}

	return record, nil
}

// Transmission returns the numeric MSG subtype of a record, or 0 if it has none
func Transmission(record *types.SBSRecord) TransmissionType {
	if record == nil {
		return 0
	}
	n, err := strconv.Atoi(record.TransmissionType)
	if err != nil {
		return 0
	}
	return TransmissionType(n)
}

func optionalInt(name, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %s %q: %v", ErrInvalidField, name, raw, err)
	}
	return &v, nil
}

func optionalFloat(name, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w %s %q: %v", ErrInvalidField, name, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w %s %q: not a finite number", ErrInvalidField, name, raw)
	}
	return &v, nil
}
