// Package cot builds Cursor-on-Target events from decoded SBS records.
package cot

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/saviobatista/sbs2cot/internal/types"
)

const (
	// Version is the CoT schema version emitted on every event
	Version = "2.0"
	// TypeFriendlyAir classifies a point as a friendly airborne track
	TypeFriendlyAir = "a-f-A"
	// HowMachineGenerated marks the event as generated by measurement
	HowMachineGenerated = "m-g"
	// UIDPrefix is prepended to the ICAO address to form the event uid
	UIDPrefix = "ICAO-"
	// StaleAfter is how long a consumer should trust a reported position
	StaleAfter = 60 * time.Second
	// UnknownError is used for ce and le; SBS carries no accuracy estimate
	UnknownError = 9999999
	// TimeLayout is ISO-8601 UTC with seconds precision
	TimeLayout = "2006-01-02T15:04:05Z"

	// FeetToMeters converts altitude to height above ellipsoid
	FeetToMeters = 0.3048
	// KnotsToMetersPerSecond converts ground speed to track speed
	KnotsToMetersPerSecond = 0.514444

	unknownAltitude = "Unknown"
	header          = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
)

var (
	// ErrMissingIdent is returned for records without an ICAO address
	ErrMissingIdent = errors.New("record has no hex ident")
	// ErrMissingPosition is returned for records without latitude and longitude
	ErrMissingPosition = errors.New("record has no position")
)

// Decimal is a float rendered in plain decimal notation inside attributes
type Decimal float64

// MarshalXMLAttr implements xml.MarshalerAttr
func (d Decimal) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: strconv.FormatFloat(float64(d), 'f', -1, 64)}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr
func (d *Decimal) UnmarshalXMLAttr(attr xml.Attr) error {
	v, err := strconv.ParseFloat(attr.Value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", attr.Name.Local, err)
	}
	*d = Decimal(v)
	return nil
}

// Event is a CoT event carrying one track update
type Event struct {
	XMLName xml.Name `xml:"event"`
	Version string   `xml:"version,attr"`
	UID     string   `xml:"uid,attr"`
	Type    string   `xml:"type,attr"`
	How     string   `xml:"how,attr"`
	Time    string   `xml:"time,attr"`
	Start   string   `xml:"start,attr"`
	Stale   string   `xml:"stale,attr"`
	Point   Point    `xml:"point"`
	Detail  Detail   `xml:"detail"`
}

// Point is the geodetic position of an event
type Point struct {
	Lat Decimal `xml:"lat,attr"`
	Lon Decimal `xml:"lon,attr"`
	Hae Decimal `xml:"hae,attr"`
	CE  Decimal `xml:"ce,attr"`
	LE  Decimal `xml:"le,attr"`
}

// Detail holds the contact label and kinematics
type Detail struct {
	Contact Contact `xml:"contact"`
	Track   Track   `xml:"track"`
}

// Contact is the display label of the track
type Contact struct {
	Callsign string `xml:"callsign,attr"`
}

// Track carries course in degrees and speed in meters per second
type Track struct {
	Course Decimal `xml:"course,attr"`
	Speed  Decimal `xml:"speed,attr"`
}

// Build maps a record to an event stamped at now.
//
// It declines with ErrMissingIdent or ErrMissingPosition when the record
// cannot place an aircraft.
func Build(record *types.SBSRecord, now time.Time) (*Event, error) {
	if record == nil || record.HexIdent == "" {
		return nil, ErrMissingIdent
	}
	if !record.HasPosition() {
		return nil, ErrMissingPosition
	}

	now = now.UTC()
	stamp := now.Format(TimeLayout)

	var hae, course, speed float64
	altitude := unknownAltitude
	if record.Altitude != nil {
		hae = float64(*record.Altitude) * FeetToMeters
		altitude = strconv.Itoa(*record.Altitude)
	}
	if record.Track != nil {
		course = *record.Track
	}
	if record.GroundSpeed != nil {
		speed = *record.GroundSpeed * KnotsToMetersPerSecond
	}

	return &Event{
		Version: Version,
		UID:     UIDPrefix + record.HexIdent,
		Type:    TypeFriendlyAir,
		How:     HowMachineGenerated,
		Time:    stamp,
		Start:   stamp,
		Stale:   now.Add(StaleAfter).Format(TimeLayout),
		Point: Point{
			Lat: Decimal(*record.Latitude),
			Lon: Decimal(*record.Longitude),
			Hae: Decimal(hae),
			CE:  UnknownError,
			LE:  UnknownError,
		},
		Detail: Detail{
			Contact: Contact{Callsign: fmt.Sprintf("%s Alt:%sft", record.HexIdent, altitude)},
			Track:   Track{Course: Decimal(course), Speed: Decimal(speed)},
		},
	}, nil
}

// Marshal encodes the event as a standalone UTF-8 XML document
func (e *Event) Marshal() ([]byte, error) {
	body, err := xml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.UID, err)
	}
	return append([]byte(header), body...), nil
}

// Parse decodes a CoT event document
func Parse(data []byte) (*Event, error) {
	var event Event
	if err := xml.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	return &event, nil
}
