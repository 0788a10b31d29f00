package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/saviobatista/sbs2cot/internal/testutils"
)

func TestParseRecord_RoundTripLine(t *testing.T) {
	record, err := ParseRecord(testutils.RoundTripLine)
	if err != nil {
		t.Fatalf("ParseRecord() unexpected error: %v", err)
	}

	if record.HexIdent != "ABC123" {
		t.Errorf("HexIdent = %v, want ABC123", record.HexIdent)
	}
	if record.Altitude == nil || *record.Altitude != 10000 {
		t.Errorf("Altitude = %v, want 10000", record.Altitude)
	}
	if record.GroundSpeed == nil || *record.GroundSpeed != 250.0 {
		t.Errorf("GroundSpeed = %v, want 250.0", record.GroundSpeed)
	}
	if record.Track == nil || *record.Track != 90.0 {
		t.Errorf("Track = %v, want 90.0", record.Track)
	}
	if record.Latitude == nil || *record.Latitude != 40.0 {
		t.Errorf("Latitude = %v, want 40.0", record.Latitude)
	}
	if record.Longitude == nil || *record.Longitude != -74.0 {
		t.Errorf("Longitude = %v, want -74.0", record.Longitude)
	}
	if record.VerticalRate == nil || *record.VerticalRate != 0 {
		t.Errorf("VerticalRate = %v, want 0", record.VerticalRate)
	}
	if record.Callsign == nil || *record.Callsign != "TEST1" {
		t.Errorf("Callsign = %v, want TEST1", record.Callsign)
	}
	if record.MessageType != "MSG" || record.TransmissionType != "3" {
		t.Errorf("MessageType/TransmissionType = %s/%s, want MSG/3", record.MessageType, record.TransmissionType)
	}
	if record.Squawk != "7000" {
		t.Errorf("Squawk = %v, want 7000", record.Squawk)
	}
	if record.GeneratedDate != "2024/01/01" || record.LoggedTime != "00:00:00.000" {
		t.Errorf("date/time fields not passed through: %s %s", record.GeneratedDate, record.LoggedTime)
	}
}

func TestParseRecord_TooFewFields(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "empty", line: ""},
		{name: "ten fields", line: "MSG,3,1,1,ABC123,1,2024/01/01,00:00:00.000,2024/01/01,00:00:00.000"},
		{name: "twenty one fields", line: strings.Join(strings.Split(testutils.RoundTripLine, ",")[:21], ",")},
		{name: "garbage", line: "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseRecord(tt.line)
			if record != nil {
				t.Errorf("ParseRecord() returned record for short line: %+v", record)
			}
			if !errors.Is(err, ErrTooFewFields) {
				t.Errorf("ParseRecord() error = %v, want ErrTooFewFields", err)
			}
		})
	}
}

func TestParseRecord_OptionalFieldsPresence(t *testing.T) {
	tests := []struct {
		name                           string
		altitude, speed, track, la, lo string
	}{
		{name: "all present", altitude: "35000", speed: "450.5", track: "180", la: "40.7128", lo: "-74.006"},
		{name: "all blank", altitude: "", speed: "", track: "", la: "", lo: ""},
		{name: "blank latitude", altitude: "10000", speed: "250", track: "90", la: "", lo: "-74.0"},
		{name: "only position", altitude: "", speed: "", track: "", la: "51.5", lo: "-0.12"},
		{name: "zero values", altitude: "0", speed: "0", track: "0", la: "0", lo: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := testutils.MockSBSLine(3, "ABC123", tt.altitude, tt.speed, tt.track, tt.la, tt.lo)
			record, err := ParseRecord(line)
			if err != nil {
				t.Fatalf("ParseRecord() unexpected error: %v", err)
			}

			checkPresence(t, "altitude", tt.altitude, record.Altitude != nil)
			checkPresence(t, "ground_speed", tt.speed, record.GroundSpeed != nil)
			checkPresence(t, "track", tt.track, record.Track != nil)
			checkPresence(t, "latitude", tt.la, record.Latitude != nil)
			checkPresence(t, "longitude", tt.lo, record.Longitude != nil)

			if tt.la == "51.5" && *record.Latitude != 51.5 {
				t.Errorf("Latitude = %v, want 51.5", *record.Latitude)
			}
			if tt.speed == "450.5" && *record.GroundSpeed != 450.5 {
				t.Errorf("GroundSpeed = %v, want 450.5", *record.GroundSpeed)
			}
		})
	}
}

func checkPresence(t *testing.T, name, raw string, present bool) {
	t.Helper()
	if (raw != "") != present {
		t.Errorf("%s present = %v, raw field %q", name, present, raw)
	}
}

func TestParseRecord_InvalidNumericField(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field string
	}{
		{
			name:  "altitude not integer",
			line:  testutils.MockSBSLine(3, "ABC123", "10000.5", "250", "90", "40.0", "-74.0"),
			field: "altitude",
		},
		{
			name:  "speed garbage",
			line:  testutils.MockSBSLine(3, "ABC123", "10000", "fast", "90", "40.0", "-74.0"),
			field: "ground_speed",
		},
		{
			name:  "latitude garbage",
			line:  testutils.MockSBSLine(3, "ABC123", "10000", "250", "90", "north", "-74.0"),
			field: "latitude",
		},
		{
			name:  "longitude NaN",
			line:  testutils.MockSBSLine(3, "ABC123", "10000", "250", "90", "40.0", "NaN"),
			field: "longitude",
		},
		{
			name:  "track infinite",
			line:  testutils.MockSBSLine(3, "ABC123", "10000", "250", "Inf", "40.0", "-74.0"),
			field: "track",
		},
		{
			name:  "vertical rate garbage",
			line:  "MSG,3,1,1,ABC123,1,2024/01/01,00:00:00.000,2024/01/01,00:00:00.000,TEST1,10000,250,90,40.0,-74.0,up,7000,0,0,0,0",
			field: "vertical_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseRecord(tt.line)
			if record != nil {
				t.Errorf("ParseRecord() returned partial record: %+v", record)
			}
			if !errors.Is(err, ErrInvalidField) {
				t.Fatalf("ParseRecord() error = %v, want ErrInvalidField", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should name field %s", err, tt.field)
			}
		})
	}
}

func TestParseRecord_Callsign(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{name: "trimmed", raw: "  FAKE123 ", want: ptr("FAKE123")},
		{name: "blank", raw: "   ", want: nil},
		{name: "empty", raw: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := "MSG,1,1,1,ABC123,1,2024/01/01,00:00:00.000,2024/01/01,00:00:00.000," + tt.raw + ",,,,,,,,,,,"
			record, err := ParseRecord(line)
			if err != nil {
				t.Fatalf("ParseRecord() unexpected error: %v", err)
			}
			switch {
			case tt.want == nil && record.Callsign != nil:
				t.Errorf("Callsign = %q, want absent", *record.Callsign)
			case tt.want != nil && (record.Callsign == nil || *record.Callsign != *tt.want):
				t.Errorf("Callsign = %v, want %q", record.Callsign, *tt.want)
			}
		})
	}
}

func TestParseRecord_TrailingCarriageReturn(t *testing.T) {
	record, err := ParseRecord(testutils.RoundTripLine + "\r\n")
	if err != nil {
		t.Fatalf("ParseRecord() unexpected error: %v", err)
	}
	if record.IsOnGround != "0" {
		t.Errorf("IsOnGround = %q, want \"0\"", record.IsOnGround)
	}
}

func TestParseRecord_ExtraFieldsIgnored(t *testing.T) {
	record, err := ParseRecord(testutils.RoundTripLine + ",extra,fields")
	if err != nil {
		t.Fatalf("ParseRecord() unexpected error: %v", err)
	}
	if record.HexIdent != "ABC123" {
		t.Errorf("HexIdent = %v, want ABC123", record.HexIdent)
	}
}

func TestTransmission(t *testing.T) {
	record, err := ParseRecord(testutils.RoundTripLine)
	if err != nil {
		t.Fatalf("ParseRecord() unexpected error: %v", err)
	}
	if got := Transmission(record); got != TransmissionAirbornePos {
		t.Errorf("Transmission() = %d, want %d", got, TransmissionAirbornePos)
	}
	if got := Transmission(nil); got != 0 {
		t.Errorf("Transmission(nil) = %d, want 0", got)
	}
}

func ptr(s string) *string { return &s }

func TestTransmissionType_String(t *testing.T) {
	tests := []struct {
		transmission TransmissionType
		want         string
	}{
		{TransmissionIdentCategory, "ident_category"},
		{TransmissionSurfacePos, "surface_position"},
		{TransmissionAirbornePos, "airborne_position"},
		{TransmissionAirborneVel, "airborne_velocity"},
		{TransmissionSurveilAlt, "surveillance_altitude"},
		{TransmissionSurveilID, "surveillance_id"},
		{TransmissionAirToAir, "air_to_air"},
		{TransmissionAllCallReply, "all_call_reply"},
		{0, "unknown"},
		{9, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.transmission.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
