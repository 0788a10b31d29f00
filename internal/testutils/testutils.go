package testutils

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RoundTripLine is a complete MSG,3 airborne position line
const RoundTripLine = "MSG,3,1,1,ABC123,1,2024/01/01,00:00:00.000,2024/01/01,00:00:00.000,TEST1,10000,250,90,40.0,-74.0,0,7000,0,0,0,0"

// MockSBSLine creates a 22-field MSG line for testing. Empty strings leave
// the corresponding numeric field blank.
func MockSBSLine(transmission int, hexIdent, altitude, groundSpeed, track, lat, lon string) string {
	fields := []string{
		"MSG", fmt.Sprintf("%d", transmission), "1", "1", hexIdent, "1",
		"2024/01/01", "00:00:00.000", "2024/01/01", "00:00:00.000",
		"MOCK1",
		altitude, groundSpeed, track, lat, lon,
		"0", "7000", "0", "0", "0", "0",
	}
	return strings.Join(fields, ",")
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
