package storage

import (
	"fmt"
	"time"
)

// Flight is the current known position of one aircraft. FlightID is unique
// across the table.
type Flight struct {
	FlightID            string         `json:"flight_id"`
	Latitude            *float64       `json:"latitude"`
	Longitude           *float64       `json:"longitude"`
	Altitude            float64        `json:"altitude"`
	Speed               *float64       `json:"speed"`
	Heading             *float64       `json:"heading"`
	Timestamp           time.Time      `json:"timestamp"`
	RawData             map[string]any `json:"raw_data"`
	LastUpdatedBySystem time.Time      `json:"last_updated_by_system"`
}

// HasPosition returns true if both coordinates are known.
func (f *Flight) HasPosition() bool {
	return f.Latitude != nil && f.Longitude != nil
}

func (f Flight) String() string {
	return fmt.Sprintf("Flight %s - %s", f.FlightID, f.Timestamp.UTC().Format("2006-01-02 15:04:05"))
}
