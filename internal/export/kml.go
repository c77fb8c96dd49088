// Package export writes flight snapshots in formats mapping tools can open.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"flight_tracker/internal/storage"
)

// KML structures for XML marshalling, following KML 2.2:
// https://developers.google.com/kml/documentation/kmlreference

type kmlRoot struct {
	XMLName   xml.Name    `xml:"kml"`
	Namespace string      `xml:"xmlns,attr"`
	Document  kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description,omitempty"`
	Styles      []kmlStyle     `xml:"Style,omitempty"`
	Placemarks  []kmlPlacemark `xml:"Placemark"`
}

type kmlStyle struct {
	ID        string       `xml:"id,attr"`
	IconStyle kmlIconStyle `xml:"IconStyle"`
}

type kmlIconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  kmlIcon `xml:"Icon"`
}

type kmlIcon struct {
	Href string `xml:"href"`
}

type kmlPlacemark struct {
	Name         string           `xml:"name"`
	Description  string           `xml:"description,omitempty"`
	TimeStamp    *kmlTimeStamp    `xml:"TimeStamp,omitempty"`
	StyleURL     string           `xml:"styleUrl,omitempty"`
	Point        kmlPoint         `xml:"Point"`
	ExtendedData *kmlExtendedData `xml:"ExtendedData,omitempty"`
}

type kmlTimeStamp struct {
	When string `xml:"when"`
}

type kmlPoint struct {
	AltitudeMode string `xml:"altitudeMode,omitempty"`
	Coordinates  string `xml:"coordinates"` // lon,lat,altitude
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// WriteKML writes one placemark per flight with a known position. Flights
// without both coordinates are skipped. It returns the number written.
func WriteKML(w io.Writer, flights []storage.Flight) (int, error) {
	placemarks := make([]kmlPlacemark, 0, len(flights))
	for _, f := range flights {
		if !f.HasPosition() {
			continue
		}
		placemarks = append(placemarks, flightPlacemark(f))
	}

	doc := kmlRoot{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: kmlDocument{
			Name:        "Current flight positions",
			Description: fmt.Sprintf("%d aircraft with a known position.", len(placemarks)),
			Styles: []kmlStyle{
				{
					ID: "aircraftStyle",
					IconStyle: kmlIconStyle{
						Scale: 1.0,
						Icon:  kmlIcon{Href: "http://maps.google.com/mapfiles/kml/shapes/airports.png"},
					},
				},
			},
			Placemarks: placemarks,
		},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return 0, err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return 0, fmt.Errorf("encode kml: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return 0, err
	}
	return len(placemarks), nil
}

func flightPlacemark(f storage.Flight) kmlPlacemark {
	callsign := Callsign(f)
	name := f.FlightID
	if callsign != "" {
		name = callsign + " (" + f.FlightID + ")"
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Altitude: %.0f m", f.Altitude)
	if f.Speed != nil {
		fmt.Fprintf(&desc, "\nSpeed: %.1f m/s", *f.Speed)
	}
	if f.Heading != nil {
		fmt.Fprintf(&desc, "\nHeading: %.0f°", *f.Heading)
	}
	fmt.Fprintf(&desc, "\nLast seen: %s", f.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))

	data := []kmlData{
		{Name: "flight_id", Value: f.FlightID},
		{Name: "altitude", Value: formatFloat(f.Altitude)},
		{Name: "speed", Value: formatOptional(f.Speed)},
		{Name: "heading", Value: formatOptional(f.Heading)},
	}
	if callsign != "" {
		data = append(data, kmlData{Name: "callsign", Value: callsign})
	}

	return kmlPlacemark{
		Name:        name,
		Description: desc.String(),
		TimeStamp:   &kmlTimeStamp{When: f.Timestamp.UTC().Format(time.RFC3339)},
		StyleURL:    "#aircraftStyle",
		Point: kmlPoint{
			AltitudeMode: "absolute",
			Coordinates:  fmt.Sprintf("%.6f,%.6f,%.1f", *f.Longitude, *f.Latitude, f.Altitude),
		},
		ExtendedData: &kmlExtendedData{Data: data},
	}
}
