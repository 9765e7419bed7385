package oracle

import (
	"encoding/xml"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// OJPRequestBuilder renders the trip request the reference deployment's
// remote journey planner expects. Grounded on
// original_source/backend/app/requests/build_request.py's
// create_trip_request: a fixed template with placeholder substitution,
// reimplemented with strings.Replacer instead of a file-based XML template
// since this module has no template-loading concern to carry over.
type OJPRequestBuilder struct {
	ModeXML func(mode types.Mode) string
}

func (b OJPRequestBuilder) BuildTripRequest(origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time, fullTrip bool) []byte {
	modeXML := modeIndividualTag(mode)
	if b.ModeXML != nil {
		modeXML = b.ModeXML(mode)
	}
	replacer := strings.NewReplacer(
		"${timestamp}", timestamp.UTC().Format(time.RFC3339),
		"${origin_lon}", strconv.FormatFloat(origin[0], 'f', 6, 64),
		"${origin_lat}", strconv.FormatFloat(origin[1], 'f', 6, 64),
		"${dest_lon}", strconv.FormatFloat(destination[0], 'f', 6, 64),
		"${dest_lat}", strconv.FormatFloat(destination[1], 'f', 6, 64),
		"${arrival_time}", arriveBy.UTC().Format(time.RFC3339),
		"${mode}", modeXML,
	)
	return []byte(replacer.Replace(tripRequestTemplate))
}

const tripRequestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<OJP xmlns="http://www.vdv.de/ojp" version="1.0">
  <OJPRequest>
    <ServiceRequest>
      <RequestTimestamp>${timestamp}</RequestTimestamp>
      <ojp:OJPTripRequest>
        <ojp:Origin><ojp:PlaceRef><ojp:GeoPosition><ojp:Longitude>${origin_lon}</ojp:Longitude><ojp:Latitude>${origin_lat}</ojp:Latitude></ojp:GeoPosition></ojp:PlaceRef></ojp:Origin>
        <ojp:Destination><ojp:PlaceRef><ojp:GeoPosition><ojp:Longitude>${dest_lon}</ojp:Longitude><ojp:Latitude>${dest_lat}</ojp:Latitude></ojp:GeoPosition></ojp:PlaceRef></ojp:Destination>
        <ojp:Params><ojp:IndividualTransportMode>${mode}</ojp:IndividualTransportMode></ojp:Params>
        <ojp:ArrivalTime>${arrival_time}</ojp:ArrivalTime>
      </ojp:OJPTripRequest>
    </ServiceRequest>
  </OJPRequest>
</OJP>`

// tripResponse is a trimmed view of the ServiceDelivery XML shape used by
// parse_trip_response in the original; only the fields this module needs
// are modeled.
type tripResponse struct {
	XMLName xml.Name `xml:"OJP"`
	Results []struct {
		Trip struct {
			Duration string `xml:"Duration"`
		} `xml:"Trip"`
		Legs []struct {
			IndividualMode string `xml:"IndividualMode"`
			PtMode         string `xml:"PtMode"`
			LegBoard       struct {
				StopPointName string `xml:"StopPointName>Text"`
			} `xml:"LegBoard"`
			LegAlight struct {
				StopPointName string `xml:"StopPointName>Text"`
			} `xml:"LegAlight"`
		} `xml:"TripLeg"`
	} `xml:"OJPResponse>ServiceDelivery>OJPTripDelivery>TripResult"`
}

// OJPResponseParser extracts duration/used-modes/station-names from the
// remote's XML response, mirroring
// original_source/backend/app/requests/parse_response.py's
// check_trip_response + parse_trip_response + decode_duration.
type OJPResponseParser struct{}

var durationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// decodeDuration parses an ISO-8601 "PTnHnMnS" duration into minutes
// (spec.md §4.2, §8.6 round-trip property).
func decodeDuration(s string) (float64, bool) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(zeroIfEmpty(m[1]))
	minutes, _ := strconv.Atoi(zeroIfEmpty(m[2]))
	seconds, _ := strconv.Atoi(zeroIfEmpty(m[3]))
	return float64(hours)*60 + float64(minutes) + float64(seconds)/60.0, true
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (OJPResponseParser) ParseTripResponse(body []byte, status int, mode types.Mode, fullTrip bool) (FullTrip, error) {
	if status != 200 {
		return FullTrip{}, types.ErrTransport
	}

	text := string(body)
	switch {
	case strings.Contains(text, "TRIP_ORIGINDESTINATIONIDENTICAL"):
		return FullTrip{DurationMin: 0}, nil
	case strings.Contains(text, "TRIP_NOTRIPFOUND"):
		return FullTrip{}, types.ErrNoTrip
	case !strings.Contains(text, "ServiceDelivery") && !strings.Contains(text, "TripResult"):
		return FullTrip{}, types.ErrTransport
	}

	var parsed tripResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return FullTrip{}, types.ErrTransport
	}

	modeTag := modeIndividualTag(mode)
	for _, result := range parsed.Results {
		usedModes := map[string]struct{}{}
		var stationNames []string
		includesTarget := false
		for _, leg := range result.Legs {
			if leg.IndividualMode != "" {
				usedModes[leg.IndividualMode] = struct{}{}
				if leg.IndividualMode == modeTag {
					includesTarget = true
				}
			} else if leg.PtMode != "" {
				usedModes[leg.PtMode] = struct{}{}
			}
			for _, name := range []string{leg.LegBoard.StopPointName, leg.LegAlight.StopPointName} {
				if name != "" && !contains(stationNames, name) {
					stationNames = append(stationNames, name)
				}
			}
		}
		if !fullTrip || includesTarget {
			minutes, ok := decodeDuration(result.Trip.Duration)
			if !ok {
				continue
			}
			modes := make([]string, 0, len(usedModes))
			for mt := range usedModes {
				modes = append(modes, mt)
			}
			sort.Strings(modes)
			return FullTrip{DurationMin: minutes, UsedModes: modes, StationNames: stationNames}, nil
		}
	}
	return FullTrip{}, types.ErrNoTrip
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

// modeIndividualTag maps the internal ride mode to the wire dialect's
// IndividualMode tag.
func modeIndividualTag(mode types.Mode) string {
	switch mode {
	case types.ModeWalk:
		return "walk"
	case types.ModeCycle, types.ModeBicycleRental:
		return "cycle"
	case types.ModeSelfDriveCar, types.ModeCarSharing:
		return "car"
	case types.ModeEscooterRental:
		return "cycle"
	default:
		return string(mode)
	}
}
