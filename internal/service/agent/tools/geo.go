package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

type location struct {
	name            string
	searchPatterns  []string
	locationType    string
	description     string
	related         []string
	coordinatesHint string
}

// austinLocations maps lowercase location keys to trip-search guidance. The
// search patterns are SQL LIKE fragments matching the address columns.
var austinLocations = map[string]location{
	"moody center": {
		name:            "Moody Center",
		searchPatterns:  []string{"%Moody%", "%Moody Center%", "%Robert Dedman%"},
		locationType:    "venue",
		description:     "Moody Center - Major UT Austin venue and arena on Robert Dedman Drive",
		related:         []string{"UT Campus", "West Campus", "University areas"},
		coordinatesHint: "30.28, -97.73 (UT Campus area)",
	},
	"ut": {
		name:            "UT Campus",
		searchPatterns:  []string{"%University%", "%Campus%", "%UT%", "%Texas%"},
		locationType:    "campus",
		description:     "University of Texas at Austin - Main campus and surrounding areas",
		related:         []string{"West Campus", "The Drag", "Guadalupe Street"},
		coordinatesHint: "30.28, -97.73",
	},
	"state capitol": {
		name:            "State Capitol",
		searchPatterns:  []string{"%Capitol%", "%Congress Ave%"},
		locationType:    "landmark",
		description:     "Texas State Capitol - Downtown government complex",
		related:         []string{"Downtown", "Congress Avenue", "Capitol Complex"},
		coordinatesHint: "30.27, -97.74 (Downtown)",
	},
	"convention center": {
		name:            "Convention Center",
		searchPatterns:  []string{"%Convention%", "%Cesar Chavez%"},
		locationType:    "venue",
		description:     "Austin Convention Center - Major downtown events venue",
		related:         []string{"Downtown", "Lady Bird Lake", "2nd Street"},
		coordinatesHint: "30.26, -97.74 (Downtown)",
	},
	"6th street": {
		name:            "6th Street",
		searchPatterns:  []string{"%6th St%", "%East 6th%", "%West 6th%", "%Sixth St%"},
		locationType:    "entertainment district",
		description:     "6th Street - Historic entertainment district with bars and live music",
		related:         []string{"Downtown", "Red River District", "Rainey Street"},
		coordinatesHint: "30.27, -97.74 (Downtown)",
	},
	"rainey street": {
		name:            "Rainey Street",
		searchPatterns:  []string{"%Rainey%", "%Rainey St%"},
		locationType:    "entertainment district",
		description:     "Rainey Street - Trendy bar district with converted house bars near downtown",
		related:         []string{"Downtown", "6th Street", "Lady Bird Lake"},
		coordinatesHint: "30.26, -97.74 (Downtown/Lady Bird Lake)",
	},
	"south congress": {
		name:            "South Congress",
		searchPatterns:  []string{"%South Congress%", "%SoCo%"},
		locationType:    "shopping district",
		description:     "South Congress - Iconic shopping and dining strip south of the river",
		related:         []string{"South Austin", "Downtown", "Lady Bird Lake"},
		coordinatesHint: "30.25, -97.75",
	},
	"the drag": {
		name:            "The Drag",
		searchPatterns:  []string{"%Guadalupe%", "%The Drag%"},
		locationType:    "shopping district",
		description:     "The Drag (Guadalupe Street) - Main strip near UT campus with student businesses",
		related:         []string{"UT Campus", "West Campus", "University area"},
		coordinatesHint: "30.28, -97.74",
	},
	"east austin": {
		name:            "East Austin",
		searchPatterns:  []string{"%East Austin%", "%78702%"},
		locationType:    "neighborhood",
		description:     "East Austin - Hip, trendy neighborhood east of I-35 with food trucks and bars",
		related:         []string{"Central East Austin", "East Cesar Chavez", "Red River District"},
		coordinatesHint: "30.26-30.29, -97.71-97.73",
	},
	"west campus": {
		name:            "West Campus",
		searchPatterns:  []string{"%West Campus%", "%78705%"},
		locationType:    "neighborhood",
		description:     "West Campus - Student housing area west of UT campus",
		related:         []string{"UT Campus", "The Drag", "University area"},
		coordinatesHint: "30.28-30.29, -97.74-97.75",
	},
	"downtown": {
		name:            "Downtown",
		searchPatterns:  []string{"%Downtown%", "%78701%"},
		locationType:    "neighborhood",
		description:     "Downtown Austin - Central business district with offices, hotels, and entertainment",
		related:         []string{"6th Street", "Rainey Street", "Lady Bird Lake", "State Capitol"},
		coordinatesHint: "30.26-30.27, -97.74-97.75",
	},
	"south austin": {
		name:            "South Austin",
		searchPatterns:  []string{"%South Austin%", "%78704%", "%78748%"},
		locationType:    "neighborhood",
		description:     "South Austin - 'Keep Austin Weird' area with eclectic culture and food scene",
		related:         []string{"South Congress", "Barton Springs", "Zilker Park"},
		coordinatesHint: "30.22-30.26, -97.74-97.78",
	},
	"north austin": {
		name:            "North Austin",
		searchPatterns:  []string{"%North Austin%", "%78751%", "%78756%"},
		locationType:    "neighborhood",
		description:     "North Austin - Residential areas north of the river with family neighborhoods",
		related:         []string{"Hancock", "Hyde Park", "University Hills"},
		coordinatesHint: "30.30-30.35, -97.72-97.76",
	},
	"lady bird lake": {
		name:            "Lady Bird Lake",
		searchPatterns:  []string{"%Lady Bird%", "%Town Lake%", "%Auditorium Shores%"},
		locationType:    "landmark",
		description:     "Lady Bird Lake - Central Austin lake with trails and recreational activities",
		related:         []string{"Downtown", "South Austin", "Zilker Park"},
		coordinatesHint: "30.26, -97.74 (Central Austin)",
	},
	"zilker park": {
		name:            "Zilker Park",
		searchPatterns:  []string{"%Zilker%", "%ACL%", "%Austin City Limits%"},
		locationType:    "park",
		description:     "Zilker Park - Major park hosting ACL Music Festival and other events",
		related:         []string{"South Austin", "Barton Springs", "Lady Bird Lake"},
		coordinatesHint: "30.26, -97.77 (South Central)",
	},
	"barton springs": {
		name:            "Barton Springs",
		searchPatterns:  []string{"%Barton Springs%", "%Barton%"},
		locationType:    "landmark",
		description:     "Barton Springs - Natural spring-fed pool and popular swimming spot",
		related:         []string{"Zilker Park", "South Austin", "Lady Bird Lake"},
		coordinatesHint: "30.26, -97.77",
	},
}

// locationSynonyms maps loose phrasing to canonical location keys.
var locationSynonyms = map[string]string{
	"university": "ut",
	"campus":     "ut",
	"moody":      "moody center",
	"sixth":      "6th street",
	"soco":       "south congress",
	"east side":  "east austin",
}

type austinArea struct {
	name           string
	latMin, latMax float64
	lngMin, lngMax float64
	description    string
}

// austinAreas bounds the major Austin areas for coordinate classification.
var austinAreas = []austinArea{
	{"UT Campus", 30.28, 30.29, -97.74, -97.73, "University of Texas at Austin campus area"},
	{"Downtown", 30.26, 30.27, -97.75, -97.74, "Downtown Austin business district"},
	{"West Campus", 30.28, 30.29, -97.75, -97.74, "Student housing area west of UT"},
	{"East Austin", 30.26, 30.29, -97.73, -97.71, "Hip neighborhood east of I-35"},
	{"South Austin", 30.22, 30.26, -97.78, -97.74, "Eclectic 'Keep Austin Weird' area"},
	{"North Austin", 30.30, 30.35, -97.76, -97.72, "Residential areas north of the river"},
	{"Lady Bird Lake", 30.25, 30.27, -97.75, -97.74, "Central Austin lake with trails"},
	{"Zilker Park", 30.26, 30.27, -97.78, -97.76, "Major park hosting ACL Festival"},
	{"6th Street", 30.27, 30.28, -97.75, -97.74, "Historic entertainment district"},
	{"Rainey Street", 30.26, 30.27, -97.75, -97.74, "Trendy bar district"},
	{"South Congress", 30.25, 30.27, -97.76, -97.74, "Iconic shopping and dining strip"},
	{"Moody Center", 30.28, 30.29, -97.74, -97.73, "UT Austin venue and arena"},
	{"State Capitol", 30.27, 30.28, -97.75, -97.74, "Texas State Capitol building"},
	{"Barton Springs", 30.26, 30.27, -97.77, -97.76, "Natural spring-fed pool"},
	{"Tarrytown", 30.27, 30.30, -97.79, -97.76, "Upscale west side neighborhood"},
}

// matchLocation resolves a query string against the known Austin locations.
func matchLocation(query string) (location, bool) {
	lower := strings.ToLower(query)

	for key, loc := range austinLocations {
		if strings.Contains(lower, key) {
			return loc, true
		}
	}

	for synonym, canonical := range locationSynonyms {
		if strings.Contains(lower, synonym) {
			if loc, ok := austinLocations[canonical]; ok {
				return loc, true
			}
		}
	}

	return location{}, false
}

// matchAreas returns every bounded area containing the coordinate.
func matchAreas(lat, lng float64) []austinArea {
	var matches []austinArea
	for _, area := range austinAreas {
		if lat >= area.latMin && lat <= area.latMax && lng >= area.lngMin && lng <= area.lngMax {
			matches = append(matches, area)
		}
	}
	return matches
}

type locationInput struct {
	Query string `json:"query" jsonschema:"description=The user's question or a location name mentioned in it"`
}

func analyzeLocation(_ context.Context, in *locationInput) (string, error) {
	loc, ok := matchLocation(in.Query)
	if !ok {
		return "No specific Austin location detected in query. Proceed with general trip data analysis.", nil
	}

	patterns := loc.searchPatterns
	if len(patterns) > 2 {
		patterns = patterns[:2]
	}
	related := loc.related
	if len(related) > 3 {
		related = related[:3]
	}

	return fmt.Sprintf(`LOCATION: %s (%s)
DESCRIPTION: %s
COORDINATES: %s
SEARCH PATTERNS: %s
RELATED: %s

SQL OPTIONS:
1. Text search: WHERE pickup_address LIKE '%s' OR dropoff_address LIKE '%s'
2. Coordinate search: Use pickup_lat/pickup_lng and dropoff_lat/dropoff_lng for precise location analysis
3. Combined: Use both text and coordinate filtering for comprehensive results`,
		loc.name, loc.locationType, loc.description, loc.coordinatesHint,
		strings.Join(patterns, ", "), strings.Join(related, ", "),
		loc.searchPatterns[0], loc.searchPatterns[0]), nil
}

type coordinateInput struct {
	Lat float64 `json:"lat" jsonschema:"description=Latitude coordinate"`
	Lng float64 `json:"lng" jsonschema:"description=Longitude coordinate"`
}

func analyzeCoordinates(_ context.Context, in *coordinateInput) (string, error) {
	matches := matchAreas(in.Lat, in.Lng)
	if len(matches) == 0 {
		return fmt.Sprintf("Coordinates (%v, %v) are outside major Austin areas. This might be a suburban or outlying location.", in.Lat, in.Lng), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "COORDINATE ANALYSIS: (%v, %v)\n", in.Lat, in.Lng)
	fmt.Fprintf(&b, "LOCATION: %s\n", matches[0].name)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", matches[0].description)
	if len(matches) > 1 {
		names := make([]string, 0, len(matches)-1)
		for _, m := range matches[1:] {
			names = append(names, m.name)
		}
		fmt.Fprintf(&b, "NEARBY: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("\nSQL SUGGESTIONS:\n")
	b.WriteString("- Use these coordinates for precise location filtering\n")
	b.WriteString("- Consider nearby areas for broader analysis\n")
	b.WriteString("- Combine with address text search for comprehensive results")
	return b.String(), nil
}

// NewLocationTool returns the Austin location lookup tool: name/synonym
// matching to LIKE search patterns and area context.
func NewLocationTool() (tool.InvokableTool, error) {
	return utils.InferTool(
		"analyze_austin_location",
		"Identify Austin locations, landmarks, or neighborhoods mentioned in a question and get SQL LIKE search patterns for the address columns.",
		analyzeLocation,
	)
}

// NewCoordinateTool returns the coordinate classification tool mapping a
// lat/lng pair from the database to a named Austin area.
func NewCoordinateTool() (tool.InvokableTool, error) {
	return utils.InferTool(
		"analyze_coordinate_location",
		"Classify a latitude/longitude pair from the trip data into a named Austin area with context.",
		analyzeCoordinates,
	)
}
