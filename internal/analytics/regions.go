package analytics

// region is a fixed lat/lon bounding box used for geographic aggregation.
type region struct {
	name   string
	minLat float64
	maxLat float64
	minLon float64
	maxLon float64
}

// regions are checked in priority order; the first matching box wins.
// Boxes overlap (California/Arizona, Midwest/Mid-Atlantic), which is why
// order matters.
var regions = []region{
	{"Florida", 24.5, 31.0, -87.6, -80.0},
	{"California", 32.5, 42.0, -124.4, -114.1},
	{"Texas", 25.8, 36.5, -106.6, -93.5},
	{"Arizona/New Mexico", 31.3, 37.0, -114.8, -103.0},
	{"Pacific Northwest", 42.0, 49.0, -124.8, -116.5},
	{"Midwest", 36.0, 49.0, -104.0, -80.5},
	{"Mid-Atlantic", 36.5, 43.0, -80.5, -71.8},
}

// RegionOther is the catch-all label for exposures matching no box,
// including ungeocoded rows.
const RegionOther = "Other US"

// regionLabels is the total number of region labels including RegionOther.
// The geographic spread heuristic normalizes against it.
const regionLabels = 8

// ClassifyRegion maps coordinates to exactly one region label. The mapping
// is total: every input, including the (0, 0) ungeocoded sentinel, yields
// a label.
func ClassifyRegion(lat, lon float64) string {
	for _, r := range regions {
		if lat >= r.minLat && lat <= r.maxLat && lon >= r.minLon && lon <= r.maxLon {
			return r.name
		}
	}
	return RegionOther
}
