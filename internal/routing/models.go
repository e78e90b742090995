package routing

// Point is a WGS84 position.
type Point struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lng float64 `json:"lng" validate:"required,longitude"`
}

type Request struct {
	Start   Point  `json:"start" validate:"required"`
	End     Point  `json:"end" validate:"required"`
	Profile string `json:"profile" validate:"required,oneof=foot-hiking foot-walking cycling-regular cycling-mountain cycling-road driving-car"`
}

// Route is a path between two points. Geometry pairs are [lng, lat].
// Distance is in meters and Duration in seconds.
type Route struct {
	Geometry [][2]float64 `json:"geometry"`
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Degraded bool         `json:"degraded"`
}

// directionsResponse is the subset of the OpenRouteService GeoJSON reply we read.
type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}
