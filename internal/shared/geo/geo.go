package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Interpolate returns steps+1 evenly spaced [lng, lat] pairs from start to end
// inclusive. steps below 1 yields just the two endpoints.
func Interpolate(lat1, lng1, lat2, lng2 float64, steps int) [][2]float64 {
	if steps < 1 {
		steps = 1
	}
	out := make([][2]float64, 0, steps+1)
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		out = append(out, [2]float64{lng1 + (lng2-lng1)*f, lat1 + (lat2-lat1)*f})
	}
	return out
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
