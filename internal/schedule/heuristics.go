package schedule

import "math"

// Point is a visit location for routing heuristics.
type Point struct {
	Lat float64
	Lng float64
}

// ImproveOrder2Opt applies a 2-opt pass to shorten the walk through points.
// The first and last visits stay in place.
func ImproveOrder2Opt(points []Point, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestDist := pathDistance(points, best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				candidate := twoOptSwap(best, i, k)
				d := pathDistance(points, candidate)
				if d+1e-3 < bestDist {
					best = candidate
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func pathDistance(points []Point, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		a := points[order[i]]
		b := points[order[i+1]]
		total += haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
	}
	return total
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
