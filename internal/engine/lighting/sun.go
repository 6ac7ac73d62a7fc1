package lighting

import (
	gomath "math"

	"github.com/Faultbox/midgard-fx/pkg/math"
)

// SunDirection converts longitude/latitude angles in degrees to a
// normalized direction pointing towards the sun. Longitude rotates around
// Y, latitude is the elevation above the horizon.
func SunDirection(longitude, latitude float32) math.Vec3 {
	lonRad := float64(longitude) * gomath.Pi / 180.0
	latRad := float64(latitude) * gomath.Pi / 180.0

	return math.Vec3{
		X: float32(gomath.Cos(latRad) * gomath.Sin(lonRad)),
		Y: float32(gomath.Sin(latRad)),
		Z: float32(gomath.Cos(latRad) * gomath.Cos(lonRad)),
	}
}
