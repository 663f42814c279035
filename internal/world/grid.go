package world

import "math"

// RegionSize is the edge of one square index region in world units.
const RegionSize = 32.0

// regionKey addresses a region on the XZ plane.
type regionKey struct {
	rx, rz int32
}

// regionOf returns the region containing world coordinates (x, z).
func regionOf(x, z float64) regionKey {
	return regionKey{
		rx: int32(math.Floor(x / RegionSize)),
		rz: int32(math.Floor(z / RegionSize)),
	}
}

// regionsAround lists every region a circle of radius around (x, z) touches.
func regionsAround(x, z, radius float64) []regionKey {
	lo := regionOf(x-radius, z-radius)
	hi := regionOf(x+radius, z+radius)

	keys := make([]regionKey, 0, int(hi.rx-lo.rx+1)*int(hi.rz-lo.rz+1))
	for rx := lo.rx; rx <= hi.rx; rx++ {
		for rz := lo.rz; rz <= hi.rz; rz++ {
			keys = append(keys, regionKey{rx: rx, rz: rz})
		}
	}
	return keys
}
