package population

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

// SurfaceRotation orients an object so its local up axis follows normal,
// spun by yaw radians around that normal.
func SurfaceRotation(normal mgl64.Vec3, yaw float64) mgl64.Quat {
	if normal.Len() == 0 {
		normal = axisY
	}
	look := mgl64.QuatBetweenVectors(axisZ, normal.Normalize())
	spin := mgl64.QuatRotate(yaw, axisZ)
	tilt := mgl64.QuatRotate(math.Pi/2, axisX)
	return look.Mul(spin).Mul(tilt).Normalize()
}
