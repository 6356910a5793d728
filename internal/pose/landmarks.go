package pose

import (
	"fmt"
	"strings"
)

// NumFaceLandmarks is the number of points in a face-mesh landmark list.
const NumFaceLandmarks = 468

// Point3D is a normalized landmark position.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceLandmarks is the landmark list of one detected face.
type FaceLandmarks struct {
	Points []Point3D `json:"landmarks"`
}

// DebugString renders landmarks for verbose logging.
func DebugString(faces []FaceLandmarks) string {
	if len(faces) == 0 {
		return "No face landmarks"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Number of faces detected: %d\n", len(faces))
	for i, face := range faces {
		fmt.Fprintf(&b, "\t#Face landmarks for face[%d]: %d\n", i, len(face.Points))
		for j, p := range face.Points {
			fmt.Fprintf(&b, "\t\tLandmark [%d]: (%g, %g, %g)\n", j, p.X, p.Y, p.Z)
		}
	}
	return b.String()
}
