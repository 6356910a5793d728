package pose

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoGraph is returned when the engine is created without a graph name.
var ErrNoGraph = errors.New("binary graph name is not set")

// Source is the head-pose engine. It consumes frames and produces the most
// recent pose. OnNewFrame is not reentrant; callers serialize it.
type Source interface {
	// OnNewFrame feeds one frame into the engine.
	OnNewFrame(frame gocv.Mat, timestamp time.Time) error

	// Pose returns the pose computed from the last processed frame.
	// ok is false before the first face was seen.
	Pose() (s Sample, ok bool)

	// AddLandmarksCallback registers fn for every landmarks packet.
	AddLandmarksCallback(fn LandmarksCallback)

	// Close releases any resources held by the engine.
	Close() error
}

// LandmarksCallback receives the face landmarks of one processed frame.
type LandmarksCallback func(timestamp time.Time, faces []FaceLandmarks)

// Config holds configuration options for the engine.
type Config struct {
	// BinaryGraphName is the path of the graph definition the engine loads.
	BinaryGraphName string

	// InputVideoStream and OutputVideoStream name the graph's video streams.
	InputVideoStream  string
	OutputVideoStream string

	// NumFaces is the num_faces side packet (default: 1).
	NumFaces int

	// IdleTimeout shuts the engine process down when no frame arrives for
	// this long (default: 30s). It restarts on the next frame.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InputVideoStream:  "input_video",
		OutputVideoStream: "output_video",
		NumFaces:          1,
		IdleTimeout:       30 * time.Second,
	}
}
