package pose

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockSource is a test implementation of the Source interface.
// It allows tests to control the pose it reports.
type MockSource struct {
	mu        sync.Mutex
	pose      Sample
	havePose  bool
	faces     []FaceLandmarks
	err       error
	frames    int
	callbacks []LandmarksCallback
	closed    bool
}

// NewMockSource creates a new MockSource instance.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// SetPose sets the pose returned by Pose.
func (m *MockSource) SetPose(turn, tilt, nod float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pose = Sample{Turn: turn, Tilt: tilt, Nod: nod, Timestamp: time.Now()}
	m.havePose = true
}

// SetFaces sets the landmarks passed to callbacks on each frame.
func (m *MockSource) SetFaces(faces []FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error returned by OnNewFrame.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// OnNewFrame counts the frame and reports landmarks to callbacks.
func (m *MockSource) OnNewFrame(frame gocv.Mat, timestamp time.Time) error {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.frames++
	faces := m.faces
	callbacks := m.callbacks
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(timestamp, faces)
	}
	return nil
}

// Pose returns the configured pose.
func (m *MockSource) Pose() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pose, m.havePose
}

// AddLandmarksCallback registers fn.
func (m *MockSource) AddLandmarksCallback(fn LandmarksCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Frames returns how many frames were received.
func (m *MockSource) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Close marks the mock closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
