package pose

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MediaPipeSource implements Source with a face-mesh MediaPipe subprocess.
//
// Wire protocol, per frame:
//
//	request:  8-byte big-endian timestamp (µs) | 4-byte big-endian length | JPEG
//	response: one JSON line {"timestamp":..., "faces":[...], "pose":{...}|null}
type MediaPipeSource struct {
	config Config
	script string
	python string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer

	poseMu   sync.RWMutex
	last     Sample
	havePose bool

	cbMu      sync.RWMutex
	callbacks []LandmarksCallback
}

// NewMediaPipeSource creates a new MediaPipe engine.
// The subprocess is started lazily on the first frame.
func NewMediaPipeSource(config Config) (*MediaPipeSource, error) {
	if config.BinaryGraphName == "" {
		return nil, ErrNoGraph
	}
	if config.NumFaces <= 0 {
		config.NumFaces = 1
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 30 * time.Second
	}

	scriptPath := findFaceMeshScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("face_mesh_service.py not found")
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	return &MediaPipeSource{
		config: config,
		script: scriptPath,
		python: pythonPath,
	}, nil
}

// OnNewFrame encodes frame and runs it through the face-mesh graph.
func (d *MediaPipeSource) OnNewFrame(frame gocv.Mat, timestamp time.Time) error {
	resp, err := d.process(frame, timestamp)
	if err != nil {
		return err
	}

	if resp.Pose != nil {
		d.poseMu.Lock()
		d.last = Sample{
			Turn:      resp.Pose.Turn,
			Tilt:      resp.Pose.Tilt,
			Nod:       resp.Pose.Nod,
			Timestamp: timestamp,
		}
		d.havePose = true
		d.poseMu.Unlock()
	}

	faces := make([]FaceLandmarks, len(resp.Faces))
	for i, f := range resp.Faces {
		faces[i] = f.toFaceLandmarks()
	}

	d.cbMu.RLock()
	callbacks := d.callbacks
	d.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(timestamp, faces)
	}

	return nil
}

// Pose returns the last computed pose.
func (d *MediaPipeSource) Pose() (Sample, bool) {
	d.poseMu.RLock()
	defer d.poseMu.RUnlock()
	return d.last, d.havePose
}

// AddLandmarksCallback registers fn for every processed frame.
func (d *MediaPipeSource) AddLandmarksCallback(fn LandmarksCallback) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.callbacks = append(d.callbacks, fn)
}

// Close shuts down the Python process.
func (d *MediaPipeSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeSource) process(frame gocv.Mat, timestamp time.Time) (*jsonResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(".jpg", frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	header := make([]byte, 12)
	binary.BigEndian.PutUint64(header[:8], uint64(timestamp.UnixMicro()))
	binary.BigEndian.PutUint32(header[8:], uint32(len(data)))

	if _, err := d.stdin.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp, err := parseResponse([]byte(line))
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()
	return resp, nil
}

func (d *MediaPipeSource) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.python, d.script,
		"--graph", d.config.BinaryGraphName,
		"--input_stream", d.config.InputVideoStream,
		"--output_stream", d.config.OutputVideoStream,
		"--num_faces", strconv.Itoa(d.config.NumFaces),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start face mesh service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

func (d *MediaPipeSource) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeSource) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findFaceMeshScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/face_mesh_service.py",
		"../scripts/face_mesh_service.py",
		filepath.Join(execDir, "scripts/face_mesh_service.py"),
		filepath.Join(os.Getenv("HOME"), ".headtrack/scripts/face_mesh_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".headtrack/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonResponse is one line written by the face mesh service.
type jsonResponse struct {
	Timestamp int64      `json:"timestamp"`
	Faces     []jsonFace `json:"faces"`
	Pose      *jsonPose  `json:"pose"`
}

type jsonFace struct {
	Landmarks []Point3D `json:"landmarks"`
}

type jsonPose struct {
	Turn float64 `json:"turn"`
	Tilt float64 `json:"tilt"`
	Nod  float64 `json:"nod"`
}

func parseResponse(line []byte) (*jsonResponse, error) {
	var resp jsonResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

func (f jsonFace) toFaceLandmarks() FaceLandmarks {
	n := len(f.Landmarks)
	if n > NumFaceLandmarks {
		n = NumFaceLandmarks
	}
	points := make([]Point3D, n)
	copy(points, f.Landmarks[:n])
	return FaceLandmarks{Points: points}
}
