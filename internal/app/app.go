// Package app coordinates camera capture, the pose engine and the poll loop
// for the headtrack service.
package app

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/headtrack/internal/capture"
	"github.com/ayusman/headtrack/internal/config"
	"github.com/ayusman/headtrack/internal/frame"
	"github.com/ayusman/headtrack/internal/lifecycle"
	"github.com/ayusman/headtrack/internal/permission"
	"github.com/ayusman/headtrack/internal/poll"
	"github.com/ayusman/headtrack/internal/pose"
	"github.com/ayusman/headtrack/internal/store"
	"github.com/ayusman/headtrack/internal/surface"
)

var (
	// ErrNotCreated is returned by lifecycle calls made before Create.
	ErrNotCreated = errors.New("app is not created")
	// ErrShortBuffer is returned by HeadRotation for buffers under 3 elements.
	ErrShortBuffer = errors.New("head rotation buffer needs 3 elements")
)

// Config holds configuration options for the application.
type Config struct {
	Metadata config.Metadata

	// Store persists the camera grant and recorded samples. Optional.
	Store *store.Store

	// Requester asks the user for camera access.
	Requester permission.Requester

	// CameraGranted grants camera access up front, before Create would ask
	// the Requester. Used for headless runs.
	CameraGranted bool

	// NewCamera opens camera devices. Defaults to capture.NewCamera.
	NewCamera func(dev capture.Device) capture.Camera

	// NewSource builds the pose engine. Defaults to the MediaPipe engine.
	NewSource func(cfg pose.Config) (pose.Source, error)
}

// App is the top-level coordinator. Create allocates the components in
// dependency order, Resume starts capture and polling, Pause stops them.
type App struct {
	config Config
	meta   config.Metadata

	// lifeMu serializes Resume, Pause, Destroy and permission-driven camera
	// starts. Taken before mu.
	lifeMu sync.Mutex

	mu        sync.Mutex
	created   bool
	shim      *lifecycle.Shim
	slot      *frame.Slot
	camera    *capture.Source
	converter *capture.Converter
	bridge    *surface.Bridge
	dispatch  *frame.Dispatcher
	processor pose.Source
	poller    *poll.Loop
	strategy  *refreshStrategy
	perms     *permission.Helper
	recorder  *recorder

	snapshot pose.Snapshot

	subMu     sync.RWMutex
	subs      map[int]func(pose.Sample)
	nextSubID int
}

// New creates a new App instance with the given configuration.
func New(cfg Config) *App {
	if cfg.NewCamera == nil {
		cfg.NewCamera = capture.NewCamera
	}
	if cfg.NewSource == nil {
		cfg.NewSource = func(c pose.Config) (pose.Source, error) {
			return pose.NewMediaPipeSource(c)
		}
	}
	return &App{
		config: cfg,
		meta:   cfg.Metadata,
		shim:   lifecycle.New(),
		subs:   make(map[int]func(pose.Sample)),
	}
}

// Create builds every component and requests camera permission. An engine
// that cannot be built (for example without a graph name) is returned as an
// error; there is no recovery from it.
func (a *App) Create() error {
	a.mu.Lock()
	if a.created {
		a.mu.Unlock()
		return nil
	}

	cfg := pose.DefaultConfig()
	cfg.BinaryGraphName = a.meta.BinaryGraphName
	if a.meta.InputVideoStreamName != "" {
		cfg.InputVideoStream = a.meta.InputVideoStreamName
	}
	if a.meta.OutputVideoStreamName != "" {
		cfg.OutputVideoStream = a.meta.OutputVideoStreamName
	}
	cfg.NumFaces = a.meta.NumFaces

	processor, err := a.config.NewSource(cfg)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("create pose engine: %w", err)
	}
	a.processor = processor

	if a.meta.Verbose {
		processor.AddLandmarksCallback(func(ts time.Time, faces []pose.FaceLandmarks) {
			log.Printf("Received multi face landmarks packet.")
			log.Printf("[TS:%d] %s", ts.UnixMicro(), pose.DebugString(faces))
		})
	}

	a.slot = frame.NewSlot()
	a.bridge = surface.NewBridge()

	a.camera = capture.NewSource(capture.SourceConfig{
		Devices: capture.Devices{
			Front: a.meta.CameraDeviceFront,
			Back:  a.meta.CameraDeviceBack,
		},
		Rotation:  a.meta.CameraRotation,
		NewCamera: a.config.NewCamera,
	}, a.slot)
	a.camera.SetOnCameraStarted(a.onCameraStarted)

	a.dispatch = frame.NewDispatcher(a.slot, nil)
	a.camera.SetOnFrameAvailable(a.dispatch.Notify)
	a.shim.Observe(a.dispatch)

	a.strategy = &refreshStrategy{
		frames:   a.slot,
		notifier: a.dispatch,
		source:   processor,
		publish:  a.publish,
		verbose:  a.meta.Verbose,
	}
	a.poller = poll.NewLoop(a.strategy)

	var settings permission.Settings
	if a.config.Store != nil {
		settings = a.config.Store.Settings()
		if a.meta.RecordSamples {
			a.recorder = newRecorder(a.config.Store.Recordings(), defaultRecorderBatch)
		}
	}
	perms := permission.NewHelper(settings, a.config.Requester)
	perms.OnResult(a.onPermissionResult)
	a.perms = perms

	a.created = true
	a.mu.Unlock()
	log.Println("Headtrack created")

	if a.config.CameraGranted && !perms.CameraPermissionsGranted() {
		perms.OnRequestPermissionsResult(true)
	}
	perms.CheckAndRequestCameraPermissions()
	return nil
}

// Resume builds a fresh converter, starts the camera when permitted, starts
// the poll loop and finally advances the lifecycle shim.
func (a *App) Resume() error {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()

	a.mu.Lock()
	if !a.created {
		a.mu.Unlock()
		return ErrNotCreated
	}
	if a.shim.State() == lifecycle.Resumed {
		a.mu.Unlock()
		return nil
	}

	a.converter = capture.NewConverter(a.meta.ConverterNumBuffers)
	a.converter.SetFlipY(a.meta.Flip())
	a.converter.SetConsumer(a.processor)
	a.converter.SetDisplay(a.bridge)
	a.dispatch.SetSink(a.converter)
	a.bridge.SetTarget(a.converter)

	if a.recorder != nil {
		if err := a.recorder.start(a.meta.BinaryGraphName, a.meta.CameraFacingFront); err != nil {
			log.Printf("Cannot start recording: %v", err)
		}
	}
	a.mu.Unlock()

	if a.perms.CameraPermissionsGranted() {
		a.startCamera()
	}

	a.poller.Start(a.meta.PollInterval())

	// Dependents react synchronously to the transition, so this goes last.
	a.shim.AdvanceToResumed()
	log.Println("Headtrack resumed")
	return nil
}

// Pause stops polling, frame delivery and capture, closes the converter and
// hides the preview.
func (a *App) Pause() {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	a.pauseLocked()
}

func (a *App) pauseLocked() {
	a.mu.Lock()
	if !a.created {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	a.poller.Stop()
	a.shim.Pause()
	a.camera.Stop()

	a.mu.Lock()
	a.dispatch.SetSink(nil)
	a.bridge.SetTarget(nil)
	a.bridge.Detach()
	a.bridge.SetVisible(false)
	if a.converter != nil {
		a.converter.Close()
		a.converter = nil
	}
	if a.recorder != nil {
		if err := a.recorder.stop(); err != nil {
			log.Printf("Cannot finish recording: %v", err)
		}
	}
	a.mu.Unlock()

	log.Println("Headtrack paused")
}

// Destroy pauses if needed and releases the engine.
func (a *App) Destroy() error {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()

	a.mu.Lock()
	if !a.created {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if a.shim.State() == lifecycle.Resumed {
		a.pauseLocked()
	}
	a.shim.Destroy()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = false
	if err := a.processor.Close(); err != nil {
		return fmt.Errorf("close pose engine: %w", err)
	}
	log.Println("Headtrack destroyed")
	return nil
}

// OnPermissionResult forwards the user's camera permission answer.
func (a *App) OnPermissionResult(granted bool) {
	a.mu.Lock()
	perms := a.perms
	a.mu.Unlock()

	if perms == nil {
		return
	}
	perms.OnRequestPermissionsResult(granted)
}

// RequestCameraPermission asks for camera access again, e.g. after a denial.
func (a *App) RequestCameraPermission() {
	a.mu.Lock()
	perms := a.perms
	a.mu.Unlock()

	if perms != nil {
		perms.CheckAndRequestCameraPermissions()
	}
}

func (a *App) onPermissionResult(granted bool) {
	if !granted {
		return
	}
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.shim.State() == lifecycle.Resumed {
		a.startCamera()
	}
}

func (a *App) startCamera() {
	facing := capture.FacingBack
	if a.meta.CameraFacingFront {
		facing = capture.FacingFront
	}
	err := a.camera.Start(facing)
	if errors.Is(err, capture.ErrCameraBusy) {
		log.Printf("Camera in use by another application: %v", err)
	} else if err != nil {
		log.Printf("Cannot start camera: %v", err)
	}
}

// onCameraStarted shows the preview and attaches the frame slot sized for
// the configured preview view.
func (a *App) onCameraStarted(slot *frame.Slot) {
	a.bridge.SetVisible(true)
	a.bridge.SurfaceChanged(a.camera, slot, a.meta.PreviewWidth, a.meta.PreviewHeight)
}

func (a *App) publish(s pose.Sample) {
	s = a.snapshot.Publish(s)

	if a.recorder != nil {
		if err := a.recorder.add(s); err != nil {
			log.Printf("Cannot record sample %d: %v", s.Seq, err)
		}
	}

	a.subMu.RLock()
	for _, fn := range a.subs {
		fn(s)
	}
	a.subMu.RUnlock()
}

// Subscribe calls fn with every published sample until cancel is called.
// fn runs on the poll goroutine and must not block.
func (a *App) Subscribe(fn func(pose.Sample)) (cancel func()) {
	a.subMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

// Pose returns the last published sample, the zero sample before the first.
func (a *App) Pose() pose.Sample {
	return a.snapshot.Latest()
}

// Turn returns the last head turn angle.
func (a *App) Turn() float64 {
	return a.snapshot.Latest().Turn
}

// Tilt returns the last head tilt angle.
func (a *App) Tilt() float64 {
	return a.snapshot.Latest().Tilt
}

// Nod returns the last head nod angle.
func (a *App) Nod() float64 {
	return a.snapshot.Latest().Nod
}

// HeadRotation fills buf with [turn, tilt, nod] from a single sample.
func (a *App) HeadRotation(buf []float64) error {
	if len(buf) < 3 {
		return ErrShortBuffer
	}
	angles := a.snapshot.Latest().Angles()
	copy(buf, angles[:])
	return nil
}

// State returns the lifecycle state.
func (a *App) State() lifecycle.State {
	return a.shim.State()
}

// Lifecycle returns the lifecycle shim.
func (a *App) Lifecycle() *lifecycle.Shim {
	return a.shim
}

// Bridge returns the surface bridge.
func (a *App) Bridge() *surface.Bridge {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bridge
}

// Camera returns the camera source.
func (a *App) Camera() *capture.Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.camera
}

// Dispatcher returns the frame dispatcher.
func (a *App) Dispatcher() *frame.Dispatcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dispatch
}

// FrameStats returns the frame dispatcher counters.
func (a *App) FrameStats() frame.Stats {
	d := a.Dispatcher()
	if d == nil {
		return frame.Stats{}
	}
	return d.Stats()
}

// PollStats reports poll loop counters.
type PollStats struct {
	Firings   uint64
	Skipped   uint64
	Published uint64
}

// PollStats returns the poll loop counters.
func (a *App) PollStats() PollStats {
	a.mu.Lock()
	poller, strategy := a.poller, a.strategy
	a.mu.Unlock()

	if poller == nil {
		return PollStats{}
	}
	return PollStats{
		Firings:   poller.Firings(),
		Skipped:   strategy.skipped.Load(),
		Published: strategy.polled.Load(),
	}
}

// Processor returns the pose engine.
func (a *App) Processor() pose.Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processor
}

// CameraBusy reports whether the last camera start found the device held by
// another application.
func (a *App) CameraBusy() bool {
	cam := a.Camera()
	return cam != nil && cam.Busy()
}

// RecordingSession returns the id of the session being recorded, or "".
func (a *App) RecordingSession() string {
	a.mu.Lock()
	rec := a.recorder
	a.mu.Unlock()
	if rec == nil {
		return ""
	}
	return rec.sessionID()
}

// CameraPermissionsGranted reports the camera grant.
func (a *App) CameraPermissionsGranted() bool {
	a.mu.Lock()
	perms := a.perms
	a.mu.Unlock()
	return perms != nil && perms.CameraPermissionsGranted()
}
