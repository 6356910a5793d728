// Package tray provides the system tray interface of the headtrack service.
package tray

import (
	"fmt"
	"sync"

	"github.com/ayusman/headtrack/internal/pose"
	"github.com/getlantern/systray"
)

// Tray is the system tray menu. It doubles as the camera permission prompt:
// RequestCameraPermission enables the "Allow camera" item and the user's
// click is reported through OnPermission.
type Tray struct {
	onToggle     func(running bool)
	onPermission func(granted bool)
	onPreview    func()
	onQuit       func()
	running      bool
	pending      bool
	mu           sync.RWMutex

	menuToggle *systray.MenuItem
	menuAllow  *systray.MenuItem
	menuDeny   *systray.MenuItem
	menuPose   *systray.MenuItem
}

// New creates a new Tray instance with tracking shown as running.
func New() *Tray {
	return &Tray{
		running: true,
	}
}

// OnToggle sets the callback run when tracking is paused or resumed.
func (t *Tray) OnToggle(fn func(running bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnPermission sets the callback run with the user's camera answer.
func (t *Tray) OnPermission(fn func(granted bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPermission = fn
}

// OnPreview sets the callback run when the preview menu item is clicked.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Headtrack")
	systray.SetTooltip("Headtrack head pose")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.running), "Pause or resume tracking")
	systray.AddSeparator()

	t.menuAllow = systray.AddMenuItem("Allow camera", "Grant camera access")
	t.menuDeny = systray.AddMenuItem("Deny camera", "Refuse camera access")
	if !t.pending {
		t.menuAllow.Disable()
		t.menuDeny.Disable()
	}
	systray.AddSeparator()

	t.menuPose = systray.AddMenuItem(PoseTitle(pose.Sample{}), "Last head pose")
	t.menuPose.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuPreview := systray.AddMenuItem("Open Preview...", "Open the camera preview in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Headtrack")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuAllow.ClickedCh:
				t.handlePermission(true)
			case <-t.menuDeny.ClickedCh:
				t.handlePermission(false)
			case <-menuPreview.ClickedCh:
				t.handlePreview()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// RequestCameraPermission enables the permission menu items until the user
// answers.
func (t *Tray) RequestCameraPermission() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = true
	if t.menuAllow != nil {
		t.menuAllow.Enable()
		t.menuDeny.Enable()
	}
}

// PermissionPending reports whether a camera request awaits an answer.
func (t *Tray) PermissionPending() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.running = !t.running
	running := t.running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(running)
	}
}

func (t *Tray) handlePermission(granted bool) {
	t.mu.Lock()
	if !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	if t.menuAllow != nil {
		t.menuAllow.Disable()
		t.menuDeny.Disable()
	}
	callback := t.onPermission
	t.mu.Unlock()

	if callback != nil {
		callback(granted)
	}
}

func (t *Tray) handlePreview() {
	t.mu.RLock()
	callback := t.onPreview
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetPose updates the pose readout in the menu.
func (t *Tray) SetPose(s pose.Sample) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuPose != nil {
		t.menuPose.SetTitle(PoseTitle(s))
	}
}

// IsRunning returns whether tracking is shown as running.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// PoseTitle formats a sample for the menu readout.
func PoseTitle(s pose.Sample) string {
	return fmt.Sprintf("Turn %.0f° Tilt %.0f° Nod %.0f°", s.Turn, s.Tilt, s.Nod)
}

func toggleTitle(running bool) string {
	if running {
		return "● Tracking"
	}
	return "○ Paused"
}
