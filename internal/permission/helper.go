// Package permission tracks the runtime camera grant.
package permission

import (
	"log"
	"sync"
)

// SettingCameraGranted is the settings key holding the camera grant.
const SettingCameraGranted = "camera_permission_granted"

// Settings persists the grant.
type Settings interface {
	GetBool(key string, def bool) (bool, error)
	SetBool(key string, value bool) error
}

// Requester asks the user for camera access. The answer arrives later through
// Helper.OnRequestPermissionsResult.
type Requester interface {
	RequestCameraPermission()
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func()

// RequestCameraPermission calls f().
func (f RequesterFunc) RequestCameraPermission() {
	f()
}

// Helper checks, requests and records the camera grant.
type Helper struct {
	settings  Settings
	requester Requester

	mu        sync.Mutex
	granted   bool
	requested bool
	listeners []func(granted bool)
}

// NewHelper loads the stored grant. A nil settings keeps the grant in memory
// only.
func NewHelper(settings Settings, requester Requester) *Helper {
	h := &Helper{
		settings:  settings,
		requester: requester,
	}
	if settings != nil {
		granted, err := settings.GetBool(SettingCameraGranted, false)
		if err != nil {
			log.Printf("Cannot read camera permission: %v", err)
		}
		h.granted = granted
	}
	return h
}

// CameraPermissionsGranted reports whether camera access was granted.
func (h *Helper) CameraPermissionsGranted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.granted
}

// CheckAndRequestCameraPermissions asks for access when it is not granted.
// Only one request is outstanding at a time.
func (h *Helper) CheckAndRequestCameraPermissions() {
	h.mu.Lock()
	if h.granted || h.requested || h.requester == nil {
		h.mu.Unlock()
		return
	}
	h.requested = true
	h.mu.Unlock()

	h.requester.RequestCameraPermission()
}

// OnResult registers fn to run on every permission result.
func (h *Helper) OnResult(fn func(granted bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// OnRequestPermissionsResult records the user's answer. A denial is not an
// error; the camera simply stays off.
func (h *Helper) OnRequestPermissionsResult(granted bool) {
	h.mu.Lock()
	h.granted = granted
	h.requested = false
	listeners := make([]func(bool), len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	if h.settings != nil {
		if err := h.settings.SetBool(SettingCameraGranted, granted); err != nil {
			log.Printf("Cannot store camera permission: %v", err)
		}
	}

	if granted {
		log.Println("Camera permission granted")
	} else {
		log.Println("Camera permission denied")
	}

	for _, fn := range listeners {
		fn(granted)
	}
}
