package permission

import (
	"path/filepath"
	"testing"

	"github.com/ayusman/headtrack/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRequester struct {
	calls int
}

func (c *countingRequester) RequestCameraPermission() { c.calls++ }

func newSettings(t *testing.T) *store.SettingsRepository {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.Settings()
}

func TestHelper_RequestsOnce(t *testing.T) {
	req := &countingRequester{}
	h := NewHelper(nil, req)

	assert.False(t, h.CameraPermissionsGranted())

	h.CheckAndRequestCameraPermissions()
	h.CheckAndRequestCameraPermissions()
	assert.Equal(t, 1, req.calls, "a pending request must not be repeated")

	h.OnRequestPermissionsResult(false)
	h.CheckAndRequestCameraPermissions()
	assert.Equal(t, 2, req.calls, "a denied request may be asked again")
}

func TestHelper_GrantNotifiesListeners(t *testing.T) {
	h := NewHelper(nil, &countingRequester{})

	var results []bool
	h.OnResult(func(granted bool) { results = append(results, granted) })

	h.OnRequestPermissionsResult(false)
	h.OnRequestPermissionsResult(true)

	assert.Equal(t, []bool{false, true}, results)
	assert.True(t, h.CameraPermissionsGranted())
}

func TestHelper_GrantedSkipsRequest(t *testing.T) {
	req := &countingRequester{}
	h := NewHelper(nil, req)
	h.OnRequestPermissionsResult(true)

	h.CheckAndRequestCameraPermissions()
	assert.Zero(t, req.calls)
}

func TestHelper_PersistsGrant(t *testing.T) {
	settings := newSettings(t)

	h := NewHelper(settings, RequesterFunc(func() {}))
	h.OnRequestPermissionsResult(true)

	reloaded := NewHelper(settings, nil)
	assert.True(t, reloaded.CameraPermissionsGranted())

	reloaded.OnRequestPermissionsResult(false)
	assert.False(t, NewHelper(settings, nil).CameraPermissionsGranted())
}

func TestHelper_NilRequester(t *testing.T) {
	h := NewHelper(nil, nil)
	h.CheckAndRequestCameraPermissions()
	assert.False(t, h.CameraPermissionsGranted())
}
