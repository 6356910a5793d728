// Package config loads the startup metadata for the headtrack service.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default metadata values.
const (
	DefaultFlipFramesVertically = true
	DefaultConverterNumBuffers  = 2
	DefaultCameraFacingFront    = false
	DefaultNumFaces             = 1
	DefaultPollIntervalMillis   = 33
	DefaultPreviewWidth         = 640
	DefaultPreviewHeight        = 480
)

// Metadata holds the values read once at startup. Keys match the names used
// by the face-mesh graph configuration so the same metadata file can be shared.
type Metadata struct {
	BinaryGraphName       string `yaml:"binaryGraphName"`
	InputVideoStreamName  string `yaml:"inputVideoStreamName"`
	OutputVideoStreamName string `yaml:"outputVideoStreamName"`

	// Flips frames vertically before they reach the engine. OpenGL style
	// producers put the origin at the bottom-left, the engine expects top-left.
	FlipFramesVertically *bool `yaml:"flipFramesVertically"`

	// Number of output buffers in the converter. With a flow limiter in the
	// graph this should be at least max_in_flight + max_in_queue + 1.
	ConverterNumBuffers int `yaml:"converterNumBuffers"`

	CameraFacingFront bool `yaml:"cameraFacingFront"`
	CameraDeviceFront int  `yaml:"cameraDeviceFront"`
	CameraDeviceBack  int  `yaml:"cameraDeviceBack"`
	CameraRotation    int  `yaml:"cameraRotation"`

	NumFaces           int  `yaml:"numFaces"`
	PollIntervalMillis int  `yaml:"pollIntervalMillis"`
	PreviewWidth       int  `yaml:"previewWidth"`
	PreviewHeight      int  `yaml:"previewHeight"`
	RecordSamples      bool `yaml:"recordSamples"`
	Verbose            bool `yaml:"verbose"`
}

// Defaults returns metadata with every optional key set to its default.
// The graph and stream names have no defaults.
func Defaults() Metadata {
	m := Metadata{}
	m.applyDefaults()
	return m
}

func (m *Metadata) applyDefaults() {
	if m.FlipFramesVertically == nil {
		flip := DefaultFlipFramesVertically
		m.FlipFramesVertically = &flip
	}
	if m.ConverterNumBuffers <= 0 {
		m.ConverterNumBuffers = DefaultConverterNumBuffers
	}
	if m.NumFaces <= 0 {
		m.NumFaces = DefaultNumFaces
	}
	if m.PollIntervalMillis <= 0 {
		m.PollIntervalMillis = DefaultPollIntervalMillis
	}
	if m.PreviewWidth <= 0 {
		m.PreviewWidth = DefaultPreviewWidth
	}
	if m.PreviewHeight <= 0 {
		m.PreviewHeight = DefaultPreviewHeight
	}
}

// Flip reports whether frames are flipped vertically.
func (m Metadata) Flip() bool {
	if m.FlipFramesVertically == nil {
		return DefaultFlipFramesVertically
	}
	return *m.FlipFramesVertically
}

// PollInterval returns the poll loop interval.
func (m Metadata) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMillis) * time.Millisecond
}

// Parse decodes metadata from YAML and applies defaults.
func Parse(data []byte) (Metadata, error) {
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Defaults(), fmt.Errorf("parse metadata: %w", err)
	}
	m.applyDefaults()

	switch m.CameraRotation {
	case 0, 90, 180, 270:
	default:
		return Defaults(), fmt.Errorf("parse metadata: cameraRotation %d is not a multiple of 90", m.CameraRotation)
	}

	return m, nil
}

// Load reads the metadata file at path. A missing or unreadable file is
// logged and defaults are returned; the service keeps going and fails later
// where a required key (the graph name) is actually needed.
func Load(path string) Metadata {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Cannot find metadata %s, using defaults", path)
		} else {
			log.Printf("Cannot read metadata %s: %v", path, err)
		}
		return Defaults()
	}

	m, err := Parse(data)
	if err != nil {
		log.Printf("Invalid metadata %s: %v", path, err)
		return Defaults()
	}
	return m
}
