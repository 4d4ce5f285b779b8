package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type fileCamera struct {
	Camera `yaml:",inline"`
	Status string `yaml:"status"`
}

type fileDocument struct {
	Cameras []fileCamera `yaml:"cameras"`
}

// FileRegistry serves cameras from a YAML document loaded once.
//
//	cameras:
//	  - id: 6f1c...
//	    name: Rua XV, bridge
//	    stream: https://cams.example/xv/index.m3u8
//	    status: active
type FileRegistry struct {
	cameras []Camera
}

// LoadFile parses a camera list from path.
func LoadFile(path string) (*FileRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera file: %w", err)
	}
	return Parse(data)
}

// cameraNamespace scopes ids derived for file cameras that do not declare one
var cameraNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("flood-monitor/camera"))

// derivedID is stable across loads so alert state and detections stay attached
// to the same camera. The stream source is preferred over the display name.
func derivedID(c Camera) string {
	key := strings.TrimSpace(c.StreamSource)
	if key == "" {
		key = strings.TrimSpace(c.Name)
	}
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(cameraNamespace, []byte(key)).String()
}

// Parse parses a YAML camera list. Cameras without an id get one derived from
// their stream source (or name), and cameras without a status are treated as active.
func Parse(data []byte) (*FileRegistry, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse camera file: %w", err)
	}

	cameras := make([]Camera, 0, len(doc.Cameras))
	seen := make(map[string]int, len(doc.Cameras))
	for i, fc := range doc.Cameras {
		c := fc.Camera
		if c.ID == "" {
			c.ID = derivedID(c)
			if c.ID == "" {
				return nil, fmt.Errorf("camera %d: needs an id, a stream or a name", i)
			}
		}
		if prev, ok := seen[c.ID]; ok {
			return nil, fmt.Errorf("camera %d (%s): duplicate id %s, first used by camera %d", i, c.Name, c.ID, prev)
		}
		seen[c.ID] = i
		c.Status = StatusActive
		if fc.Status != "" {
			status, err := ParseStatus(fc.Status)
			if err != nil {
				return nil, fmt.Errorf("camera %d (%s): %w", i, c.Name, err)
			}
			c.Status = status
		}
		cameras = append(cameras, c)
	}

	return &FileRegistry{cameras: cameras}, nil
}

// All returns every camera in the file regardless of status.
func (r *FileRegistry) All() []Camera {
	out := make([]Camera, len(r.cameras))
	copy(out, r.cameras)
	return out
}

func (r *FileRegistry) ListActive(ctx context.Context) ([]Camera, error) {
	var active []Camera
	for _, c := range r.cameras {
		if c.Status == StatusActive {
			active = append(active, c)
		}
	}
	return active, nil
}
