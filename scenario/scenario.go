// Package scenario loads mobility scenarios from YAML: the segments of the
// emulated network, the nodes attached to each, and the mobility models
// configured on them.
package scenario

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haveagr8day/core/core"
	"github.com/haveagr8day/core/internal/logging"
)

// File is the root of a scenario document.
type File struct {
	Session  Session   `yaml:"session"`
	Segments []Segment `yaml:"segments"`
}

// Session carries session-level attributes for scripted models.
type Session struct {
	File   string `yaml:"file"`
	User   string `yaml:"user"`
	Dir    string `yaml:"dir"`
	Master bool   `yaml:"master"`
}

// Segment declares one wireless segment, its nodes, and its models.
type Segment struct {
	ID     int     `yaml:"id"`
	Name   string  `yaml:"name"`
	Nodes  []Node  `yaml:"nodes"`
	Models []Model `yaml:"models"`
}

// Node declares a node and its endpoint on the enclosing segment. X/Y/Z are
// optional starting coordinates.
type Node struct {
	ID       int      `yaml:"id"`
	Name     string   `yaml:"name"`
	Endpoint string   `yaml:"endpoint"`
	X        *float64 `yaml:"x"`
	Y        *float64 `yaml:"y"`
	Z        *float64 `yaml:"z"`
}

// Model names a mobility or wireless model with its parameters.
type Model struct {
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params"`
}

// Load reads and parses a scenario file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &f, nil
}

// SessionInfo converts the session block for model construction.
func (f *File) SessionInfo() core.SessionInfo {
	return core.SessionInfo{
		FileName: f.Session.File,
		User:     f.Session.User,
		Dir:      f.Session.Dir,
		Master:   f.Session.Master,
	}
}

// Apply populates the registry and stores model configuration with the
// coordinator. A malformed segment is logged and skipped; the rest of the
// scenario still applies.
func Apply(f *File, reg *core.Registry, coord *core.Coordinator, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	ctx := context.Background()

	for _, s := range f.Segments {
		if s.ID == 0 || len(s.Nodes) == 0 {
			log.Warn(ctx, "skipping malformed scenario segment",
				logging.Int("segment", s.ID),
				logging.String("name", s.Name))
			continue
		}

		seg := core.NewSegment(s.ID, s.Name)
		if err := reg.AddSegment(seg); err != nil {
			log.Warn(ctx, "skipping duplicate scenario segment",
				logging.Int("segment", s.ID),
				logging.Error(err))
			continue
		}

		for _, n := range s.Nodes {
			node := reg.Node(n.ID)
			if node == nil {
				node = core.NewNode(n.ID, n.Name)
				if err := reg.AddNode(node); err != nil {
					log.Warn(ctx, "scenario node rejected",
						logging.Int("node", n.ID),
						logging.Error(err))
					continue
				}
			}
			if n.X != nil && n.Y != nil {
				pos := core.PlanarPosition(*n.X, *n.Y)
				if n.Z != nil {
					pos = core.SpatialPosition(*n.X, *n.Y, *n.Z)
				}
				node.SetPosition(pos)
			}

			epID := n.Endpoint
			if epID == "" {
				epID = fmt.Sprintf("%s-%d", seg.Name, n.ID)
			}
			if err := seg.Attach(&core.Endpoint{ID: epID, Node: node}); err != nil {
				log.Warn(ctx, "scenario endpoint rejected",
					logging.Int("segment", s.ID),
					logging.String("endpoint", epID),
					logging.Error(err))
			}
		}

		configs := make([]core.ModelConfig, 0, len(s.Models))
		for _, m := range s.Models {
			if m.Name == "" {
				log.Warn(ctx, "skipping unnamed scenario model",
					logging.Int("segment", s.ID))
				continue
			}
			configs = append(configs, core.ModelConfig{
				Model:  m.Name,
				Values: core.Values(m.Params),
			})
		}
		if len(configs) > 0 {
			coord.SetConfig(s.ID, configs)
		}
	}
	return nil
}
