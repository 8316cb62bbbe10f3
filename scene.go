package tgengine

import (
	"fmt"

	"github.com/google/uuid"
)

// Name is a human readable label carried over from scene definitions.
type Name struct {
	Value string
}

// SceneDef defines the initial state of a scene as a flat node list.
type SceneDef struct {
	Nodes []NodeDef
}

// NodeDef defines a single scene node. A zero Parent makes the node a root.
// Transform must be fully set; a zero Scale collapses the node.
type NodeDef struct {
	ID        uuid.UUID
	Parent    uuid.UUID
	Name      string
	Transform Transform
	Drawable  bool
}

// LoadScene stages one entity per node and returns the id mapping. Parents
// may appear after their children in Nodes. Nothing is staged when the
// definition is invalid.
func LoadScene(cmd *Commands, scene *SceneDef) (map[uuid.UUID]EntityId, error) {
	known := make(map[uuid.UUID]struct{}, len(scene.Nodes))
	for i, node := range scene.Nodes {
		if node.ID == uuid.Nil {
			return nil, fmt.Errorf("scene node %d (%q) has no id", i, node.Name)
		}
		if _, dup := known[node.ID]; dup {
			return nil, fmt.Errorf("scene node %s defined twice", node.ID)
		}
		known[node.ID] = struct{}{}
	}
	for _, node := range scene.Nodes {
		if node.Parent == uuid.Nil {
			continue
		}
		if node.Parent == node.ID {
			return nil, fmt.Errorf("scene node %s is its own parent", node.ID)
		}
		if _, ok := known[node.Parent]; !ok {
			return nil, fmt.Errorf("scene node %s: unknown parent %s", node.ID, node.Parent)
		}
	}

	ids := make(map[uuid.UUID]EntityId, len(scene.Nodes))
	for _, node := range scene.Nodes {
		comps := TransformBundle(node.Transform.Matrix())
		transform := node.Transform
		comps = append(comps, &transform, &Name{Value: node.Name})
		if node.Drawable {
			comps = append(comps, &Drawable{})
		}
		ids[node.ID] = cmd.AddEntity(comps...)
	}
	for _, node := range scene.Nodes {
		if node.Parent == uuid.Nil {
			continue
		}
		SetParent(cmd, ids[node.ID], ids[node.Parent])
	}

	cmd.App().Logger().Infof("scene: staged %d nodes", len(scene.Nodes))
	return ids, nil
}
