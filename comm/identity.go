package comm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentmesh/commcore/object"
)

// loadOrCreateIdentity reads the manager's own Component objectId from
// a file in dataDir, or generates a fresh UUID v4 and persists it if
// the file does not exist. The identity's objectId is kept stable
// across restarts — the same stability teacher's LoadOrCreateInstanceID
// gives HA device identity — even if name/objectType change between
// runs (spec §3 "Component ... objectId serves as the sender identity
// on the wire").
func loadOrCreateIdentity(dataDir, objectType, name string) (object.Component, error) {
	if dataDir == "" {
		return object.NewComponent(objectType, name)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return object.Component{}, fmt.Errorf("comm: create data dir %s: %w", dataDir, err)
	}

	path := filepath.Join(dataDir, "identity_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			c := object.Component{Object: object.Object{
				ObjectID:   id,
				CoreType:   object.CoreComponent,
				ObjectType: objectType,
				Name:       name,
			}}
			if err := c.Validate(); err != nil {
				return object.Component{}, fmt.Errorf("comm: persisted identity %s is invalid: %w", path, err)
			}
			return c, nil
		}
	}

	c, err := object.NewComponent(objectType, name)
	if err != nil {
		return object.Component{}, err
	}
	if err := os.WriteFile(path, []byte(c.ObjectID+"\n"), 0o644); err != nil {
		return object.Component{}, fmt.Errorf("comm: persist identity to %s: %w", path, err)
	}
	return c, nil
}
