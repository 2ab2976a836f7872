package store

import "github.com/google/uuid"

// newID mints a new random identifier for workflows, nodes, edges,
// executions, and upload assets. Import-time ids (export/import,
// duplication) are remapped through the same generator so a re-imported
// workflow never reuses an exported id.
func newID() string {
	return uuid.NewString()
}
