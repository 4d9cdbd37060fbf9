package interfaces

import "encoding/json"

// -----------------------------------------------------------------------------
// IStore persists flat key->record namespaces. Every Save rewrites the whole namespace.
// -----------------------------------------------------------------------------

type IStore interface {

	// -----------------------------------------------------------------------------

	// Load returns every record of a namespace. A namespace never written loads as empty.
	Load(namespace string) (map[string]json.RawMessage, error)

	// -----------------------------------------------------------------------------

	// Save replaces the namespace content with records.
	Save(namespace string, records map[string]json.RawMessage) error

	// -----------------------------------------------------------------------------

	// Close releases the underlying resources
	Close() error
}
