package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// readDocument loads one JSON document into out. Returns os.ErrNotExist when
// the document is absent.
func readDocument(root, collection, id string, out any) error {
	data, err := os.ReadFile(documentPath(root, collection, id))
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}

	return nil
}

// writeDocument persists one JSON document, creating the collection directory
// on first use.
func writeDocument(root, collection, id string, doc any) error {
	dir := filepath.Join(root, collection)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}

	return os.WriteFile(documentPath(root, collection, id), data, 0o644)
}

// listIDs returns the ids of every document in a collection.
func listIDs(root, collection string) ([]string, error) {
	dir := os.DirFS(filepath.Join(root, collection))

	files, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, file[:len(file)-len(".json")])
	}

	return ids, nil
}

func documentPath(root, collection, id string) string {
	return filepath.Join(root, collection, id+".json")
}
