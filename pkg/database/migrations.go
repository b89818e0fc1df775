package database

import (
	"fmt"
	"sort"

	schemafs "squeegee/pkg/database/sql"
	"squeegee/pkg/logging"
)

// ApplySchema executes the embedded schema files in lexical order. All
// statements are idempotent (CREATE IF NOT EXISTS / ON CONFLICT DO NOTHING)
// so this runs safely at every startup.
func ApplySchema(db PostgresConn, logger logging.Logger) error {
	entries, err := schemafs.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := schemafs.Content.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Debug("Applied schema file")
	}

	logger.WithField("files", len(names)).Info("Database schema applied")
	return nil
}
