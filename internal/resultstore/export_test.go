package resultstore

import "context"

// SetSchemaVersionForTest overwrites the stored schema version.
func SetSchemaVersionForTest(ctx context.Context, root string, version int) error {
	s, err := Open(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.db.ExecContext(ctx, "UPDATE schema_version SET version = ?", version)
	return err
}
