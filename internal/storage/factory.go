package storage

// NewStorage creates the default storage backend
func NewStorage(dataDir string) (Storage, error) {
	return NewSQLiteStorage(dataDir)
}
