// Package catalog persists search results and download jobs in SQLite
// through gorm. The schema is created in place on open (AutoMigrate), and
// the Repository interface keeps callers independent of the storage engine.
package catalog
