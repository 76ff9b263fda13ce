package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovoronin/audiobook-manager/internal/config"
	repository "github.com/ovoronin/audiobook-manager/internal/repository/catalog"
)

// importFixture lays out a settings file and database location for an import.
func importFixture(t *testing.T) (settingsPath, databasePath string) {
	t.Helper()

	dir := t.TempDir()
	databasePath = filepath.Join(dir, "data", "catalog.db")

	settingsPath = filepath.Join(dir, "settings.yaml")
	require.NoError(t, config.Save(settingsPath, &config.Config{
		Database: &config.DatabaseConfig{Path: databasePath},
	}))

	return settingsPath, databasePath
}

// TestImport_LoadsResultsIntoCatalog feeds a JSON export into the catalog.
func TestImport_LoadsResultsIntoCatalog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	settingsPath, databasePath := importFixture(t)

	importPath := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, writeFile(importPath, `[
		{
			"query": "hyperion",
			"title": "Hyperion",
			"author": "Dan Simmons",
			"download_url": "http://example.com/hyperion.m4b",
			"languages": ["english"],
			"score": 0.9
		},
		{
			"query": "hyperion",
			"title": "The Fall of Hyperion",
			"author": "Dan Simmons",
			"score": 0.7
		}
	]`))

	require.NoError(t, Import(ctx, &ImportOptions{
		ConfigPath: settingsPath,
		File:       importPath,
	}))

	store, err := repository.Open(databasePath)
	require.NoError(t, err)

	results, err := store.SearchResults(ctx, "hyperion", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "Hyperion", results[0].Title)
	require.Equal(t, []string{"english"}, results[0].Languages)
}

// TestImport_EmptyFileFails refuses files that hold no results.
func TestImport_EmptyFileFails(t *testing.T) {
	t.Parallel()

	settingsPath, _ := importFixture(t)

	importPath := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, writeFile(importPath, `[]`))

	err := Import(context.Background(), &ImportOptions{
		ConfigPath: settingsPath,
		File:       importPath,
	})
	require.ErrorIs(t, err, ErrNothingToImport)
}

// TestImport_MalformedFileFails reports parse failures.
func TestImport_MalformedFileFails(t *testing.T) {
	t.Parallel()

	settingsPath, _ := importFixture(t)

	importPath := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, writeFile(importPath, `{not json`))

	err := Import(context.Background(), &ImportOptions{
		ConfigPath: settingsPath,
		File:       importPath,
	})
	require.Error(t, err)
}
