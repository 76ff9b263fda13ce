package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ovoronin/audiobook-manager/internal/config"
	domain "github.com/ovoronin/audiobook-manager/internal/domain/catalog"
	"github.com/ovoronin/audiobook-manager/internal/logger"
	repository "github.com/ovoronin/audiobook-manager/internal/repository/catalog"
)

// ImportOptions controls a catalog import run.
type ImportOptions struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// File is the JSON file holding search results to import.
	File string
}

// ErrNothingToImport is returned when the import file holds no results.
var ErrNothingToImport = errors.New("no results to import")

// importedResult is the JSON shape of one search result in an import file.
type importedResult struct {
	Query       string   `json:"query"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Narrator    string   `json:"narrator"`
	Size        int64    `json:"size"`
	Seeders     int      `json:"seeders"`
	Leechers    int      `json:"leechers"`
	DownloadURL string   `json:"download_url"`
	MagnetURL   string   `json:"magnet_url"`
	Indexer     string   `json:"indexer"`
	Quality     string   `json:"quality"`
	Format      string   `json:"format"`
	Languages   []string `json:"languages"`
	Score       float64  `json:"score"`
	AgeDays     float64  `json:"age_days"`
}

// Import loads search results from a JSON file into the catalog, so results
// gathered outside the server (indexer exports, other deployments) can feed
// the download queue.
func Import(ctx context.Context, opts *ImportOptions) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "abm-server")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	contents, err := os.ReadFile(filepath.Clean(opts.File))
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	var imported []importedResult
	if err := json.Unmarshal(contents, &imported); err != nil {
		return fmt.Errorf("parse import file: %w", err)
	}

	if len(imported) == 0 {
		return ErrNothingToImport
	}

	store, err := repository.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	now := time.Now()
	results := make([]*domain.SearchResult, 0, len(imported))

	for _, record := range imported {
		results = append(results, &domain.SearchResult{
			Query:       record.Query,
			Title:       record.Title,
			Author:      record.Author,
			Narrator:    record.Narrator,
			Size:        record.Size,
			Seeders:     record.Seeders,
			Leechers:    record.Leechers,
			DownloadURL: record.DownloadURL,
			MagnetURL:   record.MagnetURL,
			Indexer:     record.Indexer,
			Quality:     record.Quality,
			Format:      record.Format,
			Languages:   record.Languages,
			Score:       record.Score,
			AgeDays:     record.AgeDays,
			CreatedAt:   now,
		})
	}

	if err := store.SaveSearchResults(ctx, results); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Imported search results", "count", len(results), "file", opts.File)

	return nil
}
