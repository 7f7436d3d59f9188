package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/mercado-scraper/internal/models"
)

const timestampLayout = "20060102_150405"

var ErrEmptyExport = errors.New("nothing to export")

// ExportInfo describes the run an export was taken from.
type ExportInfo struct {
	Total       int            `json:"total"`
	CollectedAt time.Time      `json:"collected_at"`
	SearchType  string         `json:"search_type"`
	RunID       uuid.UUID      `json:"run_id"`
	Params      map[string]any `json:"params,omitempty"`
}

// Export is the on-disk document for one scrape run.
type Export struct {
	Info     ExportInfo      `json:"info"`
	Products []models.Record `json:"products"`
}

// NewExport numbers products from 1 in the order given.
func NewExport(runID uuid.UUID, searchType string, params map[string]any, products []*models.Product) *Export {
	return &Export{
		Info: ExportInfo{
			Total:       len(products),
			CollectedAt: time.Now(),
			SearchType:  searchType,
			RunID:       runID,
			Params:      params,
		},
		Products: models.Records(products),
	}
}

// ExportFilename returns dir/produtos_<type>_<timestamp>.json.
func ExportFilename(dir, searchType string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("produtos_%s_%s.json", searchType, t.Format(timestampLayout)))
}

// URLListFilename returns dir/urls_produtos_<timestamp>.txt.
func URLListFilename(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("urls_produtos_%s.txt", t.Format(timestampLayout)))
}

// SaveExport writes the document to path, creating parent directories.
func SaveExport(path string, e *Export) error {
	if e == nil || len(e.Products) == 0 {
		return ErrEmptyExport
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return writeAtomic(path, data)
}

// LoadExport reads an export and rebuilds its products.
func LoadExport(path string) (*Export, []*models.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var e Export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, nil, fmt.Errorf("failed to decode export %s: %w", path, err)
	}

	products, err := models.ProductsFromRecords(e.Products)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid product in export %s: %w", path, err)
	}
	return &e, products, nil
}

// SaveURLList writes a numbered plain-text list of product names and links.
func SaveURLList(path string, products []*models.Product) error {
	if len(products) == 0 {
		return ErrEmptyExport
	}

	var buf bytes.Buffer
	buf.WriteString("# URLs dos Produtos do Mercado Livre\n")
	fmt.Fprintf(&buf, "# Extraído em: %s\n", time.Now().Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&buf, "# Total de produtos: %d\n\n", len(products))

	for i, p := range products {
		if p == nil || strings.TrimSpace(p.URL) == "" {
			continue
		}
		fmt.Fprintf(&buf, "%2d. %s\n    %s\n\n", i+1, p.Name, p.URL)
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	// Write to temp file first for atomicity
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return nil
}
