package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"

	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/ops"
)

func osFs() afero.Fs { return afero.NewOsFs() }

type exportRequest struct {
	Path    string // optional, default: <BaseDir>/exports/<form>-<timestamp>.jsonl
	BaseDir string
	Input   ops.ExportInput
}

// exportResult is ops.ExportOutput plus where the file went.
type exportResult struct {
	Path string `json:"path"`
	*ops.ExportOutput
}

// exportDrafts writes a JSONL export to a temp file beside the target and
// renames it into place, so an existing export survives a failed run.
func exportDrafts(ctx context.Context, fsys afero.Fs, database *sql.DB, req exportRequest) (*exportResult, error) {
	formName := strings.TrimSpace(req.Input.Form)
	if formName != "" {
		if _, ok := form.Lookup(formName); !ok {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown form %q", formName))
		}
	}

	exportPath := req.Path
	if exportPath == "" {
		if req.BaseDir == "" {
			return nil, errors.NewInvalidRequest("path is required")
		}
		exportPath = defaultExportPath(req.BaseDir, formName, time.Now())
	}

	if err := fsys.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	tempPath := exportPath + "." + strings.ToLower(ulid.Make().String()) + ".tmp"
	file, err := fsys.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	output, err := ops.Export(ctx, database, file, req.Input)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = errors.NewInternal(cerr)
	}
	if err != nil {
		_ = fsys.Remove(tempPath)
		return nil, err
	}

	if err := fsys.Rename(tempPath, exportPath); err != nil {
		_ = fsys.Remove(tempPath)
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export file: %w", err))
	}
	return &exportResult{Path: exportPath, ExportOutput: output}, nil
}

// defaultExportPath returns <baseDir>/exports/<form|all>-<timestamp>.jsonl.
func defaultExportPath(baseDir, formName string, now time.Time) string {
	name := "all"
	if formName != "" {
		name = formName
	}
	filename := fmt.Sprintf("%s-%s.jsonl", name, now.Format("2006-01-02T150405"))
	return filepath.Join(baseDir, "exports", filename)
}
