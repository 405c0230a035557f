package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"opcost/internal/config"
	"opcost/internal/pipeline"
	"opcost/internal/storage"
)

// Service polls the inbox directory for OP spreadsheets, registers new or
// changed files and runs them through the processing pipeline.
type Service struct {
	db        *storage.DB
	cfg       config.Config
	logger    *zap.Logger
	processor *pipeline.ProcessingService
}

func NewService(db *storage.DB, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        db,
		cfg:       cfg,
		logger:    logger,
		processor: pipeline.NewProcessingService(db, cfg, logger),
	}
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("watcher started",
		zap.String("inbox", s.cfg.InboxDir),
		zap.Int("intervalSec", s.cfg.WatchIntervalSec))

	for {
		if err := s.runCycle(); err != nil {
			s.logger.Error("watcher cycle error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.WatchIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle() error {
	registered, err := s.scanInbox()
	if err != nil {
		return err
	}

	processed, err := s.processor.ProcessPending(s.cfg.WatchBatch)
	if err != nil {
		return err
	}

	exported := 0
	if s.cfg.WatchAutoExport {
		exported, err = s.exportProcessed()
		if err != nil {
			return err
		}
	}

	s.logger.Info("watcher cycle done",
		zap.Int("registered", registered),
		zap.Int("processed", processed),
		zap.Int("exported", exported))
	return nil
}

func (s *Service) scanInbox() (int, error) {
	entries, err := os.ReadDir(s.cfg.InboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	registered := 0
	for _, entry := range entries {
		if entry.IsDir() || !supportedFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.cfg.InboxDir, entry.Name())
		row, err := s.processor.RegisterFile(path)
		if err != nil {
			s.logger.Warn("failed to register file",
				zap.String("filename", entry.Name()),
				zap.Error(err))
			continue
		}
		if row.Status == pipeline.StatusRegistered {
			registered++
		}
	}
	return registered, nil
}

func (s *Service) exportProcessed() (int, error) {
	files, err := s.db.ListOpFilesByStatus(pipeline.StatusProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, file := range files {
		result, err := s.db.GetLatestEstimation(file.ID)
		if err != nil {
			return exported, err
		}
		if result == nil {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", file.ID, sanitizeFilename(file.Filename))
		outputPath := filepath.Join(s.cfg.OutputDir, "watch", filename)
		if err := pipeline.ExportEstimationToXLSX(*result, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateOpFileStatus(file.ID, "exported"); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func supportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls", ".html", ".htm", ".pdf":
		return true
	default:
		return false
	}
}

func sanitizeFilename(input string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	repl := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(base)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
