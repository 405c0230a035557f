package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opcost/internal"
	"opcost/internal/config"
	"opcost/internal/storage"
)

const (
	StatusRegistered = "registered"
	StatusProcessed  = "processed"
	StatusBlocked    = "blocked"
	StatusFailed     = "failed"
)

// ProcessingService runs the full flow for one OP file: read the grid,
// normalize rows, estimate sheet consumption and persist everything.
type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	logger *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, logger *zap.Logger) *ProcessingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingService{db: db, cfg: cfg, logger: logger}
}

// RegisterFile records a file in the database without processing it. A file
// whose hash has not changed keeps its current status.
func (s *ProcessingService) RegisterFile(path string) (internal.OpFileRow, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return internal.OpFileRow{}, err
	}

	hash, err := hashFile(abs)
	if err != nil {
		return internal.OpFileRow{}, fmt.Errorf("failed to hash %s: %w", abs, err)
	}

	existing, err := s.db.GetOpFileByPath(abs)
	if err != nil {
		return internal.OpFileRow{}, err
	}
	if existing != nil && existing.Hash == hash {
		return *existing, nil
	}

	status := StatusRegistered
	row, err := s.db.UpsertOpFile(abs, filepath.Base(abs), "", hash, status)
	if err != nil {
		return internal.OpFileRow{}, err
	}
	if existing != nil {
		// Content changed, force a reprocess.
		if err := s.db.UpdateOpFileStatus(row.ID, StatusRegistered); err != nil {
			return internal.OpFileRow{}, err
		}
		row.Status = StatusRegistered
	}

	s.logger.Info("registered op file",
		zap.Int("fileId", row.ID),
		zap.String("filename", row.Filename))
	return row, nil
}

// ProcessFile normalizes and estimates one registered file. Processing
// failures mark the file failed and return the error; a completed estimate
// that cannot be finalized marks the file blocked instead of processed.
func (s *ProcessingService) ProcessFile(fileID int, override *internal.EstimationOverride) (*internal.EstimationResult, error) {
	traceID := uuid.NewString()
	logger := s.logger.With(zap.String("traceId", traceID), zap.Int("fileId", fileID))
	started := time.Now()

	file, err := s.db.GetOpFileByID(fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("op file not found: %d", fileID)
	}

	result, timings, err := s.run(file, override, logger)
	if err != nil {
		_ = s.db.UpdateOpFileStatus(fileID, StatusFailed)
		logger.Error("processing failed", zap.Error(err))
		return nil, err
	}

	status := StatusProcessed
	if !result.CanFinalize {
		status = StatusBlocked
	}
	if err := s.db.UpdateOpFileStatus(fileID, status); err != nil {
		return nil, err
	}

	timings["total"] = time.Since(started).Seconds()
	counts := map[string]int{
		"items":    len(result.Classifications),
		"groups":   len(result.Groups),
		"excluded": len(result.Excluded),
		"pending":  len(result.Pending),
	}
	if err := s.db.InsertRun(traceID, fileID, timings, counts); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}

	logger.Info("processed op file",
		zap.String("status", status),
		zap.Int("items", len(result.Classifications)),
		zap.Int("groups", len(result.Groups)),
		zap.Bool("canFinalize", result.CanFinalize),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (s *ProcessingService) run(file *internal.OpFileRow, override *internal.EstimationOverride, logger *zap.Logger) (*internal.EstimationResult, map[string]float64, error) {
	timings := map[string]float64{}

	readStart := time.Now()
	grid, sheetName, err := GridFromFile(file.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", file.Filename, err)
	}
	timings["read"] = time.Since(readStart).Seconds()

	opts, err := s.normalizeOptions()
	if err != nil {
		return nil, nil, err
	}

	normStart := time.Now()
	normalized := NormalizeGrid(grid, sheetName, opts)
	timings["normalize"] = time.Since(normStart).Seconds()
	if len(normalized.Items) == 0 {
		return nil, nil, fmt.Errorf("no items found in %s", file.Filename)
	}

	specs, err := s.db.ListSpecs()
	if err != nil {
		return nil, nil, err
	}
	rules, err := s.loadRules()
	if err != nil {
		return nil, nil, err
	}

	estStart := time.Now()
	estimator := NewEstimator(specs, rules)
	result := estimator.Estimate(normalized.Items, override)
	timings["estimate"] = time.Since(estStart).Seconds()

	if err := s.db.ClearFileProcessing(file.ID); err != nil {
		return nil, nil, err
	}
	if err := s.db.InsertItems(file.ID, normalized.Items); err != nil {
		return nil, nil, err
	}
	if err := s.db.InsertEstimation(file.ID, result); err != nil {
		return nil, nil, err
	}

	logger.Debug("normalized grid",
		zap.Int("headerRow", normalized.HeaderRowIndex),
		zap.Int("totalRows", normalized.Summary.TotalRows),
		zap.Int("parsedItems", normalized.Summary.ParsedItems))
	return &result, timings, nil
}

// ProcessPending processes up to limit registered files and returns how many
// were attempted. Individual failures are logged and do not stop the batch.
func (s *ProcessingService) ProcessPending(limit int) (int, error) {
	files, err := s.db.ListOpFilesByStatus(StatusRegistered, limit)
	if err != nil {
		return 0, err
	}

	for _, file := range files {
		if _, err := s.ProcessFile(file.ID, nil); err != nil {
			s.logger.Warn("skipping file after failure",
				zap.String("filename", file.Filename),
				zap.Error(err))
		}
	}
	return len(files), nil
}

func (s *ProcessingService) normalizeOptions() (NormalizeOptions, error) {
	opts := NormalizeOptions{
		ProbeRows:         s.cfg.HeaderProbeRows,
		FallbackHeaderRow: s.cfg.FallbackHeaderRow,
	}
	if s.cfg.SynonymsPath != "" {
		synonyms, err := LoadSynonyms(s.cfg.SynonymsPath)
		if err != nil {
			return opts, fmt.Errorf("failed to load header synonyms: %w", err)
		}
		opts.Synonyms = synonyms
	}
	return opts, nil
}

func (s *ProcessingService) loadRules() ([]internal.ProcessRule, error) {
	rules, err := s.db.ListRules()
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		return rules, nil
	}
	if s.cfg.RulesPath != "" {
		return LoadRulesJSON(s.cfg.RulesPath)
	}
	return nil, nil
}

func hashFile(path string) (string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
