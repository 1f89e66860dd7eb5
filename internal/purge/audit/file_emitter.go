package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
)

const (
	DefaultMaxSize    = 50 // MB
	DefaultMaxAge     = 30 // days
	DefaultMaxBackups = 10
	DefaultTemplate   = "{timestamp}\t{trigger_id}\t{trigger}\t{kind}\t{zone_id}\t{url_count}\t{outcome}\t{status_code}\t{duration}\t{message}"
)

// FileEmitter appends one formatted line per purge to a rotated file.
type FileEmitter struct {
	writer    *lumberjack.Logger
	formatter *TemplateFormatter
	logger    *zap.Logger
}

func NewFileEmitter(cfg configtypes.AuditFileConfig, logger *zap.Logger) (*FileEmitter, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory %s: %w", dir, err)
	}

	template := cfg.Template
	if template == "" {
		template = DefaultTemplate
	}
	formatter, err := NewTemplateFormatter(template)
	if err != nil {
		return nil, fmt.Errorf("invalid template for audit log %s: %w", cfg.Path, err)
	}

	return &FileEmitter{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    orDefault(cfg.Rotation.MaxSize, DefaultMaxSize),
			MaxAge:     orDefault(cfg.Rotation.MaxAge, DefaultMaxAge),
			MaxBackups: orDefault(cfg.Rotation.MaxBackups, DefaultMaxBackups),
			Compress:   cfg.Rotation.Compress,
		},
		formatter: formatter,
		logger:    logger,
	}, nil
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func (f *FileEmitter) Emit(event *PurgeEvent) {
	line := f.formatter.Format(event)
	if _, err := f.writer.Write([]byte(line + "\n")); err != nil {
		f.logger.Warn("Failed to write purge audit line",
			zap.String("trigger_id", event.TriggerID),
			zap.Error(err))
	}
}

func (f *FileEmitter) Close() error {
	return f.writer.Close()
}
