package optionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
)

var tablePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// MySQLStore reads and writes the WordPress options table directly.
// Added options are stored with autoload disabled.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger

	getStmt    *sql.Stmt
	addStmt    *sql.Stmt
	deleteStmt *sql.Stmt
}

func NewMySQLStore(ctx context.Context, cfg configtypes.OptionMySQLConfig, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	store, err := NewMySQLStoreWithDB(db, cfg.TablePrefix, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewMySQLStoreWithDB prepares the option statements against an open handle.
func NewMySQLStoreWithDB(db *sql.DB, tablePrefix string, logger *zap.Logger) (*MySQLStore, error) {
	if !tablePrefixPattern.MatchString(tablePrefix) {
		return nil, fmt.Errorf("invalid table prefix: %q", tablePrefix)
	}
	table := tablePrefix + "options"

	s := &MySQLStore{db: db, logger: logger}
	var err error
	if s.getStmt, err = db.Prepare("SELECT option_value FROM " + table + " WHERE option_name = ? LIMIT 1"); err != nil {
		return nil, fmt.Errorf("failed to prepare option select: %w", err)
	}
	if s.addStmt, err = db.Prepare("INSERT IGNORE INTO " + table + " (option_name, option_value, autoload) VALUES (?, ?, 'no')"); err != nil {
		return nil, fmt.Errorf("failed to prepare option insert: %w", err)
	}
	if s.deleteStmt, err = db.Prepare("DELETE FROM " + table + " WHERE option_name = ?"); err != nil {
		return nil, fmt.Errorf("failed to prepare option delete: %w", err)
	}

	logger.Debug("MySQL option store prepared", zap.String("table", table))
	return s, nil
}

func (s *MySQLStore) Get(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read option %s: %w", name, err)
	}
	return value, true, nil
}

func (s *MySQLStore) Add(ctx context.Context, name, value string) (bool, error) {
	res, err := s.addStmt.ExecContext(ctx, name, value)
	if err != nil {
		return false, fmt.Errorf("failed to add option %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add option %s: %w", name, err)
	}
	return affected > 0, nil
}

func (s *MySQLStore) Delete(ctx context.Context, name string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, name); err != nil {
		return fmt.Errorf("failed to delete option %s: %w", name, err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.addStmt, s.deleteStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close mysql option store", zap.Error(err))
		return err
	}
	return nil
}
