package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OperationType represents the type of operation performed
type OperationType string

const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourcePrescription ResourceType = "prescription"
	ResourceTagArchive   ResourceType = "tag_archive"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	UserID         string
	OperationType  OperationType
	ResourceType   ResourceType
	ResourceID     string
	Timestamp      time.Time
	IPAddress      string
	UserAgent      string
	AdditionalData map[string]interface{}
}

// Logger writes audit entries to zap and, when a pool is set, to Postgres
type Logger struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewLogger creates a new audit logger. db may be nil to log only.
func NewLogger(db *pgxpool.Pool, logger *zap.Logger) *Logger {
	return &Logger{
		db:     db,
		logger: logger,
	}
}

// Log creates an audit log entry
func (l *Logger) Log(ctx context.Context, entry AuditLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.logger.Info("audit log entry",
		zap.String("user_id", entry.UserID),
		zap.String("operation", string(entry.OperationType)),
		zap.String("resource_type", string(entry.ResourceType)),
		zap.String("resource_id", entry.ResourceID),
		zap.Time("timestamp", entry.Timestamp),
		zap.Any("data", entry.AdditionalData),
	)

	if l.db == nil {
		return nil
	}

	query := `
		INSERT INTO audit_logs (
			user_id, operation_type, resource_type, resource_id,
			timestamp, ip_address, user_agent, additional_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := l.db.Exec(ctx, query,
		entry.UserID,
		entry.OperationType,
		entry.ResourceType,
		entry.ResourceID,
		entry.Timestamp,
		entry.IPAddress,
		entry.UserAgent,
		entry.AdditionalData,
	)
	if err != nil {
		l.logger.Error("failed to write audit log to database",
			zap.Error(err),
			zap.String("user_id", entry.UserID),
			zap.String("operation", string(entry.OperationType)),
			zap.String("resource_type", string(entry.ResourceType)),
		)
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	return nil
}

// GetAuditLogs retrieves the newest audit logs for a user
func (l *Logger) GetAuditLogs(ctx context.Context, userID string, limit int) ([]AuditLog, error) {
	if l.db == nil {
		return nil, nil
	}

	query := `
		SELECT user_id, operation_type, resource_type, resource_id,
		       timestamp, ip_address, user_agent, additional_data
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`

	rows, err := l.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditLog, error) {
		var log AuditLog
		err := row.Scan(
			&log.UserID,
			&log.OperationType,
			&log.ResourceType,
			&log.ResourceID,
			&log.Timestamp,
			&log.IPAddress,
			&log.UserAgent,
			&log.AdditionalData,
		)
		return log, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit logs: %w", err)
	}

	return logs, nil
}
