package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// GENERIC BATCH INSERTER
// Optimized for high-throughput periodic snapshot writes (e.g. user_stats),
// using multi-row INSERT instead of one statement per row.
// =============================================================================

// BatchInserterConfig configures the batch inserter.
type BatchInserterConfig struct {
	BatchSize     int           // Max rows per statement (default: 1000)
	InsertTimeout time.Duration // Per-batch timeout (default: 30s)
}

// DefaultBatchInserterConfig returns production defaults.
func DefaultBatchInserterConfig() BatchInserterConfig {
	return BatchInserterConfig{
		BatchSize:     1000,
		InsertTimeout: 30 * time.Second,
	}
}

// execer is the minimal surface GenericBatchInserter needs from its backing
// connection; both *ConnectionPool and an sqlx.DB wrapped accordingly satisfy
// it.
type execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// GenericBatchInserter builds and executes a single multi-row INSERT for any
// table, splitting into BatchSize-row statements when the row count exceeds
// it.
type GenericBatchInserter struct {
	exec   execer
	config BatchInserterConfig
}

// NewGenericBatchInserter wires a batch inserter against exec.
func NewGenericBatchInserter(exec execer, config BatchInserterConfig) *GenericBatchInserter {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.InsertTimeout <= 0 {
		config.InsertTimeout = 30 * time.Second
	}
	return &GenericBatchInserter{exec: exec, config: config}
}

// InsertBatch inserts every row in values into table, chunked at config's
// BatchSize, and returns the total number of rows affected.
func (gbi *GenericBatchInserter) InsertBatch(
	ctx context.Context,
	table string,
	columns []string,
	values [][]interface{},
) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}

	colCount := len(columns)
	for i, row := range values {
		if len(row) != colCount {
			return 0, fmt.Errorf("row %d has %d values, expected %d", i, len(row), colCount)
		}
	}

	var total int64
	for start := 0; start < len(values); start += gbi.config.BatchSize {
		end := start + gbi.config.BatchSize
		if end > len(values) {
			end = len(values)
		}

		chunkCtx, cancel := context.WithTimeout(ctx, gbi.config.InsertTimeout)
		n, err := gbi.insertChunk(chunkCtx, table, columns, values[start:end])
		cancel()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (gbi *GenericBatchInserter) insertChunk(
	ctx context.Context,
	table string,
	columns []string,
	values [][]interface{},
) (int64, error) {
	colCount := len(columns)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(values)*colCount)
	for i, row := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < colCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("$%d", i*colCount+j+1))
		}
		sb.WriteString(")")
		args = append(args, row...)
	}

	result, err := gbi.exec.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("batch insert into %s failed: %w", table, err)
	}
	return result.RowsAffected()
}
