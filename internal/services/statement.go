package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/papertrade/apiserver/types"
	"go.uber.org/zap"
)

const statementContentType = "text/csv"

// ErrExportDisabled is returned when no object storage is configured.
var ErrExportDisabled = errors.New("statement export is not configured")

// StatementStorage is the subset of object storage used for exports.
type StatementStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// StatementService renders a user's ledger as CSV.
type StatementService struct {
	ledger  LedgerRepository
	storage StatementStorage
	now     func() time.Time
}

// NewStatementService builds the exporter. storage may be nil, in which case
// Export returns ErrExportDisabled.
func NewStatementService(ledger LedgerRepository, storage StatementStorage) *StatementService {
	return &StatementService{
		ledger:  ledger,
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var statementHeader = []string{"id", "time", "type", "symbol", "name", "shares", "price", "amount"}

// Write streams the user's ledger to w in execution order.
func (s *StatementService) Write(ctx context.Context, userID int, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(statementHeader); err != nil {
		return 0, err
	}

	rows := 0
	for entry, err := range s.ledger.Transactions(ctx, userID) {
		if err != nil {
			return rows, err
		}
		record := []string{
			strconv.FormatInt(entry.ID, 10),
			entry.Time.Format(time.RFC3339Nano),
			string(entry.Type),
			entry.Symbol,
			entry.Name,
			strconv.FormatInt(entry.Shares, 10),
			entry.Price.String(),
			entry.Amount().String(),
		}
		if err := cw.Write(record); err != nil {
			return rows, err
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}

// Export uploads the user's statement and returns its object key.
func (s *StatementService) Export(ctx context.Context, userID int) (string, error) {
	if s.storage == nil {
		return "", ErrExportDisabled
	}

	var buf bytes.Buffer
	rows, err := s.Write(ctx, userID, &buf)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.csv", s.now().Format("20060102T150405Z"), uuid.NewString()[:8])
	key := statementKey(userID, name)
	if err := s.storage.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), statementContentType); err != nil {
		return "", fmt.Errorf("upload statement: %w", err)
	}

	zap.L().Info("Exported statement",
		zap.Int("user_id", userID),
		zap.String("key", key),
		zap.Int("rows", rows))
	return key, nil
}

// Open returns a previously exported statement of the user by file name.
func (s *StatementService) Open(ctx context.Context, userID int, name string) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, ErrExportDisabled
	}
	if name == "" || strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".csv") {
		return nil, fmt.Errorf("%w: invalid statement name %q", types.ErrValidation, name)
	}
	return s.storage.Get(ctx, statementKey(userID, name))
}

// StatementName returns the file name part of a statement key.
func StatementName(key string) string {
	return path.Base(key)
}

func statementKey(userID int, name string) string {
	return fmt.Sprintf("statements/%d/%s", userID, name)
}
