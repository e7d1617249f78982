package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/typeers/backend/internal/logger"
)

// Action represents an auditable action
type Action string

const (
	// Ledger actions
	ActionCredit     Action = "credit"
	ActionDebit      Action = "debit"
	ActionRefund     Action = "refund"
	ActionCompensate Action = "compensate"

	// Lifecycle actions
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"

	// Player actions
	ActionClaim  Action = "claim"
	ActionRedeem Action = "redeem"
)

// Result represents the outcome of an action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`

	// Who
	UserID string `gorm:"size:100;not null;index" json:"user_id"`

	// What
	Action     Action `gorm:"size:30;not null;index" json:"action"`
	CampaignID string `gorm:"size:120;index" json:"campaign_id,omitempty"`
	TargetID   string `gorm:"size:200" json:"target_id,omitempty"`
	Tier       string `gorm:"size:20" json:"tier,omitempty"`

	// Result
	Result       Result `gorm:"size:20;not null;index" json:"result"`
	ErrorCode    string `gorm:"size:50" json:"error_code,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	Details string `gorm:"type:text" json:"details,omitempty"`

	// Idempotency
	IdempotencyKey *string `gorm:"size:200;uniqueIndex" json:"idempotency_key,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// LogEntry represents a log entry to be created
type LogEntry struct {
	UserID     string
	Action     Action
	CampaignID string
	TargetID   string
	Tier       string

	Result       Result
	ErrorCode    string
	ErrorMessage string

	Details interface{}

	IdempotencyKey string
}

// Logger writes audit entries through a batching goroutine. A nil *Logger
// discards everything, so callers never need to check for one.
type Logger struct {
	db        *gorm.DB
	batchSize int
	batch     chan *AuditLog
	stop      chan struct{}
	done      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(db *gorm.DB) *Logger {
	l := &Logger{
		db:        db,
		batchSize: 100,
		batch:     make(chan *AuditLog, 1000),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go l.processBatch()

	return l
}

func newRecord(entry *LogEntry) *AuditLog {
	log := &AuditLog{
		ID:           uuid.New(),
		UserID:       entry.UserID,
		Action:       entry.Action,
		CampaignID:   entry.CampaignID,
		TargetID:     entry.TargetID,
		Tier:         entry.Tier,
		Result:       entry.Result,
		ErrorCode:    entry.ErrorCode,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    time.Now(),
	}
	if entry.IdempotencyKey != "" {
		key := entry.IdempotencyKey
		log.IdempotencyKey = &key
	}
	if entry.Details != nil {
		if data, err := json.Marshal(entry.Details); err == nil {
			log.Details = string(data)
		}
	}
	return log
}

// Log queues an audit entry. Failures are logged, never returned.
func (l *Logger) Log(ctx context.Context, entry *LogEntry) {
	if l == nil {
		return
	}
	log := newRecord(entry)

	select {
	case l.batch <- log:
	default:
		// Batch channel full - write directly
		if err := l.db.WithContext(ctx).Create(log).Error; err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("action", string(entry.Action)).Msg("audit write failed")
		}
	}
}

// LogSync creates an audit log entry synchronously (guaranteed write)
func (l *Logger) LogSync(ctx context.Context, entry *LogEntry) (*AuditLog, error) {
	if l == nil {
		return nil, nil
	}
	log := newRecord(entry)
	if err := l.db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, err
	}
	return log, nil
}

// LogResult records err as a failure with its domain code, or a success.
func (l *Logger) LogResult(ctx context.Context, entry *LogEntry, err error, code func(error) string) {
	if err != nil {
		entry.Result = ResultFailed
		entry.ErrorCode = code(err)
		entry.ErrorMessage = err.Error()
	} else if entry.Result == "" {
		entry.Result = ResultSuccess
	}
	l.Log(ctx, entry)
}

func (l *Logger) processBatch() {
	defer close(l.done)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var batch []*AuditLog

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := l.db.CreateInBatches(batch, l.batchSize).Error; err != nil {
			// One bad row (e.g. a duplicate idempotency key) must not drop the rest
			for _, log := range batch {
				if err := l.db.Create(log).Error; err != nil {
					logger.Get().Warn().Err(err).Str("action", string(log.Action)).Msg("audit write failed")
				}
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case log := <-l.batch:
					batch = append(batch, log)
				default:
					flush()
					return
				}
			}
		case log := <-l.batch:
			batch = append(batch, log)
			if len(batch) >= l.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Stop drains pending entries and stops the batch goroutine.
func (l *Logger) Stop() {
	if l == nil {
		return
	}
	close(l.stop)
	<-l.done
}

// QueryParams represents query parameters for audit logs
type QueryParams struct {
	UserID     string
	CampaignID string
	Action     *Action
	Result     *Result
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Query queries audit logs with filters
func (l *Logger) Query(ctx context.Context, params *QueryParams) ([]AuditLog, int64, error) {
	var logs []AuditLog
	var total int64

	query := l.db.WithContext(ctx).Model(&AuditLog{})

	if params.UserID != "" {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.CampaignID != "" {
		query = query.Where("campaign_id = ?", params.CampaignID)
	}
	if params.Action != nil {
		query = query.Where("action = ?", *params.Action)
	}
	if params.Result != nil {
		query = query.Where("result = ?", *params.Result)
	}
	if params.StartTime != nil {
		query = query.Where("created_at >= ?", *params.StartTime)
	}
	if params.EndTime != nil {
		query = query.Where("created_at <= ?", *params.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Limit > 1000 {
		params.Limit = 1000
	}

	if err := query.Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// Cleanup removes entries older than retentionDays.
func (l *Logger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if l == nil || retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := l.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&AuditLog{})
	return result.RowsAffected, result.Error
}
