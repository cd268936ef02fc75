// Package calllog persists gateway call records and aggregates usage.
package calllog

import (
	"context"
	"sort"
	"time"

	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the call log needs.
type Store interface {
	Create(ctx context.Context, record *models.CallRecord) error
	Find(ctx context.Context, filter repository.CallRecordFilter, limit int) ([]models.CallRecord, error)
}

// Service records calls and reports usage.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new call log service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record persists one call record synchronously.
func (s *Service) Record(ctx context.Context, record *models.CallRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	return s.store.Create(ctx, record)
}

// UsageSummary represents aggregated usage data.
type UsageSummary struct {
	TotalRequests    int64   `json:"total_requests"`
	SuccessCount     int64   `json:"success_count"`
	ErrorCount       int64   `json:"error_count"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	AvgLatency       float64 `json:"avg_latency_seconds"`
	SuccessRate      float64 `json:"success_rate"`
}

func (u *UsageSummary) add(r *models.CallRecord) {
	u.TotalRequests++
	if r.Success {
		u.SuccessCount++
	} else {
		u.ErrorCount++
	}
	u.PromptTokens += int64(r.PromptTokens)
	u.CompletionTokens += int64(r.CompletionTokens)
	u.TotalTokens += int64(r.TotalTokens)
	// running sum; finish converts to a mean
	u.AvgLatency += r.LatencySeconds
}

func (u *UsageSummary) finish() {
	if u.TotalRequests == 0 {
		return
	}
	u.AvgLatency /= float64(u.TotalRequests)
	u.SuccessRate = float64(u.SuccessCount) / float64(u.TotalRequests) * 100
}

// GetSummary aggregates calls in [from, to]. A nil userID covers every user.
func (s *Service) GetSummary(ctx context.Context, userID *uuid.UUID, from, to time.Time) (*UsageSummary, error) {
	records, err := s.store.Find(ctx, repository.CallRecordFilter{UserID: userID, From: from, To: to}, 0)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{}
	for i := range records {
		summary.add(&records[i])
	}
	summary.finish()
	return summary, nil
}

// DailyUsage is the usage of one calendar day.
type DailyUsage struct {
	Date string `json:"date"`
	UsageSummary
}

// GetDailyUsage returns per-day usage for the last days days, oldest first.
func (s *Service) GetDailyUsage(ctx context.Context, userID *uuid.UUID, days int) ([]DailyUsage, error) {
	if days <= 0 {
		days = 7
	}
	to := s.now()
	from := to.AddDate(0, 0, -days)

	records, err := s.store.Find(ctx, repository.CallRecordFilter{UserID: userID, From: from, To: to}, 0)
	if err != nil {
		return nil, err
	}

	daily := make(map[string]*DailyUsage)
	for i := range records {
		date := records[i].CreatedAt.Format("2006-01-02")
		if _, ok := daily[date]; !ok {
			daily[date] = &DailyUsage{Date: date}
		}
		daily[date].add(&records[i])
	}

	result := make([]DailyUsage, 0, len(daily))
	for _, usage := range daily {
		usage.finish()
		result = append(result, *usage)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })

	return result, nil
}

// GroupUsage is usage for one provider or function tag.
type GroupUsage struct {
	Key string `json:"key"`
	UsageSummary
}

// GetUsageByProvider groups calls in [from, to] by provider internal name.
func (s *Service) GetUsageByProvider(ctx context.Context, from, to time.Time) ([]GroupUsage, error) {
	return s.groupBy(ctx, from, to, func(r *models.CallRecord) string { return r.ProviderInternalName })
}

// GetUsageByFunction groups calls in [from, to] by function tag.
func (s *Service) GetUsageByFunction(ctx context.Context, from, to time.Time) ([]GroupUsage, error) {
	return s.groupBy(ctx, from, to, func(r *models.CallRecord) string { return string(r.FunctionTag) })
}

func (s *Service) groupBy(ctx context.Context, from, to time.Time, key func(*models.CallRecord) string) ([]GroupUsage, error) {
	records, err := s.store.Find(ctx, repository.CallRecordFilter{From: from, To: to}, 0)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*GroupUsage)
	for i := range records {
		k := key(&records[i])
		if _, ok := groups[k]; !ok {
			groups[k] = &GroupUsage{Key: k}
		}
		groups[k].add(&records[i])
	}

	result := make([]GroupUsage, 0, len(groups))
	for _, g := range groups {
		g.finish()
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalRequests != result[j].TotalRequests {
			return result[i].TotalRequests > result[j].TotalRequests
		}
		return result[i].Key < result[j].Key
	})

	return result, nil
}

// GetRecent returns the most recent calls, newest first.
func (s *Service) GetRecent(ctx context.Context, filter repository.CallRecordFilter, limit int) ([]models.CallRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.Find(ctx, filter, limit)
}
