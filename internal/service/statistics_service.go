package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type statisticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type statisticsSubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
}

func statisticsCacheKey(submissionID string) string {
	return fmt.Sprintf("statistics:submission:%s", submissionID)
}

// StatisticsService derives aggregate figures over a submission's
// marks. Results are cached; the mark rows stay the source of truth
// and every mark mutation invalidates the cache entry.
type StatisticsService struct {
	submissions statisticsSubmissionStore
	marks       markStore
	roster      rosterProvider
	cache       statisticsCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewStatisticsService constructs the service.
func NewStatisticsService(submissions statisticsSubmissionStore, marks markStore, roster rosterProvider, cache statisticsCache, cacheTTL time.Duration, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &StatisticsService{
		submissions: submissions,
		marks:       marks,
		roster:      roster,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// ForSubmission returns statistics for one submission, from cache when
// fresh.
func (s *StatisticsService) ForSubmission(ctx context.Context, submissionID string) (*models.SubmissionStatistics, error) {
	key := statisticsCacheKey(submissionID)
	if s.cache != nil {
		var cached models.SubmissionStatistics
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.HasCode(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("statistics cache read failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	roster, err := s.roster.ListRoster(ctx, submission.ModuleAssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module roster")
	}
	marks, err := s.marks.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}

	stats := Aggregate(submission, roster, marks)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
			s.logger.Warn("statistics cache write failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}
	return stats, nil
}

// Aggregate computes statistics from roster and marks. Absent students
// count as complete and are bucketed under their own label, apart from
// the failing grade; students with partial or no component scores count
// as incomplete and are excluded from the average and pass rate.
func Aggregate(submission *models.Submission, roster []models.RosterStudent, marks []models.StudentMark) *models.SubmissionStatistics {
	specs := models.RequiredComponents(submission.Type)
	byStudent := make(map[string]*models.StudentMark, len(marks))
	for i := range marks {
		byStudent[marks[i].StudentID] = &marks[i]
	}

	stats := &models.SubmissionStatistics{
		SubmissionID:      submission.ID,
		TotalStudents:     len(roster),
		GradeDistribution: make(map[string]int),
		GeneratedAt:       time.Now().UTC(),
	}

	totalSum := 0.0
	graded := 0
	passed := 0

	for _, student := range roster {
		mark, ok := byStudent[student.StudentID]
		if !ok {
			stats.StudentsWithIncompleteMarks++
			continue
		}
		if mark.Absent() {
			stats.AbsentStudents++
			stats.StudentsWithCompleteMarks++
			stats.GradeDistribution[models.GradeAbsent]++
			continue
		}
		complete := true
		for _, spec := range specs {
			if _, present := mark.Scores[spec.Kind]; !present {
				complete = false
				break
			}
		}
		if !complete {
			stats.StudentsWithIncompleteMarks++
			continue
		}
		stats.StudentsWithCompleteMarks++
		stats.GradeDistribution[mark.Grade]++
		totalSum += mark.Total
		graded++
		if mark.Grade != models.FailingGrade {
			passed++
		}
	}

	if stats.TotalStudents > 0 {
		stats.CompletionPercentage = round2(float64(stats.StudentsWithCompleteMarks) / float64(stats.TotalStudents) * 100)
	}
	if graded > 0 {
		stats.AverageMarks = round2(totalSum / float64(graded))
		stats.PassRate = round1(float64(passed) / float64(graded) * 100)
	}
	return stats
}
