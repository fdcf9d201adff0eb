package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meos/internal/domain"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "meos"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Start(ctx context.Context) error {
	log := mw.log.With(
		zap.String("action", "start"),
	)

	err := mw.next.Start(ctx)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	st := mw.next.Status()
	log.Info("index ready",
		zap.Int("entries", st.Entries),
		zap.Int("dimension", st.Dimension),
		zap.String("model", st.Model),
		zap.Time("built_at", st.BuiltAt),
	)
	return nil
}

func (mw *loggingMiddleware) Rebuild(ctx context.Context) (BuildReport, error) {
	log := mw.log.With(
		zap.String("action", "rebuild"),
	)

	report, err := mw.next.Rebuild(ctx)
	if err != nil {
		log.Error(err.Error())
		return report, err
	}

	log.Info("index rebuilt",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("took", report.Duration),
	)
	return report, nil
}

func (mw *loggingMiddleware) CheckStale(ctx context.Context) ([]string, error) {
	log := mw.log.With(
		zap.String("action", "check_stale"),
	)

	stale, err := mw.next.CheckStale(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	if len(stale) > 0 {
		log.Warn("index is stale, run with --rebuild to refresh it", zap.Strings("documents", stale))
	} else {
		log.Debug("index is up to date")
	}
	return stale, nil
}

func (mw *loggingMiddleware) Answer(ctx context.Context, query string, topK int) (domain.Answer, error) {
	log := mw.log.With(
		zap.String("action", "answer"),
		zap.String("query_id", uuid.NewString()),
	)

	if topK > 0 {
		log = log.With(
			zap.Int("top_k", topK),
		)
	}

	log.Debug("query received", zap.String("query", query))

	began := time.Now()
	answer, err := mw.next.Answer(ctx, query, topK)
	if err != nil {
		log.Error(err.Error(), zap.Duration("took", time.Since(began)))
		return answer, err
	}

	log.Info("answer generated",
		zap.Int("sources", len(answer.Sources)),
		zap.Duration("took", time.Since(began)),
	)
	return answer, nil
}

func (mw *loggingMiddleware) Overview(ctx context.Context, category domain.Category, maxSentences int) (string, error) {
	log := mw.log.With(
		zap.String("action", "overview"),
		zap.String("category", string(category)),
	)

	summary, err := mw.next.Overview(ctx, category, maxSentences)
	if err != nil {
		log.Error(err.Error())
		return "", err
	}

	log.Debug("overview summarized", zap.Int("length", len(summary)))
	return summary, nil
}

func (mw *loggingMiddleware) Status() Status {
	return mw.next.Status()
}
