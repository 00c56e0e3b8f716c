// Package jobinfoservice is the read-only façade the HTTP surface queries
// against: every method is a thin pass-through onto the job info
// repository (GetByID for finished records, MostRecentFinished and Overview
// are cached; the others are not), never a write path (writes only ever happen through
// internal/scheduler, which owns the lifecycle transitions).
package jobinfoservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/jobinfo"
)

type Repository interface {
	FindByID(ctx context.Context, id string) (jobinfo.JobInfo, error)
	FindByName(ctx context.Context, name string, limit int) ([]jobinfo.JobInfo, error)
	FindByNameAndTimeRange(ctx context.Context, name string, from, to time.Time, resultState *jobinfo.ResultState) ([]jobinfo.JobInfo, error)
	FindMostRecent(ctx context.Context, name string) (jobinfo.JobInfo, error)
	FindMostRecentFinished(ctx context.Context, name string) (jobinfo.JobInfo, error)
	FindMostRecentByNameAndResultState(ctx context.Context, name string, resultState jobinfo.ResultState) (jobinfo.JobInfo, error)
	FindMostRecentPerName(ctx context.Context) ([]jobinfo.JobInfo, error)
	DistinctJobNames(ctx context.Context) ([]string, error)
}

// Cache is the narrow Get/Set/Delete surface internal/cache.Cache exposes,
// backed in production by Redis so every scheduler process in the cluster
// shares one read cache instead of each holding its own. Get returns raw
// JSON; callers decode into their own concrete type.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val any)
	Delete(key string)
}

type Service struct {
	repo  Repository
	cache Cache
}

func New(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) GetByID(ctx context.Context, id string) (jobinfo.JobInfo, error) {
	key := "jobinfo:id:" + id
	if raw, ok := s.cache.Get(key); ok {
		var ji jobinfo.JobInfo
		if err := json.Unmarshal(raw, &ji); err == nil {
			return ji, nil
		}
	}

	ji, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return jobinfo.JobInfo{}, err
	}
	// Only cache finished records: an active one would go stale within
	// the cache's TTL window and mislead a status poller.
	if ji.RunningState.IsFinished() {
		s.cache.Set(key, ji)
	}
	return ji, nil
}

func (s *Service) History(ctx context.Context, name string, limit int) ([]jobinfo.JobInfo, error) {
	return s.repo.FindByName(ctx, name, limit)
}

func (s *Service) HistoryInRange(ctx context.Context, name string, from, to time.Time, resultState *jobinfo.ResultState) ([]jobinfo.JobInfo, error) {
	return s.repo.FindByNameAndTimeRange(ctx, name, from, to, resultState)
}

func (s *Service) MostRecent(ctx context.Context, name string) (jobinfo.JobInfo, error) {
	return s.repo.FindMostRecent(ctx, name)
}

func (s *Service) MostRecentFinished(ctx context.Context, name string) (jobinfo.JobInfo, error) {
	key := fmt.Sprintf("jobinfo:recent_finished:%s", name)
	if raw, ok := s.cache.Get(key); ok {
		var ji jobinfo.JobInfo
		if err := json.Unmarshal(raw, &ji); err == nil {
			return ji, nil
		}
	}

	ji, err := s.repo.FindMostRecentFinished(ctx, name)
	if err != nil {
		return jobinfo.JobInfo{}, err
	}
	s.cache.Set(key, ji)
	return ji, nil
}

func (s *Service) MostRecentByResultState(ctx context.Context, name string, resultState jobinfo.ResultState) (jobinfo.JobInfo, error) {
	return s.repo.FindMostRecentByNameAndResultState(ctx, name, resultState)
}

// Overview returns the newest job info for every known name, the data
// behind a cluster-wide dashboard view.
func (s *Service) Overview(ctx context.Context) ([]jobinfo.JobInfo, error) {
	const key = "jobinfo:overview"
	if raw, ok := s.cache.Get(key); ok {
		var items []jobinfo.JobInfo
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
	}

	items, err := s.repo.FindMostRecentPerName(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, items)
	return items, nil
}

func (s *Service) JobNames(ctx context.Context) ([]string, error) {
	return s.repo.DistinctJobNames(ctx)
}
