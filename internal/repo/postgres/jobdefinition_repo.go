package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/jobdefinition"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobDefinitionRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobDefinitionRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobDefinitionRepo {
	return &JobDefinitionRepo{pool: pool, prom: prom}
}

func (r *JobDefinitionRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Save upserts a job definition by name.
func (r *JobDefinitionRepo) Save(ctx context.Context, d jobdefinition.JobDefinition) error {
	op := "jobdefinition.save"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO job_definitions (name, timeout_period_ms, polling_interval_ms, remote, disabled)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			timeout_period_ms = EXCLUDED.timeout_period_ms,
			polling_interval_ms = EXCLUDED.polling_interval_ms,
			remote = EXCLUDED.remote,
			disabled = EXCLUDED.disabled
		`, d.Name, d.TimeoutPeriod.Milliseconds(), d.PollingInterval.Milliseconds(), d.Remote, d.Disabled)
		return err
	})
}

func (r *JobDefinitionRepo) Find(ctx context.Context, name string) (jobdefinition.JobDefinition, error) {
	op := "jobdefinition.find"
	var d jobdefinition.JobDefinition
	var timeoutMs, pollMs int64

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT name, timeout_period_ms, polling_interval_ms, remote, disabled
		FROM job_definitions WHERE name = $1
		`, name).Scan(&d.Name, &timeoutMs, &pollMs, &d.Remote, &d.Disabled)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobdefinition.JobDefinition{}, jobdefinition.ErrNotFound
		}
		return jobdefinition.JobDefinition{}, err
	}

	d.TimeoutPeriod = msToDuration(timeoutMs)
	d.PollingInterval = msToDuration(pollMs)
	return d, nil
}

func (r *JobDefinitionRepo) FindAll(ctx context.Context) ([]jobdefinition.JobDefinition, error) {
	op := "jobdefinition.find_all"
	var out []jobdefinition.JobDefinition

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
		SELECT name, timeout_period_ms, polling_interval_ms, remote, disabled
		FROM job_definitions ORDER BY name
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d jobdefinition.JobDefinition
			var timeoutMs, pollMs int64
			if err := rows.Scan(&d.Name, &timeoutMs, &pollMs, &d.Remote, &d.Disabled); err != nil {
				return err
			}
			d.TimeoutPeriod = msToDuration(timeoutMs)
			d.PollingInterval = msToDuration(pollMs)
			out = append(out, d)
		}
		return rows.Err()
	})

	return out, err
}

// SetDisabled flips the cluster-wide disabled flag for a job definition,
// used by the admin surface to pause a job without deleting its history.
func (r *JobDefinitionRepo) SetDisabled(ctx context.Context, name string, disabled bool) error {
	op := "jobdefinition.set_disabled"
	return r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE job_definitions SET disabled = $2 WHERE name = $1
		`, name, disabled)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return jobdefinition.ErrNotFound
		}
		return nil
	})
}

// EnsureSentinel bootstraps the JOBS sentinel definition used as the
// cluster-wide execution lock handle. Safe to call on every startup.
func (r *JobDefinitionRepo) EnsureSentinel(ctx context.Context) error {
	return r.Save(ctx, jobdefinition.Sentinel())
}

func (r *JobDefinitionRepo) Clear(ctx context.Context) error {
	op := "jobdefinition.clear"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM job_definitions WHERE name <> $1`, jobdefinition.SentinelName)
		return err
	})
}

func msToDuration(ms int64) (d time.Duration) {
	return time.Duration(ms) * time.Millisecond
}
