package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/jobinfo"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobInfoRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobInfoRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobInfoRepo {
	return &JobInfoRepo{pool: pool, prom: prom}
}

func (r *JobInfoRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const jobInfoColumns = `id, name, host, thread,
	creation_time, start_time, finish_time, last_modification_time,
	running_state, result_state, result_message, status_message,
	execution_priority, max_execution_time_ms, max_idle_time_ms,
	parameters, additional_data, log_lines`

// scanJobInfo reads one jobInfoColumns row. Callers pass a row source
// (pgx.Row or a *pgx.Rows advanced via Next) that was SELECTed in that order.
func scanJobInfo(row pgx.Row) (jobinfo.JobInfo, error) {
	var j jobinfo.JobInfo
	var resultState *string
	var paramsRaw, addlRaw, logsRaw []byte

	err := row.Scan(
		&j.ID, &j.Name, &j.Host, &j.Thread,
		&j.CreationTime, &j.StartTime, &j.FinishTime, &j.LastModificationTime,
		&j.RunningState, &resultState, &j.ResultMessage, &j.StatusMessage,
		&j.ExecutionPriority, &j.MaxExecutionTime, &j.MaxIdleTime,
		&paramsRaw, &addlRaw, &logsRaw,
	)
	if err != nil {
		return jobinfo.JobInfo{}, err
	}

	if resultState != nil {
		rs := jobinfo.ResultState(*resultState)
		j.ResultState = &rs
	}

	j.Parameters = map[string]string{}
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &j.Parameters); err != nil {
			return jobinfo.JobInfo{}, err
		}
	}
	j.AdditionalData = map[string]string{}
	if len(addlRaw) > 0 {
		if err := json.Unmarshal(addlRaw, &j.AdditionalData); err != nil {
			return jobinfo.JobInfo{}, err
		}
	}
	j.LogLines = []jobinfo.LogLine{}
	if len(logsRaw) > 0 {
		if err := json.Unmarshal(logsRaw, &j.LogLines); err != nil {
			return jobinfo.JobInfo{}, err
		}
	}

	return j, nil
}

// Create inserts a new job info document. A unique violation means an
// active (QUEUED/RUNNING) record already exists for this name; callers
// should check IsUniqueViolation and translate to the scheduler's
// JOB_ALREADY_RUNNING/JOB_ALREADY_QUEUED errors.
func (r *JobInfoRepo) Create(ctx context.Context, j jobinfo.JobInfo) (jobinfo.JobInfo, error) {
	op := "jobinfo.create"

	params, err := json.Marshal(j.Parameters)
	if err != nil {
		return jobinfo.JobInfo{}, err
	}
	addl, err := json.Marshal(j.AdditionalData)
	if err != nil {
		return jobinfo.JobInfo{}, err
	}
	logs, err := json.Marshal(j.LogLines)
	if err != nil {
		return jobinfo.JobInfo{}, err
	}

	err = r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO job_infos (`+jobInfoColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		`,
			j.ID, j.Name, j.Host, j.Thread,
			j.CreationTime, j.StartTime, j.FinishTime, j.LastModificationTime,
			j.RunningState, j.ResultState, j.ResultMessage, j.StatusMessage,
			j.ExecutionPriority, j.MaxExecutionTime, j.MaxIdleTime,
			params, addl, logs,
		)
		return err
	})

	if err != nil {
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

// ActivateQueuedJob atomically flips one QUEUED job info to RUNNING and
// returns the updated record. Two processes racing to activate the same
// name both attempt this UPDATE; only one matches the WHERE clause, the
// loser gets jobinfo.ErrNotFound and should back off (see
// observability.Prom.ActivationRaces). The NOT EXISTS guard keeps a name
// that already has a RUNNING record from ever reaching the RETURNING
// clause, so a losing activation surfaces as the ordinary zero-rows
// ErrNotFound outcome rather than a (name, running_state) unique
// violation bubbling up as a generic persistence error.
func (r *JobInfoRepo) ActivateQueuedJob(ctx context.Context, name, host, thread string) (jobinfo.JobInfo, error) {
	op := "jobinfo.activate_queued"
	now := time.Now().UTC()

	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		UPDATE job_infos
		SET running_state = 'RUNNING',
		    host = $2,
		    thread = $3,
		    start_time = $4,
		    last_modification_time = $4
		WHERE name = $1 AND running_state = 'QUEUED'
		  AND NOT EXISTS (
		      SELECT 1 FROM job_infos i2
		      WHERE i2.name = $1 AND i2.running_state = 'RUNNING'
		  )
		RETURNING `+jobInfoColumns+`
		`, name, host, thread, now)

		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

// MarkRunningAsFinished transitions the RUNNING record with the given id to
// a fresh FINISHED_<uuid> token, recording the outcome. It is a no-op error
// (ErrNotFound) if the record is no longer RUNNING, which happens when a
// timeout sweep has already moved it.
func (r *JobInfoRepo) MarkRunningAsFinished(ctx context.Context, id string, result jobinfo.ResultState, message *string) (jobinfo.JobInfo, error) {
	op := "jobinfo.mark_running_finished"
	now := time.Now().UTC()
	finished := jobinfo.NewFinishedState()

	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		UPDATE job_infos
		SET running_state = $2,
		    result_state = $3,
		    result_message = $4,
		    finish_time = $5,
		    last_modification_time = $5
		WHERE id = $1 AND running_state = 'RUNNING'
		RETURNING `+jobInfoColumns+`
		`, id, finished, string(result), message, now)

		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

func (r *JobInfoRepo) MarkRunningAsFinishedSuccessfully(ctx context.Context, id string, message *string) (jobinfo.JobInfo, error) {
	return r.MarkRunningAsFinished(ctx, id, jobinfo.Successful, message)
}

func (r *JobInfoRepo) MarkRunningAsFinishedWithException(ctx context.Context, id string, message *string) (jobinfo.JobInfo, error) {
	return r.MarkRunningAsFinished(ctx, id, jobinfo.Failed, message)
}

// MarkQueuedAsNotExecuted finishes a QUEUED record without ever running it,
// used by Scheduler.RunQueued when a queued job's precondition check says
// execution is not necessary; cleanupNotExecutedJobs later deletes such
// records.
func (r *JobInfoRepo) MarkQueuedAsNotExecuted(ctx context.Context, id string) (jobinfo.JobInfo, error) {
	op := "jobinfo.mark_queued_not_executed"
	now := time.Now().UTC()
	finished := jobinfo.NewFinishedState()

	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		UPDATE job_infos
		SET running_state = $2,
		    result_state = $3,
		    finish_time = $4,
		    last_modification_time = $4
		WHERE id = $1 AND running_state = 'QUEUED'
		RETURNING `+jobInfoColumns+`
		`, id, finished, string(jobinfo.NotExecuted), now)

		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

// UpdateHostThreadInformation is a best-effort telemetry write: lost updates
// here don't affect correctness, only what host/thread humans see.
func (r *JobInfoRepo) UpdateHostThreadInformation(ctx context.Context, id, host, thread string) error {
	op := "jobinfo.update_host_thread"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		UPDATE job_infos SET host = $2, thread = $3, last_modification_time = $4
		WHERE id = $1
		`, id, host, thread, time.Now().UTC())
		return err
	})
}

func (r *JobInfoRepo) AddAdditionalData(ctx context.Context, id, key, value string) error {
	op := "jobinfo.add_additional_data"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		UPDATE job_infos
		SET additional_data = jsonb_set(additional_data, $2, to_jsonb($3::text), true),
		    last_modification_time = $4
		WHERE id = $1
		`, id, "{"+key+"}", value, time.Now().UTC())
		return err
	})
}

func (r *JobInfoRepo) SetStatusMessage(ctx context.Context, id, message string) error {
	op := "jobinfo.set_status_message"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		UPDATE job_infos SET status_message = $2, last_modification_time = $3
		WHERE id = $1
		`, id, message, time.Now().UTC())
		return err
	})
}

func (r *JobInfoRepo) AddLogLine(ctx context.Context, id string, line jobinfo.LogLine) error {
	return r.AppendLogLines(ctx, id, []jobinfo.LogLine{line})
}

// AppendLogLines concatenates lines onto the job_infos.log_lines array in a
// single round trip; fire-and-forget from the caller's perspective.
func (r *JobInfoRepo) AppendLogLines(ctx context.Context, id string, lines []jobinfo.LogLine) error {
	op := "jobinfo.append_log_lines"

	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}

	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		UPDATE job_infos
		SET log_lines = log_lines || $2::jsonb,
		    last_modification_time = $3
		WHERE id = $1
		`, id, raw, time.Now().UTC())
		return err
	})
}

// RemoveJobIfTimedOut conditionally finishes one RUNNING record as
// TIMED_OUT if its deadline has passed as of now. Returns false with no
// error when the record isn't RUNNING or hasn't timed out yet.
func (r *JobInfoRepo) RemoveJobIfTimedOut(ctx context.Context, id string, now time.Time) (bool, error) {
	op := "jobinfo.remove_if_timed_out"
	finished := jobinfo.NewFinishedState()

	var affected int64
	err := r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE job_infos
		SET running_state = $2,
		    result_state = $3,
		    finish_time = $4,
		    last_modification_time = $4
		WHERE id = $1
		  AND running_state = 'RUNNING'
		  AND last_modification_time + (max_execution_time_ms * INTERVAL '1 millisecond') < $4
		`, id, finished, string(jobinfo.TimedOut), now)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})

	return affected > 0, err
}

func (r *JobInfoRepo) Remove(ctx context.Context, id string) error {
	op := "jobinfo.remove"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM job_infos WHERE id = $1`, id)
		return err
	})
}

func (r *JobInfoRepo) Clear(ctx context.Context) error {
	op := "jobinfo.clear"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM job_infos`)
		return err
	})
}

func (r *JobInfoRepo) Count(ctx context.Context) (int64, error) {
	op := "jobinfo.count"
	var n int64
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `SELECT count(*) FROM job_infos`).Scan(&n)
	})
	return n, err
}

// CleanupTimedOutJobs finishes every RUNNING record whose deadline has
// passed. Run periodically by the timeout sweep meta-job.
func (r *JobInfoRepo) CleanupTimedOutJobs(ctx context.Context, now time.Time) (int64, error) {
	op := "jobinfo.cleanup_timed_out"
	var affected int64

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
		SELECT id FROM job_infos
		WHERE running_state = 'RUNNING'
		  AND last_modification_time + (max_execution_time_ms * INTERVAL '1 millisecond') < $1
		FOR UPDATE SKIP LOCKED
		`, now)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			ok, err := r.RemoveJobIfTimedOut(ctx, id, now)
			if err != nil {
				return err
			}
			if ok {
				affected++
			}
		}
		return nil
	})

	return affected, err
}

// CleanupOldJobs deletes finished job infos older than the retention
// window. olderThan is applied verbatim against finish_time (see §9 open
// question: no implicit 4-hour cap is layered on top of the configured
// value).
func (r *JobInfoRepo) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	op := "jobinfo.cleanup_old"
	var affected int64

	err := r.observe(op, func() error {
		cutoff := time.Now().UTC().Add(-olderThan)
		tag, err := r.pool.Exec(ctx, `
		DELETE FROM job_infos
		WHERE running_state LIKE 'FINISHED\_%' ESCAPE '\'
		  AND finish_time IS NOT NULL
		  AND finish_time < $1
		`, cutoff)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})

	return affected, err
}

// CleanupNotExecutedJobs deletes finished records whose outcome was
// NOT_EXECUTED and that are older than olderThan — these never ran, so
// they carry no operational history worth keeping around.
func (r *JobInfoRepo) CleanupNotExecutedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	op := "jobinfo.cleanup_not_executed"
	var affected int64

	err := r.observe(op, func() error {
		cutoff := time.Now().UTC().Add(-olderThan)
		tag, err := r.pool.Exec(ctx, `
		DELETE FROM job_infos
		WHERE running_state LIKE 'FINISHED\_%' ESCAPE '\'
		  AND result_state = $1
		  AND finish_time IS NOT NULL
		  AND finish_time < $2
		`, string(jobinfo.NotExecuted), cutoff)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})

	return affected, err
}

func (r *JobInfoRepo) FindByNameAndRunningState(ctx context.Context, name string, state jobinfo.RunningState) (jobinfo.JobInfo, error) {
	op := "jobinfo.find_by_name_state"
	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos WHERE name = $1 AND running_state = $2
		`, name, state)
		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

func (r *JobInfoRepo) FindByID(ctx context.Context, id string) (jobinfo.JobInfo, error) {
	op := "jobinfo.find_by_id"
	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos WHERE id = $1
		`, id)
		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

func (r *JobInfoRepo) FindByName(ctx context.Context, name string, limit int) ([]jobinfo.JobInfo, error) {
	op := "jobinfo.find_by_name"
	var out []jobinfo.JobInfo
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos
		WHERE name = $1
		ORDER BY creation_time DESC
		LIMIT $2
		`, name, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, err := scanJobInfo(rows)
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}

func (r *JobInfoRepo) FindByNameAndTimeRange(ctx context.Context, name string, from, to time.Time, resultState *jobinfo.ResultState) ([]jobinfo.JobInfo, error) {
	op := "jobinfo.find_by_name_time_range"
	var out []jobinfo.JobInfo

	err := r.observe(op, func() error {
		var rows pgx.Rows
		var err error
		if resultState != nil {
			rows, err = r.pool.Query(ctx, `
			SELECT `+jobInfoColumns+` FROM job_infos
			WHERE name = $1 AND creation_time BETWEEN $2 AND $3 AND result_state = $4
			ORDER BY creation_time DESC
			`, name, from, to, string(*resultState))
		} else {
			rows, err = r.pool.Query(ctx, `
			SELECT `+jobInfoColumns+` FROM job_infos
			WHERE name = $1 AND creation_time BETWEEN $2 AND $3
			ORDER BY creation_time DESC
			`, name, from, to)
		}
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, err := scanJobInfo(rows)
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return rows.Err()
	})

	return out, err
}

func (r *JobInfoRepo) FindMostRecent(ctx context.Context, name string) (jobinfo.JobInfo, error) {
	op := "jobinfo.find_most_recent"
	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos
		WHERE name = $1
		ORDER BY creation_time DESC
		LIMIT 1
		`, name)
		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

// FindMostRecentFinished returns the newest finished record for name,
// matching running_state against the FINISHED_ prefix rather than a
// literal value — required because every finished record carries a
// distinct FINISHED_<uuid> token (see §9 open question).
func (r *JobInfoRepo) FindMostRecentFinished(ctx context.Context, name string) (jobinfo.JobInfo, error) {
	op := "jobinfo.find_most_recent_finished"
	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos
		WHERE name = $1 AND running_state LIKE 'FINISHED\_%' ESCAPE '\'
		ORDER BY creation_time DESC
		LIMIT 1
		`, name)
		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

func (r *JobInfoRepo) FindMostRecentByNameAndResultState(ctx context.Context, name string, resultState jobinfo.ResultState) (jobinfo.JobInfo, error) {
	op := "jobinfo.find_most_recent_by_result_state"
	var j jobinfo.JobInfo
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos
		WHERE name = $1 AND result_state = $2
		ORDER BY creation_time DESC
		LIMIT 1
		`, name, string(resultState))
		var serr error
		j, serr = scanJobInfo(row)
		return serr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobinfo.JobInfo{}, jobinfo.ErrNotFound
		}
		return jobinfo.JobInfo{}, err
	}
	return j, nil
}

func (r *JobInfoRepo) FindQueuedJobsSortedAscByCreationTime(ctx context.Context) ([]jobinfo.JobInfo, error) {
	op := "jobinfo.find_queued_asc"
	var out []jobinfo.JobInfo
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos
		WHERE running_state = 'QUEUED'
		ORDER BY creation_time ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, err := scanJobInfo(rows)
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}

// FindRunningJobsSortedAscByCreationTime returns every RUNNING record across
// the whole cluster, oldest first. The remote job poll sweep uses this to
// rediscover in-flight remote delegations regardless of which process
// started them — the resultHash handle it needs lives in additional_data,
// not in any process-local state.
func (r *JobInfoRepo) FindRunningJobsSortedAscByCreationTime(ctx context.Context) ([]jobinfo.JobInfo, error) {
	op := "jobinfo.find_running_asc"
	var out []jobinfo.JobInfo
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
		SELECT `+jobInfoColumns+` FROM job_infos
		WHERE running_state = 'RUNNING'
		ORDER BY creation_time ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, err := scanJobInfo(rows)
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}

// FindMostRecentPerName returns the single newest job info for every
// distinct name, used to render a one-row-per-job dashboard view.
func (r *JobInfoRepo) FindMostRecentPerName(ctx context.Context) ([]jobinfo.JobInfo, error) {
	op := "jobinfo.find_most_recent_per_name"
	var out []jobinfo.JobInfo
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (name) `+jobInfoColumns+`
		FROM job_infos
		ORDER BY name, creation_time DESC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, err := scanJobInfo(rows)
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}

func (r *JobInfoRepo) DistinctJobNames(ctx context.Context) ([]string, error) {
	op := "jobinfo.distinct_names"
	var out []string
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `SELECT DISTINCT name FROM job_infos ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	return out, err
}
