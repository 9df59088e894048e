package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/framepilot/render-worker/internal/campaign"
	"github.com/framepilot/render-worker/internal/render"
)

// Compile-time check that Postgres implements Queue.
var _ Queue = (*Postgres)(nil)

// Postgres is the production Queue backed by a relational database.
// The claim runs in a single transaction using FOR UPDATE SKIP LOCKED so
// concurrent claimers never contend on the same row.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres queue over an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pgx pool against the given database URL and verifies
// connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("queue: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("queue: ping database: %w", err)
	}
	return pool, nil
}

// Claim atomically claims the oldest queued job. The concurrency gate is a
// soft limit: a brief race can exceed it by one, which is acceptable; the
// skip-locked select is what guarantees no double claim.
func (q *Postgres) Claim(ctx context.Context, maxConcurrent int) (*ClaimedJob, error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("queue: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var processing int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM render_jobs WHERE state = 'processing'`,
	).Scan(&processing)
	if err != nil {
		return nil, fmt.Errorf("queue: count processing: %w", err)
	}
	if processing >= maxConcurrent {
		return nil, ErrAtCapacity
	}

	var jobID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM render_jobs
		 WHERE state = 'queued'
		 ORDER BY created_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
	).Scan(&jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("queue: select queued job: %w", err)
	}

	job := &render.Job{ID: jobID, State: render.JobProcessing}
	err = tx.QueryRow(ctx,
		`UPDATE render_jobs
		 SET state = 'processing', started_at = now(), updated_at = now()
		 WHERE id = $1
		 RETURNING render_id, created_at, started_at`,
		jobID,
	).Scan(&job.RenderID, &job.CreatedAt, &job.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("queue: claim job %s: %w", jobID, err)
	}

	claimed, err := q.loadClaimPayload(ctx, tx, job)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("queue: commit claim: %w", err)
	}
	return claimed, nil
}

// loadClaimPayload joins the render and campaign rows for a claimed job and
// decodes the jsonb scene list and output settings.
func (q *Postgres) loadClaimPayload(ctx context.Context, tx pgx.Tx, job *render.Job) (*ClaimedJob, error) {
	var (
		r            render.Render
		c            campaign.Campaign
		scenesRaw    []byte
		outputRaw    []byte
		facecamURL   *string
		leadCSVURL   *string
		leadRowIndex *int
		leadIdent    *string
	)
	err := tx.QueryRow(ctx,
		`SELECT r.id, r.public_id, r.campaign_id, r.facecam_url, r.lead_csv_url,
		        r.lead_row_index, r.lead_identifier, r.status, r.progress,
		        r.duration_sec, r.created_at, r.updated_at,
		        c.id, c.user_id, c.name, c.scenes, c.output_settings, c.created_at
		 FROM renders r
		 JOIN campaigns c ON c.id = r.campaign_id
		 WHERE r.id = $1`,
		job.RenderID,
	).Scan(
		&r.ID, &r.PublicID, &r.CampaignID, &facecamURL, &leadCSVURL,
		&leadRowIndex, &leadIdent, &r.Status, &r.Progress,
		&r.DurationSec, &r.CreatedAt, &r.UpdatedAt,
		&c.ID, &c.UserID, &c.Name, &scenesRaw, &outputRaw, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRenderNotFound
		}
		return nil, fmt.Errorf("queue: load claim payload: %w", err)
	}

	if facecamURL != nil {
		r.FacecamURL = *facecamURL
	}
	if leadCSVURL != nil {
		r.LeadCSVURL = *leadCSVURL
	}
	if leadRowIndex != nil {
		r.LeadRowIndex = *leadRowIndex
	}
	if leadIdent != nil {
		r.LeadIdentifier = *leadIdent
	}

	scenes, err := campaign.DecodeScenes(scenesRaw)
	if err != nil {
		return nil, err
	}
	c.Scenes = scenes

	output, err := campaign.DecodeOutputSettings(outputRaw)
	if err != nil {
		return nil, err
	}
	c.Output = output

	return &ClaimedJob{Job: job, Render: &r, Campaign: &c}, nil
}

// FinalizeJob transitions a job to a terminal state.
func (q *Postgres) FinalizeJob(ctx context.Context, jobID string, state render.JobState, errMsg string) error {
	tag, err := q.pool.Exec(ctx,
		`UPDATE render_jobs
		 SET state = $2, error_message = NULLIF($3, ''), completed_at = now(), updated_at = now()
		 WHERE id = $1`,
		jobID, string(state), errMsg,
	)
	if err != nil {
		return fmt.Errorf("queue: finalize job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Progress upserts the render's latest status and progress. GREATEST keeps
// progress monotonic even if callers report out of order.
func (q *Postgres) Progress(ctx context.Context, renderID string, status render.Status, progress int, errMsg string) error {
	tag, err := q.pool.Exec(ctx,
		`UPDATE renders
		 SET status = $2,
		     progress = GREATEST(progress, $3),
		     error_message = NULLIF($4, ''),
		     updated_at = now()
		 WHERE id = $1 AND status NOT IN ('completed', 'cancelled')`,
		renderID, string(status), progress, errMsg,
	)
	if err != nil {
		return fmt.Errorf("queue: progress render %s: %w", renderID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already terminal; terminal rows are left alone.
		var exists bool
		if err := q.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM renders WHERE id = $1)`, renderID).Scan(&exists); err != nil {
			return fmt.Errorf("queue: progress render %s: %w", renderID, err)
		}
		if !exists {
			return ErrRenderNotFound
		}
	}
	return nil
}

// MarkComplete sets the render terminal-successful with its published URLs.
func (q *Postgres) MarkComplete(ctx context.Context, renderID, videoURL, thumbnailURL string) error {
	tag, err := q.pool.Exec(ctx,
		`UPDATE renders
		 SET status = 'completed', progress = 100,
		     video_url = $2, thumbnail_url = $3,
		     completed_at = now(), updated_at = now()
		 WHERE id = $1`,
		renderID, videoURL, thumbnailURL,
	)
	if err != nil {
		return fmt.Errorf("queue: complete render %s: %w", renderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRenderNotFound
	}
	return nil
}

// RenderStatus returns the render's current status.
func (q *Postgres) RenderStatus(ctx context.Context, renderID string) (render.Status, error) {
	var status string
	err := q.pool.QueryRow(ctx, `SELECT status FROM renders WHERE id = $1`, renderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRenderNotFound
		}
		return "", fmt.Errorf("queue: render status %s: %w", renderID, err)
	}
	return render.Status(status), nil
}

// SetLeadIdentifier writes the derived lead identifier back to the render row.
func (q *Postgres) SetLeadIdentifier(ctx context.Context, renderID, identifier string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE renders SET lead_identifier = $2, updated_at = now() WHERE id = $1`,
		renderID, identifier,
	)
	if err != nil {
		return fmt.Errorf("queue: set lead identifier %s: %w", renderID, err)
	}
	return nil
}

// RescueStale fails non-terminal renders that have not been touched within
// olderThan, along with their jobs. Any worker may run the sweep; it is the
// sole antidote to a crashed worker.
func (q *Postgres) RescueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue: begin rescue tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cutoff := time.Now().Add(-olderThan)

	rows, err := tx.Query(ctx,
		`UPDATE renders
		 SET status = 'failed', error_message = $2, updated_at = now()
		 WHERE status NOT IN ('completed', 'failed', 'cancelled')
		   AND updated_at < $1
		 RETURNING id`,
		cutoff, StuckRenderError,
	)
	if err != nil {
		return 0, fmt.Errorf("queue: rescue renders: %w", err)
	}
	var rescued []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("queue: scan rescued render: %w", err)
		}
		rescued = append(rescued, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("queue: rescue renders: %w", err)
	}

	if len(rescued) > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE render_jobs
			 SET state = 'failed', error_message = $2, completed_at = now(), updated_at = now()
			 WHERE render_id = ANY($1) AND state NOT IN ('completed', 'failed', 'cancelled')`,
			rescued, StuckRenderError,
		)
		if err != nil {
			return 0, fmt.Errorf("queue: rescue jobs: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("queue: commit rescue: %w", err)
	}
	return len(rescued), nil
}

// MaxConcurrentJobs reads the concurrency limit from the system_settings
// table. The value column is jsonb; accept a bare number or a quoted string.
func (q *Postgres) MaxConcurrentJobs(ctx context.Context) (int, error) {
	var raw []byte
	err := q.pool.QueryRow(ctx,
		`SELECT value FROM system_settings WHERE key = $1`, MaxConcurrentJobsKey,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSettingNotFound
		}
		return 0, fmt.Errorf("queue: read %s: %w", MaxConcurrentJobsKey, err)
	}
	return parseConcurrencySetting(raw)
}

func parseConcurrencySetting(raw []byte) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("queue: %s must be positive, got %d", MaxConcurrentJobsKey, n)
		}
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if _, convErr := fmt.Sscanf(s, "%d", &n); convErr == nil && n > 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("queue: invalid %s value %q", MaxConcurrentJobsKey, raw)
}
