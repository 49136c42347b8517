// Package run fans a batch of issue groups out to concurrently executing
// pipelines, bounded by a parallelism limit, and collects the run result.
package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/autofix/internal/db"
	"github.com/lucasnoah/autofix/internal/group"
	"github.com/lucasnoah/autofix/internal/pipeline"
	"github.com/lucasnoah/autofix/internal/report"
)

// Coordinator owns one batch run. The pipeline instance is shared across
// workers: per-group state lives in the pipeline's own context, and all
// shared collaborators are safe for concurrent use.
type Coordinator struct {
	pipe        *pipeline.Pipeline
	database    *db.DB // nil disables history recording
	maxParallel int
	dryRun      bool
	log         *zap.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(pipe *pipeline.Pipeline, database *db.DB, maxParallel int, dryRun bool, log *zap.Logger) *Coordinator {
	if maxParallel <= 0 {
		maxParallel = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		pipe:        pipe,
		database:    database,
		maxParallel: maxParallel,
		dryRun:      dryRun,
		log:         log,
	}
}

// Run processes all groups with bounded parallelism and returns the
// aggregated result. Individual group failures never fail the run; the
// returned error covers only run-level recording problems.
func (c *Coordinator) Run(ctx context.Context, groups []*group.IssueGroup) (*report.AutofixResult, error) {
	runID := uuid.NewString()
	startTime := time.Now()

	if c.database != nil {
		if err := c.database.StartRun(runID, c.dryRun); err != nil {
			return nil, err
		}
	}

	c.pipe.SetOnStageChange(func(stage pipeline.Stage, pc *pipeline.Context) {
		c.log.Info("stage",
			zap.String("run", runID),
			zap.String("group", pc.Group.ID),
			zap.String("stage", string(stage)))
		if c.database != nil {
			_ = c.database.LogRunEvent(runID, pc.Group.ID, string(stage), "stage_entered", "")
		}
	})

	c.log.Info("run started",
		zap.String("run", runID),
		zap.Int("groups", len(groups)),
		zap.Int("max_parallel", c.maxParallel),
		zap.Bool("dry_run", c.dryRun))

	results := make([]*pipeline.GroupResult, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.maxParallel)

	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			res := c.pipe.ProcessGroup(egCtx, g)
			results[i] = res
			c.recordResult(runID, res)
			return nil
		})
	}
	// Workers never return errors; Wait is for completion only.
	_ = eg.Wait()

	runResult := report.NewAutofixResult(results, c.dryRun, startTime)

	if c.database != nil {
		summaryJSON, err := report.RenderJSON(runResult)
		if err != nil {
			c.log.Warn("render run summary", zap.Error(err))
			summaryJSON = ""
		}
		if err := c.database.FinishRun(runID, runResult.TotalGroups, runResult.TotalPRs, runResult.TotalFailed, summaryJSON); err != nil {
			c.log.Warn("record run", zap.String("run", runID), zap.Error(err))
		}
	}

	c.log.Info("run finished",
		zap.String("run", runID),
		zap.Int("completed", runResult.TotalGroups-runResult.TotalFailed),
		zap.Int("failed", runResult.TotalFailed),
		zap.Int("prs", runResult.TotalPRs))
	return runResult, nil
}

func (c *Coordinator) recordResult(runID string, res *pipeline.GroupResult) {
	if c.database == nil {
		return
	}
	event := "group_completed"
	detail := ""
	if res.Status == pipeline.StatusFailed {
		event = "group_failed"
		detail = res.Error
	}
	_ = c.database.LogRunEvent(runID, res.GroupID, string(pipeline.StageDone), event, detail)
}
