package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/jobs"
	"github.com/gosuda/homeops/internal/scheduler"
	"github.com/gosuda/homeops/internal/server/middleware"
)

type ListJobsOutput struct {
	Body []scheduler.Status
}

type JobNameInput struct {
	Job string `path:"job" enum:"recurrence,overdue,digest" doc:"Job name"`
}

type RunJobBody struct {
	HouseIDs []int64 `json:"house_ids,omitempty" maxItems:"1000" doc:"Houses to run; all houses when empty"`
}

type RunJobInput struct {
	Job  string      `path:"job" enum:"recurrence,overdue,digest" doc:"Job name"`
	Body *RunJobBody // optional
}

type ReportOutput struct {
	Body *jobs.Report
}

func RegisterJobRoutes(api huma.API, sched JobScheduler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List scheduled jobs with their next run and last report",
		Tags:        []string{"Jobs"},
	}, func(_ context.Context, _ *struct{}) (*ListJobsOutput, error) {
		return &ListJobsOutput{Body: sched.Statuses()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job}/run",
		Summary:     "Run a job now",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *RunJobInput) (*ReportOutput, error) {
		if err := requireRole(ctx, middleware.RoleAdmin, middleware.RoleOperator); err != nil {
			return nil, err
		}

		var houseIDs []int64
		if input.Body != nil {
			houseIDs = input.Body.HouseIDs
		}

		// The batch outlives a dropped client so its report is still recorded.
		report, err := sched.TriggerHouses(context.WithoutCancel(ctx), jobs.Name(input.Job), houseIDs)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			return nil, huma.Error404NotFound("job not scheduled")
		case errors.Is(err, domain.ErrLocked):
			return nil, huma.Error409Conflict("job already running")
		default:
			return nil, huma.Error500InternalServerError("failed to run job", err)
		}

		return &ReportOutput{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-last-report",
		Method:      http.MethodGet,
		Path:        "/jobs/{job}/last",
		Summary:     "Get the report of the most recent run of a job",
		Tags:        []string{"Jobs"},
	}, func(_ context.Context, input *JobNameInput) (*ReportOutput, error) {
		report, ok := sched.Last(jobs.Name(input.Job))
		if !ok {
			return nil, huma.Error404NotFound("job has not run yet")
		}
		return &ReportOutput{Body: report}, nil
	})
}
