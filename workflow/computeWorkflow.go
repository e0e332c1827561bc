package workflow

import (
	"context"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/fx"
	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("payouts-backend")

// ComputeResult is the full compute response: per-line every PayoutLine
// field, plus the resolved month key and run status, enough for a caller to
// render or re-audit the computation without recomputing.
type ComputeResult struct {
	Run      *models.PayoutRun    `json:"run"`
	Lines    []*models.PayoutLine `json:"lines"`
	MonthKey string               `json:"month_key"`
	Status   models.RunStatus     `json:"status"`
	FxRate   fx.Rate              `json:"fx_rate"`
}

// ComputePayouts runs the month's pipeline: roster and basis records in,
// aggregation, per-member pricing, idempotent reconciliation out. Identical
// inputs converge to the same run and line set no matter how often it runs.
func ComputePayouts(ctx context.Context, resolver fx.Resolver, monthId int) (*ComputeResult, error) {

	ctx, span := tracer.Start(ctx, "workflow.ComputePayouts")
	defer span.End()
	span.SetAttributes(attribute.Int("month_id", monthId))

	if monthId <= 0 {
		return nil, utils.NewClientError("month_id is required")
	}
	month, err := models.GetMonth(ctx, monthId)
	if err != nil {
		return nil, err
	}

	members, err := models.GetActiveTeamMembers(ctx)
	if err != nil {
		return nil, err
	}
	records, err := models.GetBasisRecordsByMonth(ctx, monthId)
	if err != nil {
		return nil, err
	}

	// FX unavailability is never fatal here: the chain bottoms out at the
	// fixed default rate and the breakdown records its provenance.
	rate := fx.Fallback()
	if resolver != nil {
		if resolved, rerr := resolver.Resolve(ctx); rerr == nil {
			rate = resolved
		} else {
			config.LogError(config.GetLogger(), "workflow", "ComputePayouts", "fx resolve", nil, rerr)
		}
	}

	aggregates := AggregateBasis(members, records)

	previews := make([]PreviewLine, 0, len(members))
	for _, member := range members {
		preview, cerr := ComputeLine(member, aggregates[member.ID], rate)
		if cerr != nil {
			return nil, fmt.Errorf("compute line for team member %d: %w", member.ID, cerr)
		}
		previews = append(previews, preview)
	}
	sort.Slice(previews, func(i, j int) bool {
		return previews[i].TeamMemberId < previews[j].TeamMemberId
	})

	run, lines, err := ReconcileLines(ctx, config.GetDB(), monthId, previews)
	if err != nil {
		return nil, err
	}

	logger := config.GetLogger()
	if logger != nil {
		userId, _ := utils.GetUserIdFromContext(ctx)
		logger.WithFields(logrus.Fields{
			"module":    "workflow",
			"month_id":  monthId,
			"run_id":    run.ID,
			"lines":     len(lines),
			"fx_source": rate.Source,
			"user_id":   userId,
		}).Info("payout compute finished")
	}

	return &ComputeResult{
		Run:      run,
		Lines:    lines,
		MonthKey: month.MonthKey,
		Status:   run.Status,
		FxRate:   rate,
	}, nil
}
