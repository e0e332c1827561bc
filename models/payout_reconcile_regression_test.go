package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/fx"
	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"bitbucket.org/mmdatafocus/payouts_backend/workflow"
	"github.com/shopspring/decimal"
)

// fixedResolver returns the same provider-source rate on every call, so
// repeated computations see identical FX inputs.
type fixedResolver struct {
	rate fx.Rate
}

func (r fixedResolver) Resolve(ctx context.Context) (fx.Rate, error) {
	return r.rate, nil
}

func testProviderRate(rateStr string) fx.Rate {
	rate, _ := decimal.NewFromString(rateStr)
	return fx.Rate{
		Rate:          rate,
		BaseCurrency:  "USD",
		QuoteCurrency: "EUR",
		AsOf:          "2025-07-31",
		Source:        fx.SourceProvider,
	}
}

func TestPayoutComputeIsIdempotent(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "payouts_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	// Audit writes attribute changes to the context user.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	ctx = utils.SetUserEmailInContext(ctx, "test@local")

	month, err := models.CreateMonth(ctx, &models.NewMonth{
		MonthKey:  "2025-07",
		MonthName: "July 2025",
	})
	if err != nil {
		t.Fatalf("CreateMonth: %v", err)
	}

	pct, err := models.CreateTeamMember(ctx, &models.NewTeamMember{
		Name:             "Percentage Member",
		Email:            "pct@test.local",
		PayoutType:       "percentage",
		PayoutPercentage: decimal.NewFromFloat(0.1),
		Currency:         "EUR",
	})
	if err != nil {
		t.Fatalf("CreateTeamMember(pct): %v", err)
	}
	flat, err := models.CreateTeamMember(ctx, &models.NewTeamMember{
		Name:          "Flat Fee Member",
		Email:         "flat@test.local",
		PayoutType:    "flat_fee",
		PayoutFlatFee: decimal.NewFromInt(850),
		Currency:      "USD",
	})
	if err != nil {
		t.Fatalf("CreateTeamMember(flat): %v", err)
	}

	if _, err := models.CreateBasisRecord(ctx, &models.NewBasisRecord{
		TeamMemberId: pct.ID,
		MonthId:      month.ID,
		BasisType:    "webapp",
		AmountEur:    decimal.RequireFromString("1000.00"),
	}); err != nil {
		t.Fatalf("CreateBasisRecord: %v", err)
	}

	resolver := fixedResolver{rate: testProviderRate("0.92")}

	first, err := workflow.ComputePayouts(ctx, resolver, month.ID)
	if err != nil {
		t.Fatalf("ComputePayouts(first): %v", err)
	}
	if len(first.Lines) != 2 {
		t.Fatalf("first compute produced %d lines; want 2", len(first.Lines))
	}

	pctLine := findLine(t, first.Lines, pct.ID)
	if got := pctLine.AmountEur.String(); got != "100" {
		t.Errorf("pct amount_eur = %s; want 100", got)
	}
	if got := pctLine.AmountUsd.String(); got != "108.7" {
		t.Errorf("pct amount_usd = %s; want 108.7", got)
	}
	flatLine := findLine(t, first.Lines, flat.ID)
	if got := flatLine.AmountEur.String(); got != "850" {
		t.Errorf("flat amount_eur = %s; want 850", got)
	}

	db := config.GetDB()
	var auditsAfterFirst int64
	if err := db.WithContext(ctx).Model(&models.AuditLogEntry{}).
		Where("table_name = ?", "payout_lines").Count(&auditsAfterFirst).Error; err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if auditsAfterFirst == 0 {
		t.Fatal("first compute wrote no payout_lines audit entries")
	}

	// Run creation itself is audited, one entry per populated run field.
	var runAuditsAfterFirst int64
	if err := db.WithContext(ctx).Model(&models.AuditLogEntry{}).
		Where("table_name = ? AND record_id = ?", "payout_runs", first.Run.ID).
		Count(&runAuditsAfterFirst).Error; err != nil {
		t.Fatalf("count run audits: %v", err)
	}
	if runAuditsAfterFirst == 0 {
		t.Fatal("run creation wrote no payout_runs audit entries")
	}

	// Second compute with identical inputs: same run, same lines, no new
	// audit rows.
	second, err := workflow.ComputePayouts(ctx, resolver, month.ID)
	if err != nil {
		t.Fatalf("ComputePayouts(second): %v", err)
	}
	if second.Run.ID != first.Run.ID {
		t.Errorf("second compute run id %d != first %d", second.Run.ID, first.Run.ID)
	}
	var lineCount int64
	if err := db.WithContext(ctx).Model(&models.PayoutLine{}).
		Where("run_id = ?", first.Run.ID).Count(&lineCount).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lineCount != 2 {
		t.Errorf("line count after recompute = %d; want 2", lineCount)
	}

	var auditsAfterSecond int64
	if err := db.WithContext(ctx).Model(&models.AuditLogEntry{}).
		Where("table_name = ?", "payout_lines").Count(&auditsAfterSecond).Error; err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if auditsAfterSecond != auditsAfterFirst {
		t.Errorf("no-op recompute wrote audits: %d -> %d", auditsAfterFirst, auditsAfterSecond)
	}
	var runAuditsAfterSecond int64
	if err := db.WithContext(ctx).Model(&models.AuditLogEntry{}).
		Where("table_name = ? AND record_id = ?", "payout_runs", first.Run.ID).
		Count(&runAuditsAfterSecond).Error; err != nil {
		t.Fatalf("count run audits: %v", err)
	}
	if runAuditsAfterSecond != runAuditsAfterFirst {
		t.Errorf("recompute with an existing run wrote run audits: %d -> %d",
			runAuditsAfterFirst, runAuditsAfterSecond)
	}

	// A manual fine is normalized to a negative amount in both currencies
	// and flows into the next compute as a basis change.
	fine, err := models.RecordAdjustment(ctx, resolver, &models.NewAdjustment{
		MonthId:        month.ID,
		TeamMemberId:   pct.ID,
		AdjustmentType: "fine",
		AmountEur:      decimal.RequireFromString("50.00"),
		Notes:          "late report",
	})
	if err != nil {
		t.Fatalf("RecordAdjustment: %v", err)
	}
	if !fine.AmountEur.IsNegative() || !fine.AmountUsd.IsNegative() {
		t.Errorf("fine stored non-negative: eur=%s usd=%s", fine.AmountEur, fine.AmountUsd)
	}

	third, err := workflow.ComputePayouts(ctx, resolver, month.ID)
	if err != nil {
		t.Fatalf("ComputePayouts(third): %v", err)
	}
	pctLine3 := findLine(t, third.Lines, pct.ID)
	// Basis 1000.00 - 50.00 = 950.00, payout 10% = 95.00.
	if got := pctLine3.AmountEur.String(); got != "95" {
		t.Errorf("pct amount_eur after fine = %s; want 95", got)
	}

	var auditsAfterThird int64
	if err := db.WithContext(ctx).Model(&models.AuditLogEntry{}).
		Where("table_name = ?", "payout_lines").Count(&auditsAfterThird).Error; err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if auditsAfterThird <= auditsAfterSecond {
		t.Error("changed line did not produce new audit entries")
	}

	// A finalized run rejects recomputes until reopened.
	if _, err := models.FinalizePayoutRun(ctx, month.ID, "July signed off"); err != nil {
		t.Fatalf("FinalizePayoutRun: %v", err)
	}
	if _, err := workflow.ComputePayouts(ctx, resolver, month.ID); err == nil {
		t.Error("compute against a finalized run must fail")
	} else if !utils.IsClientError(err) {
		t.Errorf("finalized-run rejection should be a client error; got %v", err)
	}
	if _, err := models.ReopenPayoutRun(ctx, month.ID); err != nil {
		t.Fatalf("ReopenPayoutRun: %v", err)
	}
	if _, err := workflow.ComputePayouts(ctx, resolver, month.ID); err != nil {
		t.Errorf("compute after reopen: %v", err)
	}

	// Concurrent computes of the same month converge: the insert races on the
	// run and on each (run_id, team_member_id) line resolve by re-reading the
	// winner's row, never by failing or duplicating.
	var wg sync.WaitGroup
	computeErrs := make([]error, 4)
	for i := range computeErrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, computeErrs[i] = workflow.ComputePayouts(ctx, resolver, month.ID)
		}(i)
	}
	wg.Wait()
	for i, cerr := range computeErrs {
		if cerr != nil {
			t.Errorf("concurrent compute %d: %v", i, cerr)
		}
	}
	if err := db.WithContext(ctx).Model(&models.PayoutLine{}).
		Where("run_id = ?", first.Run.ID).Count(&lineCount).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lineCount != 2 {
		t.Errorf("line count after concurrent computes = %d; want 2", lineCount)
	}
	var runCount int64
	if err := db.WithContext(ctx).Model(&models.PayoutRun{}).
		Where("month_id = ?", month.ID).Count(&runCount).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runCount != 1 {
		t.Errorf("run count after concurrent computes = %d; want 1", runCount)
	}
}

func findLine(t *testing.T, lines []*models.PayoutLine, memberId int) *models.PayoutLine {
	t.Helper()
	for _, line := range lines {
		if line.TeamMemberId == memberId {
			return line
		}
	}
	t.Fatalf("no payout line for team member %d", memberId)
	return nil
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("payouts-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("payouts-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=payouts_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
