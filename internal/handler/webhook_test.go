package handler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/repository"
	"github.com/raspaplay/wallet-api/internal/service/affiliate"
	"github.com/raspaplay/wallet-api/internal/service/commission"
	"github.com/raspaplay/wallet-api/internal/service/deposit"
	"github.com/raspaplay/wallet-api/internal/service/postback"
	"github.com/raspaplay/wallet-api/internal/service/withdrawal"
	"github.com/raspaplay/wallet-api/internal/settings"
	"github.com/raspaplay/wallet-api/internal/testutil"
)

func newWebhookHandler(db *sql.DB, plan *domain.Settings) *WebhookHandler {
	provider := settings.Static(plan)
	audit := repository.NewAuditRepository(db)
	depositRepo := repository.NewDepositRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	depositSvc := deposit.NewService(depositRepo, accountRepo, ledgerRepo, audit, nil, provider, db)
	withdrawalSvc := withdrawal.NewService(
		repository.NewWithdrawalRepository(db), accountRepo, ledgerRepo, audit, nil, provider, db,
	)
	engine := commission.NewEngine(accountRepo, repository.NewCommissionRepository(db), provider, db)
	dispatcher := postback.NewDispatcher(repository.NewPostbackRepository(db), depositRepo, provider, time.Second, 10)

	return NewWebhookHandler(
		depositSvc, engine, dispatcher, withdrawalSvc,
		repository.NewWebhookEventRepository(db), audit, provider,
	)
}

func webhookPlan() *domain.Settings {
	return &domain.Settings{
		Level1Rate:         decimal.RequireFromString("0.10"),
		Level2Rate:         decimal.RequireFromString("0.05"),
		Level3Rate:         decimal.RequireFromString("0.02"),
		RolloverMultiplier: decimal.NewFromInt(1),
	}
}

func depositWebhookBody(identifier string) string {
	return fmt.Sprintf(
		`{"event":"TRANSACTION_PAID","transaction":{"identifier":%q,"paidAt":%q}}`,
		identifier, time.Now().UTC().Format(time.RFC3339),
	)
}

func postWebhook(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/deposit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["status"]
}

func TestWebhookHandler_DepositReplayCreditsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)

	affiliateAcc := testutil.SeedAccount(t, db, "affiliate", 0, nil)
	depositor := testutil.SeedAccount(t, db, "depositor", 0, &affiliateAcc.ID)
	d := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusPending)

	h := newWebhookHandler(db, webhookPlan())
	body := depositWebhookBody(d.Identifier)

	for i := range 5 {
		rec := postWebhook(h.ReceiveDeposit, body)
		assert.Equal(t, http.StatusOK, rec.Code, "delivery %d", i+1)
		assert.Equal(t, "success", decodeStatus(t, rec))
	}

	balance, _, rollover := testutil.GetAccount(t, db, depositor.ID)
	assert.Equal(t, int64(10_000), balance, "five deliveries, one credit")
	assert.Equal(t, int64(10_000), rollover)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, d.ID, domain.EntryTypeDeposit))

	_, affCommission, _ := testutil.GetAccount(t, db, affiliateAcc.ID)
	assert.Equal(t, int64(1_000), affCommission)
	assert.Equal(t, 1, testutil.CountCommissions(t, db, d.ID))

	var postbacks int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM postback_events`).Scan(&postbacks))
	assert.Equal(t, 1, postbacks)
}

func TestWebhookHandler_IgnoresOtherEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)

	depositor := testutil.SeedAccount(t, db, "depositor", 0, nil)
	d := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusPending)

	h := newWebhookHandler(db, webhookPlan())
	body := fmt.Sprintf(`{"event":"TRANSACTION_CREATED","transaction":{"identifier":%q}}`, d.Identifier)

	rec := postWebhook(h.ReceiveDeposit, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeStatus(t, rec))

	balance, _, _ := testutil.GetAccount(t, db, depositor.ID)
	assert.Zero(t, balance)
}

func TestWebhookHandler_UnknownIdentifierStill200(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newWebhookHandler(db, webhookPlan())

	rec := postWebhook(h.ReceiveDeposit, depositWebhookBody("no-such-identifier"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", decodeStatus(t, rec))

	var auditRows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit_logs WHERE scope = 'webhook.deposit'`).Scan(&auditRows))
	assert.Equal(t, 1, auditRows)
}

func TestWebhookHandler_MalformedBodyStill200(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newWebhookHandler(db, webhookPlan())

	rec := postWebhook(h.ReceiveDeposit, `{not json`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", decodeStatus(t, rec))
}

func TestWebhookHandler_AllowlistRejects(t *testing.T) {
	db := testutil.SetupTestDB(t)

	plan := webhookPlan()
	plan.WebhookAllowedIPs = []string{"10.1.2.3"}
	h := newWebhookHandler(db, plan)

	rec := postWebhook(h.ReceiveDeposit, depositWebhookBody("whatever"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The allowed address passes through the proxy header.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/deposit", strings.NewReader(depositWebhookBody("whatever")))
	req.Header.Set("X-Forwarded-For", "10.1.2.3")
	rec = httptest.NewRecorder()
	h.ReceiveDeposit(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookHandler_RecordsWebhookEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)

	depositor := testutil.SeedAccount(t, db, "depositor", 0, nil)
	d := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusPending)

	h := newWebhookHandler(db, webhookPlan())
	postWebhook(h.ReceiveDeposit, depositWebhookBody(d.Identifier))
	postWebhook(h.ReceiveDeposit, depositWebhookBody(d.Identifier))

	rows, err := db.Query(`SELECT outcome FROM webhook_events WHERE source = 'deposit' ORDER BY created_at`)
	require.NoError(t, err)
	defer rows.Close()

	var outcomes []string
	for rows.Next() {
		var outcome sql.NullString
		require.NoError(t, rows.Scan(&outcome))
		outcomes = append(outcomes, outcome.String)
	}
	require.NoError(t, rows.Err())
	require.Len(t, outcomes, 2)
	assert.Equal(t, "success", outcomes[0])
	assert.Equal(t, "success: already completed", outcomes[1])
}

// Keeps the affiliate report wired through the same seeded world the
// webhook tests use: deposits that arrived via webhooks must show up in
// the referrer's report.
func TestAffiliateReportAfterWebhookCredit(t *testing.T) {
	db := testutil.SetupTestDB(t)

	affiliateAcc := testutil.SeedAccount(t, db, "affiliate", 0, nil)
	depositor := testutil.SeedAccount(t, db, "depositor", 0, &affiliateAcc.ID)
	d := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusPending)

	h := newWebhookHandler(db, webhookPlan())
	rec := postWebhook(h.ReceiveDeposit, depositWebhookBody(d.Identifier))
	require.Equal(t, http.StatusOK, rec.Code)

	reporter := affiliate.NewReporter(
		repository.NewAccountRepository(db),
		repository.NewDepositRepository(db),
		repository.NewCommissionRepository(db),
	)
	report, err := reporter.Build(t.Context(), affiliateAcc.ID)
	require.NoError(t, err)

	assert.Equal(t, [3]int{1, 0, 0}, report.LevelCounts)
	assert.Equal(t, int64(10_000), report.TotalDeposited)
	assert.Equal(t, int64(1_000), report.TotalEarned)
	require.Len(t, report.Referrals, 1)
	assert.Equal(t, depositor.ID, report.Referrals[0].AccountID)
}
