package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	api "squeegee/pkg/api/squeegee"
)

func completeFlow(t *testing.T, body string) api.CompleteInstantPayFlowResponse {
	t.Helper()

	w := postJSON(t, CompleteInstantPayFlow, "/payments/instant-link/complete", []byte(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.CompleteInstantPayFlowResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return resp
}

func expectNoPurchase(mock sqlmock.Sqlmock, billingRequestID, subscriberID string) {
	if subscriberID != "" {
		mock.ExpectQuery(`SELECT id FROM squeegee\.sms_purchases WHERE billing_request_id = \$1 AND subscriber_id = \$2`).
			WithArgs(billingRequestID, subscriberID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}
	mock.ExpectQuery(`SELECT id FROM squeegee\.sms_purchases WHERE billing_request_id = \$1`).
		WithArgs(billingRequestID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func TestApplyPurchasedCreditsCompletesAndCredits(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, subscriber_id, credits, status`).
		WithArgs("BRQ123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subscriber_id", "credits", "status"}).
			AddRow("p1", "sub1", int64(600), "pending"))
	mock.ExpectExec(`UPDATE squeegee\.sms_purchases`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO squeegee\.sms_settings`).
		WithArgs("sub1", int64(600)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := applyPurchasedCredits(context.Background(), "BRQ123"); err != nil {
		t.Fatalf("applyPurchasedCredits returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestApplyPurchasedCreditsIsIdempotent(t *testing.T) {
	mock := setupTest(t)

	// Already completed: no update, no credit, transaction rolls back.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, subscriber_id, credits, status`).
		WithArgs("BRQ123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subscriber_id", "credits", "status"}).
			AddRow("p1", "sub1", int64(600), "completed"))
	mock.ExpectRollback()

	if err := applyPurchasedCredits(context.Background(), "BRQ123"); err != nil {
		t.Fatalf("expected no-op for completed purchase, got error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestApplyPurchasedCreditsRollsBackOnCreditFailure(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, subscriber_id, credits, status`).
		WithArgs("BRQ123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subscriber_id", "credits", "status"}).
			AddRow("p1", "sub1", int64(600), "pending"))
	mock.ExpectExec(`UPDATE squeegee\.sms_purchases`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO squeegee\.sms_settings`).
		WithArgs("sub1", int64(600)).
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	if err := applyPurchasedCredits(context.Background(), "BRQ123"); err == nil {
		t.Fatal("expected error when balance credit fails")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestAutoCompleteSandboxPurchase(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO squeegee\.sms_purchases`).
		WithArgs("sub1", int64(100), "BRQ999").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO squeegee\.sms_settings`).
		WithArgs("sub1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := autoCompleteSandboxPurchase(context.Background(), "sub1", "BRQ999", 100); err != nil {
		t.Fatalf("autoCompleteSandboxPurchase returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCompleteFlowAutoCompletesOnlyWhenAllConditionsHold(t *testing.T) {
	mock := setupTest(t)
	setProviderClient(t, "sandbox", "")

	expectNoPurchase(mock, "BRQ9", "sub1")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO squeegee\.sms_purchases`).
		WithArgs("sub1", int64(100), "BRQ9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO squeegee\.sms_settings`).
		WithArgs("sub1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp := completeFlow(t, `{"billingRequestId":"BRQ9","subscriberId":"sub1","credits":100,"sandboxForce":true}`)
	if !resp.SandboxApplied || !resp.SandboxAutoCompleted {
		t.Errorf("expected sandbox auto-completion, got %+v", resp)
	}
	if resp.Error != "" {
		t.Errorf("unexpected error: %q", resp.Error)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCompleteFlowNoAutoCompleteWithoutForceFlag(t *testing.T) {
	mock := setupTest(t)
	setProviderClient(t, "sandbox", "")

	expectNoPurchase(mock, "BRQ9", "sub1")

	resp := completeFlow(t, `{"billingRequestId":"BRQ9","subscriberId":"sub1","credits":100}`)
	if resp.SandboxApplied || resp.SandboxAutoCompleted {
		t.Errorf("expected no sandbox application without the force flag, got %+v", resp)
	}
	if resp.Error == "" {
		t.Error("expected the missing purchase to be reported")
	}

	// ExpectationsWereMet also proves no balance write happened.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCompleteFlowNoAutoCompleteWithoutCredits(t *testing.T) {
	mock := setupTest(t)
	setProviderClient(t, "sandbox", "")

	expectNoPurchase(mock, "BRQ9", "sub1")

	resp := completeFlow(t, `{"billingRequestId":"BRQ9","subscriberId":"sub1","credits":0,"sandboxForce":true}`)
	if resp.SandboxApplied || resp.SandboxAutoCompleted {
		t.Errorf("expected no sandbox application without a credit override, got %+v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCompleteFlowNoAutoCompleteWithoutSubscriber(t *testing.T) {
	mock := setupTest(t)
	setProviderClient(t, "sandbox", "")

	expectNoPurchase(mock, "BRQ9", "")

	resp := completeFlow(t, `{"billingRequestId":"BRQ9","credits":100,"sandboxForce":true}`)
	if resp.SandboxApplied || resp.SandboxAutoCompleted {
		t.Errorf("expected no sandbox application without a subscriber, got %+v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCompleteFlowNoAutoCompleteInLiveEnvironment(t *testing.T) {
	mock := setupTest(t)
	setProviderClient(t, "live", "")

	expectNoPurchase(mock, "BRQ9", "sub1")

	resp := completeFlow(t, `{"billingRequestId":"BRQ9","subscriberId":"sub1","credits":100,"sandboxForce":true}`)
	if resp.SandboxApplied || resp.SandboxAutoCompleted {
		t.Errorf("expected no sandbox application against live, got %+v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCompleteFlowPrefersExistingPurchaseOverSandbox(t *testing.T) {
	mock := setupTest(t)
	setProviderClient(t, "sandbox", "")

	mock.ExpectQuery(`SELECT id FROM squeegee\.sms_purchases WHERE billing_request_id = \$1 AND subscriber_id = \$2`).
		WithArgs("BRQ9", "sub1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p9"))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, subscriber_id, credits, status`).
		WithArgs("BRQ9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subscriber_id", "credits", "status"}).
			AddRow("p9", "sub1", int64(600), "pending"))
	mock.ExpectExec(`UPDATE squeegee\.sms_purchases`).
		WithArgs("p9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO squeegee\.sms_settings`).
		WithArgs("sub1", int64(600)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp := completeFlow(t, `{"billingRequestId":"BRQ9","subscriberId":"sub1","credits":100,"sandboxForce":true}`)
	if resp.SandboxApplied || resp.SandboxAutoCompleted {
		t.Errorf("expected the recorded purchase to win over sandbox, got %+v", resp)
	}
	if resp.Error != "" {
		t.Errorf("unexpected error: %q", resp.Error)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestPurchaseExistsScopesToSubscriberFirst(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectQuery(`SELECT id FROM squeegee\.sms_purchases WHERE billing_request_id = \$1 AND subscriber_id = \$2`).
		WithArgs("BRQ123", "sub1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))

	found, err := purchaseExists(context.Background(), "BRQ123", "sub1")
	if err != nil {
		t.Fatalf("purchaseExists returned error: %v", err)
	}
	if !found {
		t.Error("expected purchase to be found via subscriber-scoped lookup")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestPurchaseExistsFallsBackCrossTenant(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectQuery(`SELECT id FROM squeegee\.sms_purchases WHERE billing_request_id = \$1 AND subscriber_id = \$2`).
		WithArgs("BRQ123", "sub1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM squeegee\.sms_purchases WHERE billing_request_id = \$1`).
		WithArgs("BRQ123").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))

	found, err := purchaseExists(context.Background(), "BRQ123", "sub1")
	if err != nil {
		t.Fatalf("purchaseExists returned error: %v", err)
	}
	if !found {
		t.Error("expected purchase to be found via cross-tenant fallback")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestPurchaseExistsMissing(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectQuery(`SELECT id FROM squeegee\.sms_purchases WHERE billing_request_id = \$1`).
		WithArgs("BRQ404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	found, err := purchaseExists(context.Background(), "BRQ404", "")
	if err != nil {
		t.Fatalf("purchaseExists returned error: %v", err)
	}
	if found {
		t.Error("expected no purchase for unknown billing request")
	}
}
