package handlers

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestListPendingPurchases(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectQuery(`SELECT billing_request_id`).
		WillReturnRows(sqlmock.NewRows([]string{"billing_request_id"}).
			AddRow("BRQ1").
			AddRow("BRQ2"))

	ids, err := listPendingPurchases(context.Background())
	if err != nil {
		t.Fatalf("listPendingPurchases returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "BRQ1" || ids[1] != "BRQ2" {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestListPendingPurchasesSurfacesIterationErrors(t *testing.T) {
	mock := setupTest(t)

	mock.ExpectQuery(`SELECT billing_request_id`).
		WillReturnRows(sqlmock.NewRows([]string{"billing_request_id"}).
			AddRow("BRQ1").
			AddRow("BRQ2").
			RowError(1, errors.New("connection reset")))

	if _, err := listPendingPurchases(context.Background()); err == nil {
		t.Fatal("expected iteration error to surface, got nil")
	}
}
