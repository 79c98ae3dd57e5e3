package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/ledger"
	"github.com/mvillegas/fincore/pkg/store"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	l := ledger.NewLedger(store.NewMemoryStore(), zap.NewNop())
	return NewServer(l, zap.NewNop())
}

func doRequest(t *testing.T, s *Server, method, path string, body any, actorUID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actorUID != "" {
		req.Header.Set("X-Actor-Uid", actorUID)
		req.Header.Set("X-Actor-Email", actorUID+"@x.io")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func seedFunderWallet(t *testing.T, s *Server) {
	t.Helper()
	rec := doRequest(t, s, "POST", "/wallets/funder/credit", map[string]any{
		"email":  "funder@x.io",
		"amount": "500000",
	}, "funder")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func createTestLoan(t *testing.T, s *Server) string {
	t.Helper()
	rec := doRequest(t, s, "POST", "/loans", map[string]any{
		"customerDni":      "30123456",
		"customerName":     "Carla Gomez",
		"loanType":         "simple",
		"principal":        "300000",
		"rateValue":        "10",
		"termCount":        3,
		"frequency":        "monthly",
		"startDate":        "2025-06-01T00:00:00Z",
		"fundingSourceUid": "funder",
	}, "funder")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var loan struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &loan)
	require.NotEmpty(t, loan.ID)
	return loan.ID
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	s := setupTestServer(t)
	seedFunderWallet(t, s)
	loanID := createTestLoan(t, s)

	rec := doRequest(t, s, "GET", "/loans/"+loanID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var loan struct {
		TotalDue string `json:"totalDue"`
		Status   string `json:"status"`
	}
	decodeBody(t, rec, &loan)
	assert.Equal(t, "390000", loan.TotalDue)
	assert.Equal(t, "active", loan.Status)

	rec = doRequest(t, s, "GET", "/loans/"+loanID+"/installments", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var installments []struct {
		Number int    `json:"number"`
		Amount string `json:"amount"`
	}
	decodeBody(t, rec, &installments)
	require.Len(t, installments, 3)
	assert.Equal(t, "130000", installments[0].Amount)

	rec = doRequest(t, s, "POST", "/loans/"+loanID+"/payments", map[string]any{
		"amount": "130000",
		"method": "cash",
	}, "collector")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var payRes struct {
		PaymentID          string `json:"paymentId"`
		InstallmentUpdated int    `json:"installmentUpdated"`
		LoanStatus         string `json:"loanStatus"`
	}
	decodeBody(t, rec, &payRes)
	assert.Equal(t, 1, payRes.InstallmentUpdated)
	assert.Equal(t, "active", payRes.LoanStatus)

	// The collector's wallet took the cash.
	rec = doRequest(t, s, "GET", "/wallets", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var wallets []struct {
		UID     string `json:"uid"`
		Balance string `json:"balance"`
	}
	decodeBody(t, rec, &wallets)
	found := false
	for _, w := range wallets {
		if w.UID == "collector" {
			found = true
			assert.Equal(t, "130000", w.Balance)
		}
	}
	assert.True(t, found)
}

func TestPaymentIdempotencyOverHTTP(t *testing.T) {
	s := setupTestServer(t)
	seedFunderWallet(t, s)
	loanID := createTestLoan(t, s)

	body := map[string]any{"paymentId": "pay-1", "amount": "130000"}
	rec := doRequest(t, s, "POST", "/loans/"+loanID+"/payments", body, "collector")
	require.Equal(t, http.StatusCreated, rec.Code)

	// The replay answers 200, not 201.
	rec = doRequest(t, s, "POST", "/loans/"+loanID+"/payments", body, "collector")
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		AlreadyApplied bool `json:"alreadyApplied"`
	}
	decodeBody(t, rec, &res)
	assert.True(t, res.AlreadyApplied)
}

func TestErrorEnvelope(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, "GET", "/loans/nope", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var e struct {
		OK      bool   `json:"ok"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	decodeBody(t, rec, &e)
	assert.False(t, e.OK)
	assert.Equal(t, "NOT_FOUND", e.Code)
	assert.NotEmpty(t, e.Message)

	rec = doRequest(t, s, "POST", "/loans", map[string]any{
		"customerDni": "1", "loanType": "simple", "principal": "-10",
		"frequency": "monthly", "termCount": 1, "fundingSourceUid": "funder",
	}, "funder")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	decodeBody(t, rec, &e)
	assert.Equal(t, "VALIDATION", e.Code)
}

func TestExceedsPendingEnvelope(t *testing.T) {
	s := setupTestServer(t)
	seedFunderWallet(t, s)
	loanID := createTestLoan(t, s)

	rec := doRequest(t, s, "POST", "/loans/"+loanID+"/payments", map[string]any{
		"installmentNumber": 1,
		"amount":            "200000",
	}, "collector")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var e struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	decodeBody(t, rec, &e)
	assert.Equal(t, "EXCEEDS_PENDING", e.Code)
	assert.Contains(t, e.Details, "pending")
	assert.Contains(t, e.Details, "requested")
}

func TestCurrencyTradingOverHTTP(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, "POST", "/currency/buy", map[string]any{
		"usd": "100", "price": "1000",
	}, "trader")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, s, "POST", "/currency/sell", map[string]any{
		"usd": "40", "price": "1200",
	}, "trader")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sell struct {
		MovementID  string `json:"movementId"`
		ProfitTotal string `json:"profitTotal"`
	}
	decodeBody(t, rec, &sell)
	assert.Equal(t, "8000", sell.ProfitTotal)

	rec = doRequest(t, s, "GET", "/currency/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		AvailableUSD string `json:"availableUsd"`
		MonthProfit  string `json:"monthProfit"`
	}
	decodeBody(t, rec, &summary)
	assert.Equal(t, "60", summary.AvailableUSD)
	assert.Equal(t, "8000", summary.MonthProfit)

	rec = doRequest(t, s, "POST", "/currency/sell", map[string]any{
		"usd": "500", "price": "1200",
	}, "trader")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var e struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &e)
	assert.Equal(t, "INSUFFICIENT_STOCK", e.Code)

	rec = doRequest(t, s, "POST", "/currency/movements/"+sell.MovementID+"/void", map[string]any{
		"reason": "typo",
	}, "trader")
	require.Equal(t, http.StatusOK, rec.Code)
	var vr struct {
		Voided bool `json:"voided"`
	}
	decodeBody(t, rec, &vr)
	assert.True(t, vr.Voided)
}

func TestVoidLoanOverHTTP(t *testing.T) {
	s := setupTestServer(t)
	seedFunderWallet(t, s)
	loanID := createTestLoan(t, s)

	rec := doRequest(t, s, "POST", "/loans/"+loanID+"/payments", map[string]any{
		"amount": "130000",
	}, "collector")
	require.Equal(t, http.StatusCreated, rec.Code)

	// With a live payment the plain void is refused.
	rec = doRequest(t, s, "POST", "/loans/"+loanID+"/void", map[string]any{
		"reason": "mistake",
	}, "funder")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var e struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &e)
	assert.Equal(t, "HAS_PAYMENTS", e.Code)

	rec = doRequest(t, s, "POST", "/loans/"+loanID+"/void", map[string]any{
		"reason":       "mistake",
		"withPayments": true,
	}, "funder")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var vr struct {
		Voided         bool `json:"voided"`
		PaymentsVoided int  `json:"paymentsVoided"`
	}
	decodeBody(t, rec, &vr)
	assert.True(t, vr.Voided)
	assert.Equal(t, 1, vr.PaymentsVoided)

	rec = doRequest(t, s, "GET", "/loans/"+loanID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var loan struct {
		Status string `json:"status"`
		Voided bool   `json:"voided"`
	}
	decodeBody(t, rec, &loan)
	assert.Equal(t, "void", loan.Status)
	assert.True(t, loan.Voided)
}

func TestTreasuryAndMovementsOverHTTP(t *testing.T) {
	s := setupTestServer(t)
	seedFunderWallet(t, s)
	loanID := createTestLoan(t, s)
	rec := doRequest(t, s, "POST", "/loans/"+loanID+"/payments", map[string]any{
		"amount": "130000",
	}, "collector")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, "GET", "/treasury", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tr struct {
		TotalCollected       string `json:"totalCollected"`
		TotalDisbursed       string `json:"totalDisbursed"`
		TotalLoanOutstanding string `json:"totalLoanOutstanding"`
	}
	decodeBody(t, rec, &tr)
	assert.Equal(t, "130000", tr.TotalCollected)
	assert.Equal(t, "300000", tr.TotalDisbursed)
	assert.Equal(t, "200000", tr.TotalLoanOutstanding)

	rec = doRequest(t, s, "GET", "/movements?limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var movements []struct {
		Type string `json:"type"`
	}
	decodeBody(t, rec, &movements)
	require.NotEmpty(t, movements)
	// Newest first: the payment movement leads.
	assert.Equal(t, "payment_create", movements[0].Type)

	rec = doRequest(t, s, "GET", "/movements?limit=0", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
