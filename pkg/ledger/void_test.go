package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvillegas/fincore/pkg/errs"
	"github.com/mvillegas/fincore/pkg/models"
)

func TestVoidPaymentRestoresState(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	in := simpleLoanInput()
	in.HasIntermediary = true
	in.InterestSplit = models.InterestSplit{TotalPct: d("10"), MyPct: d("6"), IntermediaryPct: d("4")}
	loan, err := l.CreateLoan(ctx, in, funder)
	require.NoError(t, err)

	res, err := l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.NoError(t, err)

	vr, err := l.VoidPayment(ctx, res.PaymentID, "duplicate entry", funder)
	require.NoError(t, err)
	assert.True(t, vr.Voided)

	// Every derived quantity is back where it started.
	loan, err = l.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, loan.PaidTotal.IsZero())
	assert.True(t, loan.PaidInterest.IsZero())
	assert.True(t, loan.PaidPrincipal.IsZero())
	assert.True(t, loan.PrincipalOutstanding.Equal(d("300000")))
	assert.True(t, loan.Installments[0].PaidTotal.IsZero())
	assert.True(t, loan.InterestEarnedMine.IsZero())
	assert.True(t, loan.InterestEarnedIntermediary.IsZero())

	w, err := l.store.Wallet(ctx, collector.UID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	rows, err := l.MonthlyProfits(ctx, 2025)
	require.NoError(t, err)
	assert.True(t, rows[5].Mine.IsZero())
	assert.True(t, rows[5].InterestTotal.IsZero())

	tr, err := l.TreasurySummary(ctx)
	require.NoError(t, err)
	assert.True(t, tr.TotalCollected.IsZero())
	assert.True(t, tr.TotalLoanOutstanding.Equal(d("300000")))

	users, err := l.TreasuryByUser(ctx)
	require.NoError(t, err)
	for _, u := range users {
		if u.UID == collector.UID {
			assert.Equal(t, 0, u.PaymentsCount)
			assert.True(t, u.Collected.IsZero())
		}
	}

	p, err := l.Payment(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.True(t, p.Voided)
	assert.Equal(t, "duplicate entry", p.VoidReason)

	// Replayed void is a success no-op.
	vr, err = l.VoidPayment(ctx, res.PaymentID, "again", funder)
	require.NoError(t, err)
	assert.True(t, vr.AlreadyVoided)

	// Re-applying an identical payment under a fresh id reproduces the
	// pre-void state.
	_, err = l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.NoError(t, err)
	loan, err = l.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, loan.PaidTotal.Equal(d("130000")))
	assert.True(t, loan.InterestEarnedMine.Equal(d("18000")))
	w, err = l.store.Wallet(ctx, collector.UID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(d("130000")))
}

func TestVoidPaymentReopensFinishedLoan(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	loan, err := l.CreateLoan(ctx, simpleLoanInput(), funder)
	require.NoError(t, err)

	var last *PaymentResult
	for i := 0; i < 3; i++ {
		last, err = l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
			LoanID: loan.ID, Amount: d("130000"),
		}, collector)
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusFinished, last.LoanStatus)

	_, err = l.VoidPayment(ctx, last.PaymentID, "", funder)
	require.NoError(t, err)

	loan, err = l.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.StatusFinished, loan.Status)
	assert.Nil(t, loan.EndDate)
	assert.True(t, loan.PaidTotal.Equal(d("260000")))
}

func TestVoidLoanRequiresNoPayments(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	loan, err := l.CreateLoan(ctx, simpleLoanInput(), funder)
	require.NoError(t, err)
	res, err := l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.NoError(t, err)

	_, err = l.VoidLoan(ctx, loan.ID, "mistake", funder)
	require.Error(t, err)
	assert.Equal(t, errs.CodeHasPayments, errs.As(err).Code)

	// Voiding the payment first clears the way.
	_, err = l.VoidPayment(ctx, res.PaymentID, "", funder)
	require.NoError(t, err)
	vr, err := l.VoidLoan(ctx, loan.ID, "mistake", funder)
	require.NoError(t, err)
	assert.True(t, vr.Voided)

	loan, err = l.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVoid, loan.Status)
	assert.True(t, loan.Voided)
}

func TestVoidLoanRestoresTreasuryAndWallet(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	loan, err := l.CreateLoan(ctx, simpleLoanInput(), funder)
	require.NoError(t, err)

	vr, err := l.VoidLoan(ctx, loan.ID, "wrong customer", funder)
	require.NoError(t, err)
	assert.True(t, vr.Voided)

	// The disbursed cash came back and treasury shows no exposure.
	w, err := l.store.Wallet(ctx, funder.UID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(d("500000")))

	tr, err := l.TreasurySummary(ctx)
	require.NoError(t, err)
	assert.True(t, tr.TotalDisbursed.IsZero())
	assert.True(t, tr.TotalLoanOutstanding.IsZero())

	// Idempotent replay.
	vr, err = l.VoidLoan(ctx, loan.ID, "again", funder)
	require.NoError(t, err)
	assert.True(t, vr.AlreadyVoided)

	// A voided loan takes no further payments.
	_, err = l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.Error(t, err)
	assert.Equal(t, errs.CodeAlreadyVoided, errs.As(err).Code)
}

func TestVoidPendingLoanSkipsDisbursementReversal(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	in := simpleLoanInput()
	in.RequireApproval = true
	loan, err := l.CreateLoan(ctx, in, funder)
	require.NoError(t, err)

	vr, err := l.VoidLoan(ctx, loan.ID, "never approved", funder)
	require.NoError(t, err)
	assert.True(t, vr.Voided)

	// Nothing was disbursed, so nothing comes back.
	w, err := l.store.Wallet(ctx, funder.UID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(d("500000")))
	tr, err := l.TreasurySummary(ctx)
	require.NoError(t, err)
	assert.True(t, tr.TotalDisbursed.IsZero())
}

func TestVoidLoanWithPayments(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	loan, err := l.CreateLoan(ctx, simpleLoanInput(), funder)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
			LoanID: loan.ID, Amount: d("130000"),
		}, collector)
		require.NoError(t, err)
	}

	vr, err := l.VoidLoanWithPayments(ctx, loan.ID, "fraud", funder)
	require.NoError(t, err)
	assert.True(t, vr.Voided)
	assert.Equal(t, 3, vr.PaymentsVoided)

	loan, err = l.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVoid, loan.Status)
	assert.True(t, loan.PaidTotal.IsZero())

	payments, err := l.PaymentsOf(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	for _, p := range payments {
		assert.True(t, p.Voided)
	}

	// Collector gave the collections back, funder got the principal back,
	// treasury is flat.
	w, err := l.store.Wallet(ctx, collector.UID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	w, err = l.store.Wallet(ctx, funder.UID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(d("500000")))

	tr, err := l.TreasurySummary(ctx)
	require.NoError(t, err)
	assert.True(t, tr.TotalCollected.IsZero())
	assert.True(t, tr.TotalDisbursed.IsZero())
	assert.True(t, tr.TotalLoanOutstanding.IsZero())

	vr, err = l.VoidLoanWithPayments(ctx, loan.ID, "again", funder)
	require.NoError(t, err)
	assert.True(t, vr.AlreadyVoided)
}

func TestRebuildTreasury(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	loan, err := l.CreateLoan(ctx, simpleLoanInput(), funder)
	require.NoError(t, err)
	_, err = l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.NoError(t, err)

	rebuilt, err := l.RebuildTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, rebuilt.TotalCollected.Equal(d("130000")))
	assert.True(t, rebuilt.TotalDisbursed.Equal(d("300000")))
	assert.True(t, rebuilt.TotalLoanOutstanding.Equal(d("200000")))

	// The rebuilt figures agree with the incrementally maintained ones.
	live, err := l.TreasurySummary(ctx)
	require.NoError(t, err)
	assert.True(t, live.TotalCollected.Equal(rebuilt.TotalCollected))
	assert.True(t, live.TotalLoanOutstanding.Equal(rebuilt.TotalLoanOutstanding))
}

func TestRebuildProfits(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	in := simpleLoanInput()
	in.HasIntermediary = true
	in.InterestSplit = models.InterestSplit{TotalPct: d("10"), MyPct: d("6"), IntermediaryPct: d("4")}
	loan, err := l.CreateLoan(ctx, in, funder)
	require.NoError(t, err)
	res, err := l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.NoError(t, err)
	_, err = l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.NoError(t, err)
	_, err = l.VoidPayment(ctx, res.PaymentID, "", funder)
	require.NoError(t, err)

	rows, err := l.RebuildProfits(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, rows, 12)
	june := rows[5]
	assert.Equal(t, "2025-06", june.Month)
	// One live payment: 30000 interest split 18000/12000.
	assert.True(t, june.Mine.Equal(d("18000")))
	assert.True(t, june.Intermediary.Equal(d("12000")))
	assert.True(t, june.InterestTotal.Equal(d("30000")))
}

func TestProfitDetails(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	seedFunder(t, l, "500000")

	loan, err := l.CreateLoan(ctx, simpleLoanInput(), funder)
	require.NoError(t, err)
	_, err = l.RecordInstallmentPayment(ctx, InstallmentPaymentInput{
		LoanID: loan.ID, Amount: d("130000"),
	}, collector)
	require.NoError(t, err)

	row, payments, err := l.ProfitDetails(ctx, "2025-06")
	require.NoError(t, err)
	assert.Equal(t, "2025-06", row.Month)
	assert.Len(t, payments, 1)

	_, _, err = l.ProfitDetails(ctx, "june-2025")
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidation, errs.As(err).Code)

	// A month with no payments comes back zeroed, not as an error.
	row, payments, err = l.ProfitDetails(ctx, "2025-01")
	require.NoError(t, err)
	assert.True(t, row.InterestTotal.IsZero())
	assert.Empty(t, payments)
}
