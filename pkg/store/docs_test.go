package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mvillegas/fincore/pkg/models"
)

func TestLoanDocRoundTrip(t *testing.T) {
	loan := &models.Loan{
		ID:                   "l1",
		CustomerDNI:          "30123456",
		Kind:                 models.LoanSimple,
		Principal:            decimal.RequireFromString("300000"),
		PrincipalOutstanding: decimal.RequireFromString("200000.50"),
		TotalDue:             decimal.RequireFromString("390000"),
		Installments: []models.Installment{
			{Number: 1, DueDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("130000")},
		},
	}

	doc, err := loanToDoc(loan)
	require.NoError(t, err)
	back, err := docToLoan(doc)
	require.NoError(t, err)

	assert.True(t, back.Principal.Equal(loan.Principal))
	assert.True(t, back.PrincipalOutstanding.Equal(loan.PrincipalOutstanding))
	assert.True(t, back.TotalDue.Equal(loan.TotalDue))
	require.Len(t, back.Installments, 1)
	assert.True(t, back.Installments[0].Amount.Equal(decimal.RequireFromString("130000")))
}

func TestCorruptDecimalAbortsRead(t *testing.T) {
	// A stored Decimal128 the domain decimal cannot represent must surface
	// as an error, not silently become zero.
	nan, err := primitive.ParseDecimal128("NaN")
	require.NoError(t, err)

	_, err = docToWallet(&walletDoc{UID: "u1", Balance: nan})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u1")

	_, err = docToLoan(&loanDoc{ID: "l1", Principal: nan})
	require.Error(t, err)

	_, err = docToPayment(&paymentDoc{ID: "p1", Amount: nan})
	require.Error(t, err)

	_, err = docToLot(&lotDoc{ID: "lot1", RemainingUSD: nan})
	require.Error(t, err)
}

func TestCorruptDecimalAbortsMovementRead(t *testing.T) {
	nan, err := primitive.ParseDecimal128("NaN")
	require.NoError(t, err)

	_, err = docToMovement(&movementDoc{
		ID:      "m1",
		Type:    string(models.MovementPayment),
		Payment: map[string]any{"id": "p1", "amount": nan},
	})
	require.Error(t, err)
}
