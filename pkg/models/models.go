package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanKind distinguishes the two supported repayment models.
type LoanKind string

const (
	// LoanSimple is a fixed-term loan with a precomputed total due repaid
	// through an installment schedule.
	LoanSimple LoanKind = "simple"
	// LoanInterestOnly is an open-ended ("American") loan: principal stays
	// outstanding until explicitly repaid, each payment may carry interest,
	// principal, or both.
	LoanInterestOnly LoanKind = "interest-only"
)

// LoanStatus is the derived state of a loan.
type LoanStatus string

const (
	StatusPending  LoanStatus = "pending"
	StatusRejected LoanStatus = "rejected"
	StatusActive   LoanStatus = "active"
	StatusLate     LoanStatus = "late"
	StatusFinished LoanStatus = "finished"
	StatusBadDebt  LoanStatus = "bad_debt"
	StatusVoid     LoanStatus = "void"
)

// Frequency is the installment/rate period.
type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// ValidFrequency reports whether f is one of the supported periods.
func ValidFrequency(f Frequency) bool {
	switch f {
	case Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

// FundingStatus tracks loan funding approval.
type FundingStatus string

const (
	FundingPending  FundingStatus = "PENDING"
	FundingApproved FundingStatus = "APPROVED"
	FundingRejected FundingStatus = "REJECTED"
)

// Funding records who disbursed a loan and whether it was approved.
type Funding struct {
	SourceUID   string        `json:"sourceUid"`
	SourceEmail string        `json:"sourceEmail"`
	Status      FundingStatus `json:"status"`
	DecidedAt   *time.Time    `json:"decidedAt,omitempty"`
}

// InterestSplit configures how collected interest is divided between the
// lender and an optional intermediary. Percentages are expressed against
// TotalPct (not necessarily 100).
type InterestSplit struct {
	TotalPct        decimal.Decimal `json:"totalPct"`
	IntermediaryPct decimal.Decimal `json:"intermediaryPct"`
	MyPct           decimal.Decimal `json:"myPct"`
}

// Installment is one scheduled repayment of a simple loan, embedded in the
// loan document. Amounts are cents-exact: the sum over a schedule equals the
// loan's total due.
type Installment struct {
	Number    int             `json:"number"`
	DueDate   time.Time       `json:"dueDate"`
	Amount    decimal.Decimal `json:"amount"`
	PaidTotal decimal.Decimal `json:"paidTotal"`
}

// Loan is the aggregate root for a lending agreement. Monetary fields are
// mutated only by loan creation, the payment processor and the void
// coordinator; a voided loan is immutable.
type Loan struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customerId,omitempty"`
	CustomerDNI  string `json:"customerDni"`
	CustomerName string `json:"customerName,omitempty"`

	Kind                 LoanKind        `json:"loanType"`
	Principal            decimal.Decimal `json:"principal"`
	PrincipalOriginal    decimal.Decimal `json:"principalOriginal"`
	PrincipalOutstanding decimal.Decimal `json:"principalOutstanding"`
	RateValue            decimal.Decimal `json:"rateValue"`
	RatePeriod           Frequency       `json:"ratePeriod"`
	TermCount            int             `json:"termCount"`
	Frequency            Frequency       `json:"frequency"`
	StartDate            time.Time       `json:"startDate"`

	TotalDue      decimal.Decimal `json:"totalDue"`
	TotalInterest decimal.Decimal `json:"totalInterest"`
	PaidTotal     decimal.Decimal `json:"paidTotal"`
	PaidPrincipal decimal.Decimal `json:"paidPrincipal"`
	PaidInterest  decimal.Decimal `json:"paidInterest"`
	Balance       decimal.Decimal `json:"balance"`

	Installments []Installment `json:"installments,omitempty"`

	HasIntermediary  bool          `json:"hasIntermediary"`
	IntermediaryName string        `json:"intermediaryName,omitempty"`
	InterestSplit    InterestSplit `json:"interestSplit"`

	InterestEarnedMine         decimal.Decimal `json:"interestEarnedMineTotal"`
	InterestEarnedIntermediary decimal.Decimal `json:"interestEarnedIntermediaryTotal"`

	Status      LoanStatus `json:"status"`
	NextDueDate *time.Time `json:"nextDueDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Funding     Funding    `json:"funding"`

	Voided     bool       `json:"voided"`
	VoidReason string     `json:"voidReason,omitempty"`
	VoidedAt   *time.Time `json:"voidedAt,omitempty"`

	CreatedByUID   string    `json:"createdByUid,omitempty"`
	CreatedByEmail string    `json:"createdByEmail,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Payment records one repayment event against a loan. Voiding marks the
// record, it never deletes it.
type Payment struct {
	ID           string `json:"id"`
	LoanID       string `json:"loanId"`
	CustomerID   string `json:"customerId,omitempty"`
	CustomerDNI  string `json:"customerDni,omitempty"`
	CustomerName string `json:"customerName,omitempty"`

	InstallmentNumber int `json:"installmentNumber,omitempty"`

	Amount               decimal.Decimal `json:"amount"`
	AmountPaid           decimal.Decimal `json:"amountPaid"`
	InterestPaid         decimal.Decimal `json:"interestPaid"`
	InterestTotal        decimal.Decimal `json:"interestTotal"`
	InterestMine         decimal.Decimal `json:"interestMine"`
	InterestIntermediary decimal.Decimal `json:"interestIntermediary"`
	PrincipalPaid        decimal.Decimal `json:"principalPaid"`

	PaidAt    time.Time `json:"paidAt"`
	PaidMonth string    `json:"paidMonth"`
	Method    string    `json:"method"`
	Note      string    `json:"note,omitempty"`

	CreatedByUID   string    `json:"createdByUid"`
	CreatedByEmail string    `json:"createdByEmail,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`

	Voided      bool       `json:"voided"`
	VoidReason  string     `json:"voidReason,omitempty"`
	VoidedByUID string     `json:"voidedBy,omitempty"`
	VoidedAt    *time.Time `json:"voidedAt,omitempty"`
}

// Wallet is the per-user cash position. Balance is a cache over the ledger:
// it is only ever written together with a matching LedgerEntry inside the
// same transaction.
type Wallet struct {
	UID       string          `json:"uid"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// LedgerEntryType classifies balance-affecting events.
type LedgerEntryType string

const (
	EntryPayment       LedgerEntryType = "payment"
	EntryAdjustment    LedgerEntryType = "adjustment"
	EntryPaymentCredit LedgerEntryType = "PAYMENT_CREDIT"
	EntryInterest      LedgerEntryType = "LOAN_REPAY_INTEREST"
	EntryPrincipal     LedgerEntryType = "LOAN_REPAY_PRINCIPAL"
	EntryDisburse      LedgerEntryType = "LOAN_DISBURSE"
	EntryTransfer      LedgerEntryType = "TRANSFER"
	EntryPaymentVoid   LedgerEntryType = "PAYMENT_VOID"
)

// LedgerEntry is an immutable record of a balance-affecting event. For any
// wallet, the signed sum of entries addressed to it equals its balance.
type LedgerEntry struct {
	ID     string          `json:"id"`
	Type   LedgerEntryType `json:"type"`
	Amount decimal.Decimal `json:"amount"`

	Interest             decimal.Decimal `json:"interest,omitempty"`
	Principal            decimal.Decimal `json:"principal,omitempty"`
	InterestMine         decimal.Decimal `json:"interestMine,omitempty"`
	InterestIntermediary decimal.Decimal `json:"interestIntermediary,omitempty"`

	FromUID   string `json:"fromUid,omitempty"`
	ToUID     string `json:"toUid,omitempty"`
	LoanID    string `json:"loanId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`

	CustomerDNI    string    `json:"customerDni,omitempty"`
	Date           time.Time `json:"date"`
	Note           string    `json:"note,omitempty"`
	Source         string    `json:"source,omitempty"`
	CreatedByUID   string    `json:"createdByUid,omitempty"`
	CreatedByEmail string    `json:"createdByEmail,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CurrencyLot is one USD purchase batch. RemainingUSD decreases as sells
// consume it FIFO and is never negative.
type CurrencyLot struct {
	ID           string          `json:"id"`
	RemainingUSD decimal.Decimal `json:"remainingUsd"`
	BuyPrice     decimal.Decimal `json:"buyPrice"`
	OccurredAt   *time.Time      `json:"occurredAt,omitempty"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// TradeType is the direction of a currency movement.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// FIFOSlice records how much of a sell was taken from one lot.
type FIFOSlice struct {
	LotID     string          `json:"lotId"`
	USD       decimal.Decimal `json:"usd"`
	BuyPrice  decimal.Decimal `json:"buyPrice"`
	SellPrice decimal.Decimal `json:"sellPrice"`
	Profit    decimal.Decimal `json:"profit"`
}

// CurrencyTrade is a buy or sell movement. Sells carry the ordered FIFO
// breakdown of consumed lots; the breakdown quantities sum to USD.
type CurrencyTrade struct {
	ID            string          `json:"id"`
	Type          TradeType       `json:"type"`
	USD           decimal.Decimal `json:"usd"`
	Price         decimal.Decimal `json:"price"`
	Total         decimal.Decimal `json:"totalArs"`
	LotID         string          `json:"lotId,omitempty"`
	FIFOBreakdown []FIFOSlice     `json:"fifoBreakdown,omitempty"`
	ProfitTotal   decimal.Decimal `json:"profitTotal"`
	Note          string          `json:"note,omitempty"`
	OccurredAt    *time.Time      `json:"occurredAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`

	Voided     bool       `json:"voided"`
	VoidReason string     `json:"voidReason,omitempty"`
	VoidedAt   *time.Time `json:"voidedAt,omitempty"`
}

// CurrencySummary caches the available USD stock and a rolling single-month
// realized-profit counter. The counter resets when a trade lands in a month
// other than MonthKey.
type CurrencySummary struct {
	AvailableUSD decimal.Decimal `json:"availableUsd"`
	MonthKey     string          `json:"monthKey,omitempty"`
	MonthProfit  decimal.Decimal `json:"monthProfit"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

/// MonthlyProfit is the interest rollup for one YYYY-MM month, adjusted 1:1
// by payment and void events. Not independently writable.
type MonthlyProfit struct {
	Month         string          `json:"month"`
	Mine          decimal.Decimal `json:"mine"`
	Intermediary  decimal.Decimal `json:"intermediary"`
	InterestTotal decimal.Decimal `json:"interestTotal"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// TreasurySummary is the derived aggregate cash position. Rebuildable from
// payments and loans; not authoritative.
type TreasurySummary struct {
	TotalCollected       decimal.Decimal `json:"totalCollected"`
	TotalDisbursed       decimal.Decimal `json:"totalDisbursed"`
	TotalLoanOutstanding decimal.Decimal `json:"totalLoanOutstanding"`
	InitialCash          decimal.Decimal `json:"initialCash"`
	Liquid               decimal.Decimal `json:"liquid"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// TreasuryUser is the per-collector rollup of payments taken.
type TreasuryUser struct {
	UID           string          `json:"uid"`
	Email         string          `json:"email"`
	PaymentsCount int             `json:"paymentsCount"`
	Collected     decimal.Decimal `json:"collected"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// MovementType classifies audit feed entries.
type MovementType string

const (
	MovementLoanCreate  MovementType = "loan_create"
	MovementLoanFunding MovementType = "loan_funding"
	MovementLoanVoid    MovementType = "loan_void"
	MovementPayment     MovementType = "payment_create"
	MovementPaymentVoid MovementType = "payment_void"
	MovementUSDBuy      MovementType = "usd_buy"
	MovementUSDSell     MovementType = "usd_sell"
	MovementUSDVoid     MovementType = "usd_void"
	MovementTransfer    MovementType = "wallet_transfer"
)

// MovementCustomer is the customer snapshot embedded in an audit movement.
type MovementCustomer struct {
	ID   string `json:"id,omitempty"`
	DNI  string `json:"dni,omitempty"`
	Name string `json:"name,omitempty"`
}

// MovementLoan is the loan snapshot embedded in an audit movement.
type MovementLoan struct {
	ID     string     `json:"id"`
	Kind   LoanKind   `json:"loanType"`
	Status LoanStatus `json:"status"`
}

// MovementPaymentInfo is the payment snapshot embedded in an audit movement.
type MovementPaymentInfo struct {
	ID                   string          `json:"id"`
	Amount               decimal.Decimal `json:"amount"`
	InterestTotal        decimal.Decimal `json:"interestTotal"`
	InterestMine         decimal.Decimal `json:"interestMine"`
	InterestIntermediary decimal.Decimal `json:"interestIntermediary"`
	PrincipalPaid        decimal.Decimal `json:"principalPaid"`
	PaidAt               string          `json:"paidAt,omitempty"`
	Method               string          `json:"method,omitempty"`
}

// MovementUSD is the trade snapshot embedded in an audit movement.
type MovementUSD struct {
	USD    decimal.Decimal `json:"usd"`
	Price  decimal.Decimal `json:"price"`
	Total  decimal.Decimal `json:"totalArs"`
	Profit decimal.Decimal `json:"profit,omitempty"`
}

// Movement is one entry of the audit/report feed. It describes an event for
// external reporting and is never read back to derive balances.
type Movement struct {
	ID         string               `json:"id"`
	Type       MovementType         `json:"type"`
	Customer   *MovementCustomer    `json:"customer,omitempty"`
	Loan       *MovementLoan        `json:"loan,omitempty"`
	Payment    *MovementPaymentInfo `json:"payment,omitempty"`
	USD        *MovementUSD         `json:"usd,omitempty"`
	Note       string               `json:"note,omitempty"`
	OccurredAt *time.Time           `json:"occurredAt,omitempty"`
	RelatedID  string               `json:"relatedId,omitempty"`
	CreatedBy  string               `json:"createdBy,omitempty"`
	Voided     bool                 `json:"voided"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Actor identifies who performed an operation. Authentication and role
// resolution happen upstream; the core receives the result.
type Actor struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// MonthKey formats a time as the YYYY-MM key used by profit rollups.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
