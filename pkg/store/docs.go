package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mvillegas/fincore/pkg/models"
)

// The bson documents are kept separate from the domain models so the domain
// can use shopspring decimals freely. Money travels as Decimal128, which
// keeps exact values and stays queryable (range filters on remainingUsd).

func toD128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode decimal %q: %w", d.String(), err)
	}
	return v, nil
}

func fromD128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %q: %w", v.String(), err)
	}
	return d, nil
}

// d128Zero is the Decimal128 zero used in range filters.
var d128Zero, _ = primitive.ParseDecimal128("0")

// d128conv converts decimals for one document and keeps the first failure,
// so a corrupted stored amount aborts the read or write instead of silently
// turning into zero. Callers check err once after building the document.
type d128conv struct {
	err error
}

func (c *d128conv) to(d decimal.Decimal) primitive.Decimal128 {
	v, err := toD128(d)
	if err != nil && c.err == nil {
		c.err = err
	}
	return v
}

func (c *d128conv) from(v primitive.Decimal128) decimal.Decimal {
	d, err := fromD128(v)
	if err != nil && c.err == nil {
		c.err = err
	}
	return d
}

func (c *d128conv) fromAny(v any) decimal.Decimal {
	if d, ok := v.(primitive.Decimal128); ok {
		return c.from(d)
	}
	return decimal.Zero
}

type installmentDoc struct {
	Number    int                  `bson:"number"`
	DueDate   time.Time            `bson:"dueDate"`
	Amount    primitive.Decimal128 `bson:"amount"`
	PaidTotal primitive.Decimal128 `bson:"paidTotal"`
}

type fundingDoc struct {
	SourceUID   string     `bson:"sourceUid"`
	SourceEmail string     `bson:"sourceEmail"`
	Status      string     `bson:"status"`
	DecidedAt   *time.Time `bson:"decidedAt,omitempty"`
}

type interestSplitDoc struct {
	TotalPct        primitive.Decimal128 `bson:"totalPct"`
	IntermediaryPct primitive.Decimal128 `bson:"intermediaryPct"`
	MyPct           primitive.Decimal128 `bson:"myPct"`
}

type loanDoc struct {
	ID           string `bson:"_id"`
	CustomerID   string `bson:"customerId,omitempty"`
	CustomerDNI  string `bson:"customerDni"`
	CustomerName string `bson:"customerName,omitempty"`

	Kind                 string               `bson:"loanType"`
	Principal            primitive.Decimal128 `bson:"principal"`
	PrincipalOriginal    primitive.Decimal128 `bson:"principalOriginal"`
	PrincipalOutstanding primitive.Decimal128 `bson:"principalOutstanding"`
	RateValue            primitive.Decimal128 `bson:"rateValue"`
	RatePeriod           string               `bson:"ratePeriod"`
	TermCount            int                  `bson:"termCount"`
	Frequency            string               `bson:"frequency"`
	StartDate            time.Time            `bson:"startDate"`

	TotalDue      primitive.Decimal128 `bson:"totalDue"`
	TotalInterest primitive.Decimal128 `bson:"totalInterest"`
	PaidTotal     primitive.Decimal128 `bson:"paidTotal"`
	PaidPrincipal primitive.Decimal128 `bson:"paidPrincipal"`
	PaidInterest  primitive.Decimal128 `bson:"paidInterest"`
	Balance       primitive.Decimal128 `bson:"balance"`

	Installments []installmentDoc `bson:"installments,omitempty"`

	HasIntermediary  bool             `bson:"hasIntermediary"`
	IntermediaryName string           `bson:"intermediaryName,omitempty"`
	InterestSplit    interestSplitDoc `bson:"interestSplit"`

	InterestEarnedMine         primitive.Decimal128 `bson:"interestEarnedMineTotal"`
	InterestEarnedIntermediary primitive.Decimal128 `bson:"interestEarnedIntermediaryTotal"`

	Status      string     `bson:"status"`
	NextDueDate *time.Time `bson:"nextDueDate,omitempty"`
	EndDate     *time.Time `bson:"endDate,omitempty"`
	Funding     fundingDoc `bson:"funding"`

	Voided     bool       `bson:"voided"`
	VoidReason string     `bson:"voidReason,omitempty"`
	VoidedAt   *time.Time `bson:"voidedAt,omitempty"`

	CreatedByUID   string    `bson:"createdByUid,omitempty"`
	CreatedByEmail string    `bson:"createdByEmail,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func loanToDoc(l *models.Loan) (*loanDoc, error) {
	c := &d128conv{}
	doc := &loanDoc{
		ID:                   l.ID,
		CustomerID:           l.CustomerID,
		CustomerDNI:          l.CustomerDNI,
		CustomerName:         l.CustomerName,
		Kind:                 string(l.Kind),
		Principal:            c.to(l.Principal),
		PrincipalOriginal:    c.to(l.PrincipalOriginal),
		PrincipalOutstanding: c.to(l.PrincipalOutstanding),
		RateValue:            c.to(l.RateValue),
		RatePeriod:           string(l.RatePeriod),
		TermCount:            l.TermCount,
		Frequency:            string(l.Frequency),
		StartDate:            l.StartDate,
		TotalDue:             c.to(l.TotalDue),
		TotalInterest:        c.to(l.TotalInterest),
		PaidTotal:            c.to(l.PaidTotal),
		PaidPrincipal:        c.to(l.PaidPrincipal),
		PaidInterest:         c.to(l.PaidInterest),
		Balance:              c.to(l.Balance),
		HasIntermediary:      l.HasIntermediary,
		IntermediaryName:     l.IntermediaryName,
		InterestSplit: interestSplitDoc{
			TotalPct:        c.to(l.InterestSplit.TotalPct),
			IntermediaryPct: c.to(l.InterestSplit.IntermediaryPct),
			MyPct:           c.to(l.InterestSplit.MyPct),
		},
		InterestEarnedMine:         c.to(l.InterestEarnedMine),
		InterestEarnedIntermediary: c.to(l.InterestEarnedIntermediary),
		Status:                     string(l.Status),
		NextDueDate:                l.NextDueDate,
		EndDate:                    l.EndDate,
		Funding: fundingDoc{
			SourceUID:   l.Funding.SourceUID,
			SourceEmail: l.Funding.SourceEmail,
			Status:      string(l.Funding.Status),
			DecidedAt:   l.Funding.DecidedAt,
		},
		Voided:         l.Voided,
		VoidReason:     l.VoidReason,
		VoidedAt:       l.VoidedAt,
		CreatedByUID:   l.CreatedByUID,
		CreatedByEmail: l.CreatedByEmail,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
	for _, in := range l.Installments {
		doc.Installments = append(doc.Installments, installmentDoc{
			Number:    in.Number,
			DueDate:   in.DueDate,
			Amount:    c.to(in.Amount),
			PaidTotal: c.to(in.PaidTotal),
		})
	}
	if c.err != nil {
		return nil, fmt.Errorf("loan %s: %w", l.ID, c.err)
	}
	return doc, nil
}

func docToLoan(doc *loanDoc) (*models.Loan, error) {
	c := &d128conv{}
	l := &models.Loan{
		ID:                   doc.ID,
		CustomerID:           doc.CustomerID,
		CustomerDNI:          doc.CustomerDNI,
		CustomerName:         doc.CustomerName,
		Kind:                 models.LoanKind(doc.Kind),
		Principal:            c.from(doc.Principal),
		PrincipalOriginal:    c.from(doc.PrincipalOriginal),
		PrincipalOutstanding: c.from(doc.PrincipalOutstanding),
		RateValue:            c.from(doc.RateValue),
		RatePeriod:           models.Frequency(doc.RatePeriod),
		TermCount:            doc.TermCount,
		Frequency:            models.Frequency(doc.Frequency),
		StartDate:            doc.StartDate,
		TotalDue:             c.from(doc.TotalDue),
		TotalInterest:        c.from(doc.TotalInterest),
		PaidTotal:            c.from(doc.PaidTotal),
		PaidPrincipal:        c.from(doc.PaidPrincipal),
		PaidInterest:         c.from(doc.PaidInterest),
		Balance:              c.from(doc.Balance),
		HasIntermediary:      doc.HasIntermediary,
		IntermediaryName:     doc.IntermediaryName,
		InterestSplit: models.InterestSplit{
			TotalPct:        c.from(doc.InterestSplit.TotalPct),
			IntermediaryPct: c.from(doc.InterestSplit.IntermediaryPct),
			MyPct:           c.from(doc.InterestSplit.MyPct),
		},
		InterestEarnedMine:         c.from(doc.InterestEarnedMine),
		InterestEarnedIntermediary: c.from(doc.InterestEarnedIntermediary),
		Status:                     models.LoanStatus(doc.Status),
		NextDueDate:                doc.NextDueDate,
		EndDate:                    doc.EndDate,
		Funding: models.Funding{
			SourceUID:   doc.Funding.SourceUID,
			SourceEmail: doc.Funding.SourceEmail,
			Status:      models.FundingStatus(doc.Funding.Status),
			DecidedAt:   doc.Funding.DecidedAt,
		},
		Voided:         doc.Voided,
		VoidReason:     doc.VoidReason,
		VoidedAt:       doc.VoidedAt,
		CreatedByUID:   doc.CreatedByUID,
		CreatedByEmail: doc.CreatedByEmail,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	for _, in := range doc.Installments {
		l.Installments = append(l.Installments, models.Installment{
			Number:    in.Number,
			DueDate:   in.DueDate,
			Amount:    c.from(in.Amount),
			PaidTotal: c.from(in.PaidTotal),
		})
	}
	if c.err != nil {
		return nil, fmt.Errorf("loan %s: %w", doc.ID, c.err)
	}
	return l, nil
}

type paymentDoc struct {
	ID           string `bson:"_id"`
	LoanID       string `bson:"loanId"`
	CustomerID   string `bson:"customerId,omitempty"`
	CustomerDNI  string `bson:"customerDni,omitempty"`
	CustomerName string `bson:"customerName,omitempty"`

	InstallmentNumber int `bson:"installmentNumber,omitempty"`

	Amount               primitive.Decimal128 `bson:"amount"`
	AmountPaid           primitive.Decimal128 `bson:"amountPaid"`
	InterestPaid         primitive.Decimal128 `bson:"interestPaid"`
	InterestTotal        primitive.Decimal128 `bson:"interestTotal"`
	InterestMine         primitive.Decimal128 `bson:"interestMine"`
	InterestIntermediary primitive.Decimal128 `bson:"interestIntermediary"`
	PrincipalPaid        primitive.Decimal128 `bson:"principalPaid"`

	PaidAt    time.Time `bson:"paidAt"`
	PaidMonth string    `bson:"paidMonth"`
	Method    string    `bson:"method"`
	Note      string    `bson:"note,omitempty"`

	CreatedByUID   string    `bson:"createdByUid"`
	CreatedByEmail string    `bson:"createdByEmail,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`

	Voided      bool       `bson:"voided"`
	VoidReason  string     `bson:"voidReason,omitempty"`
	VoidedByUID string     `bson:"voidedBy,omitempty"`
	VoidedAt    *time.Time `bson:"voidedAt,omitempty"`
}

func paymentToDoc(p *models.Payment) (*paymentDoc, error) {
	c := &d128conv{}
	doc := &paymentDoc{
		ID:                   p.ID,
		LoanID:               p.LoanID,
		CustomerID:           p.CustomerID,
		CustomerDNI:          p.CustomerDNI,
		CustomerName:         p.CustomerName,
		InstallmentNumber:    p.InstallmentNumber,
		Amount:               c.to(p.Amount),
		AmountPaid:           c.to(p.AmountPaid),
		InterestPaid:         c.to(p.InterestPaid),
		InterestTotal:        c.to(p.InterestTotal),
		InterestMine:         c.to(p.InterestMine),
		InterestIntermediary: c.to(p.InterestIntermediary),
		PrincipalPaid:        c.to(p.PrincipalPaid),
		PaidAt:               p.PaidAt,
		PaidMonth:            p.PaidMonth,
		Method:               p.Method,
		Note:                 p.Note,
		CreatedByUID:         p.CreatedByUID,
		CreatedByEmail:       p.CreatedByEmail,
		CreatedAt:            p.CreatedAt,
		Voided:               p.Voided,
		VoidReason:           p.VoidReason,
		VoidedByUID:          p.VoidedByUID,
		VoidedAt:             p.VoidedAt,
	}
	if c.err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.ID, c.err)
	}
	return doc, nil
}

func docToPayment(doc *paymentDoc) (*models.Payment, error) {
	c := &d128conv{}
	p := &models.Payment{
		ID:                   doc.ID,
		LoanID:               doc.LoanID,
		CustomerID:           doc.CustomerID,
		CustomerDNI:          doc.CustomerDNI,
		CustomerName:         doc.CustomerName,
		InstallmentNumber:    doc.InstallmentNumber,
		Amount:               c.from(doc.Amount),
		AmountPaid:           c.from(doc.AmountPaid),
		InterestPaid:         c.from(doc.InterestPaid),
		InterestTotal:        c.from(doc.InterestTotal),
		InterestMine:         c.from(doc.InterestMine),
		InterestIntermediary: c.from(doc.InterestIntermediary),
		PrincipalPaid:        c.from(doc.PrincipalPaid),
		PaidAt:               doc.PaidAt,
		PaidMonth:            doc.PaidMonth,
		Method:               doc.Method,
		Note:                 doc.Note,
		CreatedByUID:         doc.CreatedByUID,
		CreatedByEmail:       doc.CreatedByEmail,
		CreatedAt:            doc.CreatedAt,
		Voided:               doc.Voided,
		VoidReason:           doc.VoidReason,
		VoidedByUID:          doc.VoidedByUID,
		VoidedAt:             doc.VoidedAt,
	}
	if c.err != nil {
		return nil, fmt.Errorf("payment %s: %w", doc.ID, c.err)
	}
	return p, nil
}

type walletDoc struct {
	UID       string               `bson:"_id"`
	Email     string               `bson:"email"`
	Balance   primitive.Decimal128 `bson:"balance"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

func walletToDoc(w *models.Wallet) (*walletDoc, error) {
	balance, err := toD128(w.Balance)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", w.UID, err)
	}
	return &walletDoc{UID: w.UID, Email: w.Email, Balance: balance, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}, nil
}

func docToWallet(doc *walletDoc) (*models.Wallet, error) {
	balance, err := fromD128(doc.Balance)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", doc.UID, err)
	}
	return &models.Wallet{UID: doc.UID, Email: doc.Email, Balance: balance, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}, nil
}

type entryDoc struct {
	ID     string               `bson:"_id"`
	Type   string               `bson:"type"`
	Amount primitive.Decimal128 `bson:"amount"`

	Interest             primitive.Decimal128 `bson:"interest"`
	Principal            primitive.Decimal128 `bson:"principal"`
	InterestMine         primitive.Decimal128 `bson:"interestMine"`
	InterestIntermediary primitive.Decimal128 `bson:"interestIntermediary"`

	FromUID   string `bson:"fromUid,omitempty"`
	ToUID     string `bson:"toUid,omitempty"`
	LoanID    string `bson:"loanId,omitempty"`
	PaymentID string `bson:"paymentId,omitempty"`

	CustomerDNI    string    `bson:"customerDni,omitempty"`
	Date           time.Time `bson:"date"`
	Note           string    `bson:"note,omitempty"`
	Source         string    `bson:"source,omitempty"`
	CreatedByUID   string    `bson:"createdByUid,omitempty"`
	CreatedByEmail string    `bson:"createdByEmail,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func entryToDoc(e *models.LedgerEntry) (*entryDoc, error) {
	c := &d128conv{}
	doc := &entryDoc{
		ID:                   e.ID,
		Type:                 string(e.Type),
		Amount:               c.to(e.Amount),
		Interest:             c.to(e.Interest),
		Principal:            c.to(e.Principal),
		InterestMine:         c.to(e.InterestMine),
		InterestIntermediary: c.to(e.InterestIntermediary),
		FromUID:              e.FromUID,
		ToUID:                e.ToUID,
		LoanID:               e.LoanID,
		PaymentID:            e.PaymentID,
		CustomerDNI:          e.CustomerDNI,
		Date:                 e.Date,
		Note:                 e.Note,
		Source:               e.Source,
		CreatedByUID:         e.CreatedByUID,
		CreatedByEmail:       e.CreatedByEmail,
		CreatedAt:            e.CreatedAt,
	}
	if c.err != nil {
		return nil, fmt.Errorf("ledger entry %s: %w", e.ID, c.err)
	}
	return doc, nil
}

func docToEntry(doc *entryDoc) (*models.LedgerEntry, error) {
	c := &d128conv{}
	e := &models.LedgerEntry{
		ID:                   doc.ID,
		Type:                 models.LedgerEntryType(doc.Type),
		Amount:               c.from(doc.Amount),
		Interest:             c.from(doc.Interest),
		Principal:            c.from(doc.Principal),
		InterestMine:         c.from(doc.InterestMine),
		InterestIntermediary: c.from(doc.InterestIntermediary),
		FromUID:              doc.FromUID,
		ToUID:                doc.ToUID,
		LoanID:               doc.LoanID,
		PaymentID:            doc.PaymentID,
		CustomerDNI:          doc.CustomerDNI,
		Date:                 doc.Date,
		Note:                 doc.Note,
		Source:               doc.Source,
		CreatedByUID:         doc.CreatedByUID,
		CreatedByEmail:       doc.CreatedByEmail,
		CreatedAt:            doc.CreatedAt,
	}
	if c.err != nil {
		return nil, fmt.Errorf("ledger entry %s: %w", doc.ID, c.err)
	}
	return e, nil
}

type lotDoc struct {
	ID           string               `bson:"_id"`
	RemainingUSD primitive.Decimal128 `bson:"remainingUsd"`
	BuyPrice     primitive.Decimal128 `bson:"buyPrice"`
	OccurredAt   *time.Time           `bson:"occurredAt,omitempty"`
	Note         string               `bson:"note,omitempty"`
	CreatedAt    time.Time            `bson:"createdAt"`
}

func lotToDoc(l *models.CurrencyLot) (*lotDoc, error) {
	c := &d128conv{}
	doc := &lotDoc{ID: l.ID, RemainingUSD: c.to(l.RemainingUSD), BuyPrice: c.to(l.BuyPrice), OccurredAt: l.OccurredAt, Note: l.Note, CreatedAt: l.CreatedAt}
	if c.err != nil {
		return nil, fmt.Errorf("lot %s: %w", l.ID, c.err)
	}
	return doc, nil
}

func docToLot(doc *lotDoc) (*models.CurrencyLot, error) {
	c := &d128conv{}
	l := &models.CurrencyLot{ID: doc.ID, RemainingUSD: c.from(doc.RemainingUSD), BuyPrice: c.from(doc.BuyPrice), OccurredAt: doc.OccurredAt, Note: doc.Note, CreatedAt: doc.CreatedAt}
	if c.err != nil {
		return nil, fmt.Errorf("lot %s: %w", doc.ID, c.err)
	}
	return l, nil
}

type fifoSliceDoc struct {
	LotID     string               `bson:"lotId"`
	USD       primitive.Decimal128 `bson:"usd"`
	BuyPrice  primitive.Decimal128 `bson:"buyPrice"`
	SellPrice primitive.Decimal128 `bson:"sellPrice"`
	Profit    primitive.Decimal128 `bson:"profit"`
}

type tradeDoc struct {
	ID            string               `bson:"_id"`
	Type          string               `bson:"type"`
	USD           primitive.Decimal128 `bson:"usd"`
	Price         primitive.Decimal128 `bson:"price"`
	Total         primitive.Decimal128 `bson:"totalArs"`
	LotID         string               `bson:"lotId,omitempty"`
	FIFOBreakdown []fifoSliceDoc       `bson:"fifoBreakdown,omitempty"`
	ProfitTotal   primitive.Decimal128 `bson:"profitTotal"`
	Note          string               `bson:"note,omitempty"`
	OccurredAt    *time.Time           `bson:"occurredAt,omitempty"`
	CreatedAt     time.Time            `bson:"createdAt"`
	Voided        bool                 `bson:"voided"`
	VoidReason    string               `bson:"voidReason,omitempty"`
	VoidedAt      *time.Time           `bson:"voidedAt,omitempty"`
}

func tradeToDoc(t *models.CurrencyTrade) (*tradeDoc, error) {
	c := &d128conv{}
	doc := &tradeDoc{
		ID:          t.ID,
		Type:        string(t.Type),
		USD:         c.to(t.USD),
		Price:       c.to(t.Price),
		Total:       c.to(t.Total),
		LotID:       t.LotID,
		ProfitTotal: c.to(t.ProfitTotal),
		Note:        t.Note,
		OccurredAt:  t.OccurredAt,
		CreatedAt:   t.CreatedAt,
		Voided:      t.Voided,
		VoidReason:  t.VoidReason,
		VoidedAt:    t.VoidedAt,
	}
	for _, s := range t.FIFOBreakdown {
		doc.FIFOBreakdown = append(doc.FIFOBreakdown, fifoSliceDoc{
			LotID:     s.LotID,
			USD:       c.to(s.USD),
			BuyPrice:  c.to(s.BuyPrice),
			SellPrice: c.to(s.SellPrice),
			Profit:    c.to(s.Profit),
		})
	}
	if c.err != nil {
		return nil, fmt.Errorf("trade %s: %w", t.ID, c.err)
	}
	return doc, nil
}

func docToTrade(doc *tradeDoc) (*models.CurrencyTrade, error) {
	c := &d128conv{}
	t := &models.CurrencyTrade{
		ID:          doc.ID,
		Type:        models.TradeType(doc.Type),
		USD:         c.from(doc.USD),
		Price:       c.from(doc.Price),
		Total:       c.from(doc.Total),
		LotID:       doc.LotID,
		ProfitTotal: c.from(doc.ProfitTotal),
		Note:        doc.Note,
		OccurredAt:  doc.OccurredAt,
		CreatedAt:   doc.CreatedAt,
		Voided:      doc.Voided,
		VoidReason:  doc.VoidReason,
		VoidedAt:    doc.VoidedAt,
	}
	for _, s := range doc.FIFOBreakdown {
		t.FIFOBreakdown = append(t.FIFOBreakdown, models.FIFOSlice{
			LotID:     s.LotID,
			USD:       c.from(s.USD),
			BuyPrice:  c.from(s.BuyPrice),
			SellPrice: c.from(s.SellPrice),
			Profit:    c.from(s.Profit),
		})
	}
	if c.err != nil {
		return nil, fmt.Errorf("trade %s: %w", doc.ID, c.err)
	}
	return t, nil
}

type currencySummaryDoc struct {
	ID           string               `bson:"_id"`
	AvailableUSD primitive.Decimal128 `bson:"availableUsd"`
	MonthKey     string               `bson:"monthKey,omitempty"`
	MonthProfit  primitive.Decimal128 `bson:"monthProfit"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

type monthlyProfitDoc struct {
	Month         string               `bson:"_id"`
	Mine          primitive.Decimal128 `bson:"mine"`
	Intermediary  primitive.Decimal128 `bson:"intermediary"`
	InterestTotal primitive.Decimal128 `bson:"interestTotal"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

type treasurySummaryDoc struct {
	ID                   string               `bson:"_id"`
	TotalCollected       primitive.Decimal128 `bson:"totalCollected"`
	TotalDisbursed       primitive.Decimal128 `bson:"totalDisbursed"`
	TotalLoanOutstanding primitive.Decimal128 `bson:"totalLoanOutstanding"`
	InitialCash          primitive.Decimal128 `bson:"initialCash"`
	Liquid               primitive.Decimal128 `bson:"liquid"`
	UpdatedAt            time.Time            `bson:"updatedAt"`
}

type treasuryUserDoc struct {
	UID           string               `bson:"_id"`
	Email         string               `bson:"email"`
	PaymentsCount int                  `bson:"paymentsCount"`
	Collected     primitive.Decimal128 `bson:"collected"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

type movementDoc struct {
	ID         string         `bson:"_id"`
	Type       string         `bson:"type"`
	Customer   map[string]any `bson:"customer,omitempty"`
	Loan       map[string]any `bson:"loan,omitempty"`
	Payment    map[string]any `bson:"payment,omitempty"`
	USD        map[string]any `bson:"usd,omitempty"`
	Note       string         `bson:"note,omitempty"`
	OccurredAt *time.Time     `bson:"occurredAt,omitempty"`
	RelatedID  string         `bson:"relatedId,omitempty"`
	CreatedBy  string         `bson:"createdBy,omitempty"`
	Voided     bool           `bson:"voided"`
	CreatedAt  time.Time      `bson:"createdAt"`
}

func movementToDoc(m *models.Movement) (*movementDoc, error) {
	c := &d128conv{}
	doc := &movementDoc{
		ID:         m.ID,
		Type:       string(m.Type),
		Note:       m.Note,
		OccurredAt: m.OccurredAt,
		RelatedID:  m.RelatedID,
		CreatedBy:  m.CreatedBy,
		Voided:     m.Voided,
		CreatedAt:  m.CreatedAt,
	}
	if m.Customer != nil {
		doc.Customer = map[string]any{"id": m.Customer.ID, "dni": m.Customer.DNI, "name": m.Customer.Name}
	}
	if m.Loan != nil {
		doc.Loan = map[string]any{"id": m.Loan.ID, "loanType": string(m.Loan.Kind), "status": string(m.Loan.Status)}
	}
	if m.Payment != nil {
		doc.Payment = map[string]any{
			"id":                   m.Payment.ID,
			"amount":               c.to(m.Payment.Amount),
			"interestTotal":        c.to(m.Payment.InterestTotal),
			"interestMine":         c.to(m.Payment.InterestMine),
			"interestIntermediary": c.to(m.Payment.InterestIntermediary),
			"principalPaid":        c.to(m.Payment.PrincipalPaid),
			"paidAt":               m.Payment.PaidAt,
			"method":               m.Payment.Method,
		}
	}
	if m.USD != nil {
		doc.USD = map[string]any{
			"usd":      c.to(m.USD.USD),
			"price":    c.to(m.USD.Price),
			"totalArs": c.to(m.USD.Total),
			"profit":   c.to(m.USD.Profit),
		}
	}
	if c.err != nil {
		return nil, fmt.Errorf("movement %s: %w", m.ID, c.err)
	}
	return doc, nil
}

func docToMovement(doc *movementDoc) (*models.Movement, error) {
	c := &d128conv{}
	m := &models.Movement{
		ID:         doc.ID,
		Type:       models.MovementType(doc.Type),
		Note:       doc.Note,
		OccurredAt: doc.OccurredAt,
		RelatedID:  doc.RelatedID,
		CreatedBy:  doc.CreatedBy,
		Voided:     doc.Voided,
		CreatedAt:  doc.CreatedAt,
	}
	if doc.Customer != nil {
		m.Customer = &models.MovementCustomer{
			ID:   asString(doc.Customer["id"]),
			DNI:  asString(doc.Customer["dni"]),
			Name: asString(doc.Customer["name"]),
		}
	}
	if doc.Loan != nil {
		m.Loan = &models.MovementLoan{
			ID:     asString(doc.Loan["id"]),
			Kind:   models.LoanKind(asString(doc.Loan["loanType"])),
			Status: models.LoanStatus(asString(doc.Loan["status"])),
		}
	}
	if doc.Payment != nil {
		m.Payment = &models.MovementPaymentInfo{
			ID:                   asString(doc.Payment["id"]),
			Amount:               c.fromAny(doc.Payment["amount"]),
			InterestTotal:        c.fromAny(doc.Payment["interestTotal"]),
			InterestMine:         c.fromAny(doc.Payment["interestMine"]),
			InterestIntermediary: c.fromAny(doc.Payment["interestIntermediary"]),
			PrincipalPaid:        c.fromAny(doc.Payment["principalPaid"]),
			Method:               asString(doc.Payment["method"]),
			PaidAt:               asString(doc.Payment["paidAt"]),
		}
	}
	if doc.USD != nil {
		m.USD = &models.MovementUSD{
			USD:    c.fromAny(doc.USD["usd"]),
			Price:  c.fromAny(doc.USD["price"]),
			Total:  c.fromAny(doc.USD["totalArs"]),
			Profit: c.fromAny(doc.USD["profit"]),
		}
	}
	if c.err != nil {
		return nil, fmt.Errorf("movement %s: %w", doc.ID, c.err)
	}
	return m, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
