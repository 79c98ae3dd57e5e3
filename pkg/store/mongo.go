package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvillegas/fincore/pkg/models"
)

const (
	colLoans         = "loans"
	colPayments      = "payments"
	colWallets       = "wallets"
	colLedgerEntries = "ledger_entries"
	colLots          = "currency_lots"
	colTrades        = "currency_trades"
	colCurrency      = "currency_summary"
	colProfits       = "monthly_profits"
	colTreasury      = "treasury_summary"
	colTreasuryUsers = "treasury_users"
	colMovements     = "movements"

	singletonID = "summary"
)

// MongoStore persists the ledger in MongoDB. RunTransaction maps onto a
// session transaction, so concurrent writers retry on conflict instead of
// interleaving.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to uri and pings the deployment before returning.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&mongoTx{store: s, ctx: sc})
	})
	return err
}

func (s *MongoStore) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *MongoStore) Loan(ctx context.Context, id string) (*models.Loan, error) {
	var doc loanDoc
	if err := s.col(colLoans).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToLoan(&doc)
}

func (s *MongoStore) Loans(ctx context.Context) ([]*models.Loan, error) {
	cur, err := s.col(colLoans).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []loanDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Loan, len(docs))
	for i := range docs {
		if out[i], err = docToLoan(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *MongoStore) Payment(ctx context.Context, id string) (*models.Payment, error) {
	var doc paymentDoc
	if err := s.col(colPayments).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToPayment(&doc)
}

func (s *MongoStore) Payments(ctx context.Context) ([]*models.Payment, error) {
	return s.findPayments(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (s *MongoStore) PaymentsByLoan(ctx context.Context, loanID string) ([]*models.Payment, error) {
	return s.findPayments(ctx, bson.M{"loanId": loanID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (s *MongoStore) findPayments(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Payment, error) {
	cur, err := s.col(colPayments).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []paymentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Payment, len(docs))
	for i := range docs {
		if out[i], err = docToPayment(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *MongoStore) Wallet(ctx context.Context, uid string) (*models.Wallet, error) {
	var doc walletDoc
	if err := s.col(colWallets).FindOne(ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToWallet(&doc)
}

func (s *MongoStore) Wallets(ctx context.Context) ([]*models.Wallet, error) {
	cur, err := s.col(colWallets).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []walletDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Wallet, len(docs))
	for i := range docs {
		if out[i], err = docToWallet(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *MongoStore) LedgerEntriesByWallet(ctx context.Context, uid string) ([]*models.LedgerEntry, error) {
	filter := bson.M{"$or": bson.A{bson.M{"fromUid": uid}, bson.M{"toUid": uid}}}
	cur, err := s.col(colLedgerEntries).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.LedgerEntry, len(docs))
	for i := range docs {
		if out[i], err = docToEntry(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *MongoStore) Lots(ctx context.Context) ([]*models.CurrencyLot, error) {
	return s.findLots(ctx, bson.M{}, lotSort(), 0)
}

func (s *MongoStore) findLots(ctx context.Context, filter bson.M, sort bson.D, limit int64) ([]*models.CurrencyLot, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := s.col(colLots).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []lotDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.CurrencyLot, len(docs))
	for i := range docs {
		if out[i], err = docToLot(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func lotSort() bson.D {
	return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
}

func (s *MongoStore) Trades(ctx context.Context) ([]*models.CurrencyTrade, error) {
	cur, err := s.col(colTrades).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []tradeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.CurrencyTrade, len(docs))
	for i := range docs {
		if out[i], err = docToTrade(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *MongoStore) CurrencySummary(ctx context.Context) (*models.CurrencySummary, error) {
	var doc currencySummaryDoc
	if err := s.col(colCurrency).FindOne(ctx, bson.M{"_id": singletonID}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	c := &d128conv{}
	out := &models.CurrencySummary{
		AvailableUSD: c.from(doc.AvailableUSD),
		MonthKey:     doc.MonthKey,
		MonthProfit:  c.from(doc.MonthProfit),
		UpdatedAt:    doc.UpdatedAt,
	}
	if c.err != nil {
		return nil, c.err
	}
	return out, nil
}

func (s *MongoStore) MonthlyProfits(ctx context.Context, year int) ([]*models.MonthlyProfit, error) {
	filter := bson.M{"_id": bson.M{"$regex": fmt.Sprintf("^%04d-", year)}}
	cur, err := s.col(colProfits).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []monthlyProfitDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.MonthlyProfit, len(docs))
	for i, doc := range docs {
		c := &d128conv{}
		out[i] = &models.MonthlyProfit{
			Month:         doc.Month,
			Mine:          c.from(doc.Mine),
			Intermediary:  c.from(doc.Intermediary),
			InterestTotal: c.from(doc.InterestTotal),
			UpdatedAt:     doc.UpdatedAt,
		}
		if c.err != nil {
			return nil, fmt.Errorf("monthly profit %s: %w", doc.Month, c.err)
		}
	}
	return out, nil
}

func (s *MongoStore) TreasurySummary(ctx context.Context) (*models.TreasurySummary, error) {
	var doc treasurySummaryDoc
	if err := s.col(colTreasury).FindOne(ctx, bson.M{"_id": singletonID}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return treasuryFromDoc(&doc)
}

func (s *MongoStore) TreasuryUsers(ctx context.Context) ([]*models.TreasuryUser, error) {
	cur, err := s.col(colTreasuryUsers).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []treasuryUserDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.TreasuryUser, len(docs))
	for i := range docs {
		if out[i], err = treasuryUserFromDoc(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *MongoStore) Movements(ctx context.Context, limit int) ([]*models.Movement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.col(colMovements).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []movementDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Movement, len(docs))
	for i := range docs {
		if out[i], err = docToMovement(&docs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func treasuryFromDoc(doc *treasurySummaryDoc) (*models.TreasurySummary, error) {
	c := &d128conv{}
	out := &models.TreasurySummary{
		TotalCollected:       c.from(doc.TotalCollected),
		TotalDisbursed:       c.from(doc.TotalDisbursed),
		TotalLoanOutstanding: c.from(doc.TotalLoanOutstanding),
		InitialCash:          c.from(doc.InitialCash),
		Liquid:               c.from(doc.Liquid),
		UpdatedAt:            doc.UpdatedAt,
	}
	if c.err != nil {
		return nil, c.err
	}
	return out, nil
}

func treasuryUserFromDoc(doc *treasuryUserDoc) (*models.TreasuryUser, error) {
	collected, err := fromD128(doc.Collected)
	if err != nil {
		return nil, fmt.Errorf("treasury user %s: %w", doc.UID, err)
	}
	return &models.TreasuryUser{
		UID:           doc.UID,
		Email:         doc.Email,
		PaymentsCount: doc.PaymentsCount,
		Collected:     collected,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// mongoTx runs reads and writes against the session context of an open
// transaction. MongoDB applies them atomically on commit and surfaces write
// conflicts to WithTransaction, which retries the callback.
type mongoTx struct {
	store *MongoStore
	ctx   mongo.SessionContext
}

func (tx *mongoTx) upsert(col string, id string, doc any) error {
	_, err := tx.store.col(col).ReplaceOne(tx.ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (tx *mongoTx) Loan(id string) (*models.Loan, error) {
	var doc loanDoc
	if err := tx.store.col(colLoans).FindOne(tx.ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToLoan(&doc)
}

func (tx *mongoTx) PutLoan(loan *models.Loan) error {
	doc, err := loanToDoc(loan)
	if err != nil {
		return err
	}
	return tx.upsert(colLoans, loan.ID, doc)
}

func (tx *mongoTx) Payment(id string) (*models.Payment, error) {
	var doc paymentDoc
	if err := tx.store.col(colPayments).FindOne(tx.ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToPayment(&doc)
}

func (tx *mongoTx) PutPayment(p *models.Payment) error {
	doc, err := paymentToDoc(p)
	if err != nil {
		return err
	}
	return tx.upsert(colPayments, p.ID, doc)
}

func (tx *mongoTx) PaymentsByLoan(loanID string) ([]*models.Payment, error) {
	return tx.store.findPayments(tx.ctx, bson.M{"loanId": loanID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (tx *mongoTx) Wallet(uid string) (*models.Wallet, error) {
	var doc walletDoc
	if err := tx.store.col(colWallets).FindOne(tx.ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToWallet(&doc)
}

func (tx *mongoTx) PutWallet(w *models.Wallet) error {
	doc, err := walletToDoc(w)
	if err != nil {
		return err
	}
	return tx.upsert(colWallets, w.UID, doc)
}

func (tx *mongoTx) PutLedgerEntry(e *models.LedgerEntry) error {
	doc, err := entryToDoc(e)
	if err != nil {
		return err
	}
	_, err = tx.store.col(colLedgerEntries).InsertOne(tx.ctx, doc)
	return err
}

func (tx *mongoTx) Lot(id string) (*models.CurrencyLot, error) {
	var doc lotDoc
	if err := tx.store.col(colLots).FindOne(tx.ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToLot(&doc)
}

func (tx *mongoTx) PutLot(lot *models.CurrencyLot) error {
	doc, err := lotToDoc(lot)
	if err != nil {
		return err
	}
	return tx.upsert(colLots, lot.ID, doc)
}

func (tx *mongoTx) DeleteLot(id string) error {
	_, err := tx.store.col(colLots).DeleteOne(tx.ctx, bson.M{"_id": id})
	return err
}

func (tx *mongoTx) LotPage(afterID string, limit int, onlyAvailable bool) ([]*models.CurrencyLot, error) {
	filter := bson.M{}
	if afterID != "" {
		after, err := tx.Lot(afterID)
		if err != nil {
			return nil, err
		}
		filter["$or"] = bson.A{
			bson.M{"createdAt": bson.M{"$gt": after.CreatedAt}},
			bson.M{"createdAt": after.CreatedAt, "_id": bson.M{"$gt": afterID}},
		}
	}
	if onlyAvailable {
		filter["remainingUsd"] = bson.M{"$gt": d128Zero}
	}

	lots, err := tx.store.findLots(tx.ctx, filter, lotSort(), int64(limit))
	if err != nil {
		if onlyAvailable {
			// A failing filtered scan (e.g. no usable index plan) degrades
			// to the caller's unfiltered walk.
			return nil, ErrIndexUnavailable
		}
		return nil, err
	}
	return lots, nil
}

func (tx *mongoTx) Trade(id string) (*models.CurrencyTrade, error) {
	var doc tradeDoc
	if err := tx.store.col(colTrades).FindOne(tx.ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return docToTrade(&doc)
}

func (tx *mongoTx) PutTrade(t *models.CurrencyTrade) error {
	doc, err := tradeToDoc(t)
	if err != nil {
		return err
	}
	return tx.upsert(colTrades, t.ID, doc)
}

func (tx *mongoTx) CurrencySummary() (*models.CurrencySummary, error) {
	var doc currencySummaryDoc
	if err := tx.store.col(colCurrency).FindOne(tx.ctx, bson.M{"_id": singletonID}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	c := &d128conv{}
	out := &models.CurrencySummary{
		AvailableUSD: c.from(doc.AvailableUSD),
		MonthKey:     doc.MonthKey,
		MonthProfit:  c.from(doc.MonthProfit),
		UpdatedAt:    doc.UpdatedAt,
	}
	if c.err != nil {
		return nil, c.err
	}
	return out, nil
}

func (tx *mongoTx) PutCurrencySummary(s *models.CurrencySummary) error {
	c := &d128conv{}
	doc := &currencySummaryDoc{
		ID:           singletonID,
		AvailableUSD: c.to(s.AvailableUSD),
		MonthKey:     s.MonthKey,
		MonthProfit:  c.to(s.MonthProfit),
		UpdatedAt:    s.UpdatedAt,
	}
	if c.err != nil {
		return c.err
	}
	return tx.upsert(colCurrency, singletonID, doc)
}

func (tx *mongoTx) MonthlyProfit(month string) (*models.MonthlyProfit, error) {
	var doc monthlyProfitDoc
	if err := tx.store.col(colProfits).FindOne(tx.ctx, bson.M{"_id": month}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	c := &d128conv{}
	out := &models.MonthlyProfit{
		Month:         doc.Month,
		Mine:          c.from(doc.Mine),
		Intermediary:  c.from(doc.Intermediary),
		InterestTotal: c.from(doc.InterestTotal),
		UpdatedAt:     doc.UpdatedAt,
	}
	if c.err != nil {
		return nil, fmt.Errorf("monthly profit %s: %w", doc.Month, c.err)
	}
	return out, nil
}

func (tx *mongoTx) PutMonthlyProfit(p *models.MonthlyProfit) error {
	c := &d128conv{}
	doc := &monthlyProfitDoc{
		Month:         p.Month,
		Mine:          c.to(p.Mine),
		Intermediary:  c.to(p.Intermediary),
		InterestTotal: c.to(p.InterestTotal),
		UpdatedAt:     p.UpdatedAt,
	}
	if c.err != nil {
		return fmt.Errorf("monthly profit %s: %w", p.Month, c.err)
	}
	return tx.upsert(colProfits, p.Month, doc)
}

func (tx *mongoTx) TreasurySummary() (*models.TreasurySummary, error) {
	var doc treasurySummaryDoc
	if err := tx.store.col(colTreasury).FindOne(tx.ctx, bson.M{"_id": singletonID}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return treasuryFromDoc(&doc)
}

func (tx *mongoTx) PutTreasurySummary(s *models.TreasurySummary) error {
	c := &d128conv{}
	doc := &treasurySummaryDoc{
		ID:                   singletonID,
		TotalCollected:       c.to(s.TotalCollected),
		TotalDisbursed:       c.to(s.TotalDisbursed),
		TotalLoanOutstanding: c.to(s.TotalLoanOutstanding),
		InitialCash:          c.to(s.InitialCash),
		Liquid:               c.to(s.Liquid),
		UpdatedAt:            s.UpdatedAt,
	}
	if c.err != nil {
		return c.err
	}
	return tx.upsert(colTreasury, singletonID, doc)
}

func (tx *mongoTx) TreasuryUser(uid string) (*models.TreasuryUser, error) {
	var doc treasuryUserDoc
	if err := tx.store.col(colTreasuryUsers).FindOne(tx.ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return treasuryUserFromDoc(&doc)
}

func (tx *mongoTx) PutTreasuryUser(u *models.TreasuryUser) error {
	collected, err := toD128(u.Collected)
	if err != nil {
		return fmt.Errorf("treasury user %s: %w", u.UID, err)
	}
	return tx.upsert(colTreasuryUsers, u.UID, &treasuryUserDoc{
		UID:           u.UID,
		Email:         u.Email,
		PaymentsCount: u.PaymentsCount,
		Collected:     collected,
		UpdatedAt:     u.UpdatedAt,
	})
}

func (tx *mongoTx) PutMovement(m *models.Movement) error {
	doc, err := movementToDoc(m)
	if err != nil {
		return err
	}
	_, err = tx.store.col(colMovements).InsertOne(tx.ctx, doc)
	return err
}
