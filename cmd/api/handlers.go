package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/errs"
	"github.com/mvillegas/fincore/pkg/ledger"
	"github.com/mvillegas/fincore/pkg/models"
)

// Server wires the HTTP surface to the ledger.
type Server struct {
	ledger *ledger.Ledger
	log    *zap.Logger
}

func NewServer(l *ledger.Ledger, log *zap.Logger) *Server {
	return &Server{ledger: l, log: log}
}

// Router builds the API routes. Authentication happens upstream; the actor
// arrives in X-Actor-Uid / X-Actor-Email headers.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/loans", s.listLoans).Methods("GET")
	r.HandleFunc("/loans", s.createLoan).Methods("POST")
	r.HandleFunc("/loans/{id}", s.getLoan).Methods("GET")
	r.HandleFunc("/loans/{id}/installments", s.listInstallments).Methods("GET")
	r.HandleFunc("/loans/{id}/payments", s.listLoanPayments).Methods("GET")
	r.HandleFunc("/loans/{id}/payments", s.recordInstallmentPayment).Methods("POST")
	r.HandleFunc("/loans/{id}/interest-payments", s.recordInterestOnlyPayment).Methods("POST")
	r.HandleFunc("/loans/{id}/funding", s.decideFunding).Methods("POST")
	r.HandleFunc("/loans/{id}/bad-debt", s.markBadDebt).Methods("POST")
	r.HandleFunc("/loans/{id}/void", s.voidLoan).Methods("POST")

	r.HandleFunc("/payments", s.listPayments).Methods("GET")
	r.HandleFunc("/payments/{id}", s.getPayment).Methods("GET")
	r.HandleFunc("/payments/{id}/void", s.voidPayment).Methods("POST")

	r.HandleFunc("/currency/buy", s.buyCurrency).Methods("POST")
	r.HandleFunc("/currency/sell", s.sellCurrency).Methods("POST")
	r.HandleFunc("/currency/summary", s.currencySummary).Methods("GET")
	r.HandleFunc("/currency/lots", s.currencyLots).Methods("GET")
	r.HandleFunc("/currency/movements", s.currencyMovements).Methods("GET")
	r.HandleFunc("/currency/movements/{id}/void", s.voidCurrencyMovement).Methods("POST")

	r.HandleFunc("/wallets", s.listWallets).Methods("GET")
	r.HandleFunc("/wallets/transfer", s.transferWallet).Methods("POST")
	r.HandleFunc("/wallets/{uid}/credit", s.creditWallet).Methods("POST")
	r.HandleFunc("/wallets/{uid}/debit", s.debitWallet).Methods("POST")
	r.HandleFunc("/wallets/{uid}/ledger", s.walletHistory).Methods("GET")

	r.HandleFunc("/treasury", s.treasurySummary).Methods("GET")
	r.HandleFunc("/treasury/rebuild", s.rebuildTreasury).Methods("POST")
	r.HandleFunc("/treasury/users", s.treasuryUsers).Methods("GET")
	r.HandleFunc("/treasury/wallets", s.walletsSummary).Methods("GET")

	r.HandleFunc("/profits/{year}", s.monthlyProfits).Methods("GET")
	r.HandleFunc("/profits/{year}/rebuild", s.rebuildProfits).Methods("POST")
	r.HandleFunc("/profits/month/{month}", s.profitDetails).Methods("GET")

	r.HandleFunc("/movements", s.listMovements).Methods("GET")

	return r
}

func actorFrom(r *http.Request) models.Actor {
	return models.Actor{
		UID:   r.Header.Get("X-Actor-Uid"),
		Email: r.Header.Get("X-Actor-Email"),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if e := errs.As(err); e != nil {
		s.writeJSON(w, e.Status, map[string]any{
			"ok":      false,
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		})
		return
	}
	s.log.Error("internal error", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, map[string]any{
		"ok":      false,
		"code":    "INTERNAL",
		"message": "internal error",
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}

func (s *Server) createLoan(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateLoanInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	loan, err := s.ledger.CreateLoan(r.Context(), in, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ledger.Loan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.Loans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) listInstallments(w http.ResponseWriter, r *http.Request) {
	ins, err := s.ledger.Installments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ins)
}

func (s *Server) listLoanPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.ledger.PaymentsOf(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) recordInstallmentPayment(w http.ResponseWriter, r *http.Request) {
	var in ledger.InstallmentPaymentInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	in.LoanID = mux.Vars(r)["id"]
	res, err := s.ledger.RecordInstallmentPayment(r.Context(), in, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyApplied {
		status = http.StatusOK
	}
	s.writeJSON(w, status, res)
}

func (s *Server) recordInterestOnlyPayment(w http.ResponseWriter, r *http.Request) {
	var in ledger.InterestOnlyPaymentInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	in.LoanID = mux.Vars(r)["id"]
	res, err := s.ledger.RecordInterestOnlyPayment(r.Context(), in, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyApplied {
		status = http.StatusOK
	}
	s.writeJSON(w, status, res)
}

func (s *Server) decideFunding(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Approve bool `json:"approve"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	loan, err := s.ledger.DecideFunding(r.Context(), mux.Vars(r)["id"], in.Approve, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) markBadDebt(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ledger.MarkBadDebt(r.Context(), mux.Vars(r)["id"], actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) voidLoan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason       string `json:"reason"`
		WithPayments bool   `json:"withPayments"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	loanID := mux.Vars(r)["id"]

	var res *ledger.VoidResult
	var err error
	if in.WithPayments {
		res, err = s.ledger.VoidLoanWithPayments(r.Context(), loanID, in.Reason, actorFrom(r))
	} else {
		res, err = s.ledger.VoidLoan(r.Context(), loanID, in.Reason, actorFrom(r))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.ledger.Payments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Payment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) voidPayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.ledger.VoidPayment(r.Context(), mux.Vars(r)["id"], in.Reason, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type tradeRequest struct {
	USD        decimal.Decimal `json:"usd"`
	Price      decimal.Decimal `json:"price"`
	Note       string          `json:"note"`
	OccurredAt *time.Time      `json:"occurredAt"`
}

func (s *Server) buyCurrency(w http.ResponseWriter, r *http.Request) {
	var in tradeRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.ledger.BuyCurrency(r.Context(), in.USD, in.Price, in.Note, in.OccurredAt, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) sellCurrency(w http.ResponseWriter, r *http.Request) {
	var in tradeRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.ledger.SellCurrency(r.Context(), in.USD, in.Price, in.Note, in.OccurredAt, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) currencySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.CurrencySummary(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) currencyLots(w http.ResponseWriter, r *http.Request) {
	lots, err := s.ledger.CurrencyLots(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lots)
}

func (s *Server) currencyMovements(w http.ResponseWriter, r *http.Request) {
	trades, err := s.ledger.CurrencyMovements(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) voidCurrencyMovement(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.ledger.VoidCurrencyMovement(r.Context(), mux.Vars(r)["id"], in.Reason, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) listWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.ledger.Wallets(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wallets)
}

func (s *Server) transferWallet(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FromUID string          `json:"fromUid"`
		ToUID   string          `json:"toUid"`
		Amount  decimal.Decimal `json:"amount"`
		Note    string          `json:"note"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.TransferWallet(r.Context(), in.FromUID, in.ToUID, in.Amount, in.Note, actorFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) creditWallet(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email  string          `json:"email"`
		Amount decimal.Decimal `json:"amount"`
		Note   string          `json:"note"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.Credit(r.Context(), mux.Vars(r)["uid"], in.Email, in.Amount, in.Note, actorFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) debitWallet(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
		Note   string          `json:"note"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.Debit(r.Context(), mux.Vars(r)["uid"], in.Amount, in.Note, actorFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) walletHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.WalletHistory(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) treasurySummary(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.TreasurySummary(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) rebuildTreasury(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.RebuildTreasury(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) treasuryUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.ledger.TreasuryByUser(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) walletsSummary(w http.ResponseWriter, r *http.Request) {
	checks, err := s.ledger.WalletsSummary(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, checks)
}

func yearFrom(r *http.Request) (int, error) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		return 0, errs.Validation("invalid year")
	}
	return year, nil
}

func (s *Server) monthlyProfits(w http.ResponseWriter, r *http.Request) {
	year, err := yearFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.ledger.MonthlyProfits(r.Context(), year)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) rebuildProfits(w http.ResponseWriter, r *http.Request) {
	year, err := yearFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.ledger.RebuildProfits(r.Context(), year)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) profitDetails(w http.ResponseWriter, r *http.Request) {
	row, payments, err := s.ledger.ProfitDetails(r.Context(), mux.Vars(r)["month"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"summary": row, "payments": payments})
}

func (s *Server) listMovements(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, errs.Validation("invalid limit"))
			return
		}
		limit = n
	}
	movements, err := s.ledger.Movements(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, movements)
}
