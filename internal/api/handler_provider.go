package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsfund/treasury/internal/notify"
	"github.com/sportsfund/treasury/internal/repos/clubaccounts"
	"github.com/sportsfund/treasury/internal/repos/events"
	"github.com/sportsfund/treasury/internal/repos/ledger"
	"github.com/sportsfund/treasury/internal/repos/payments"
	"github.com/sportsfund/treasury/internal/repos/rules"
	"github.com/sportsfund/treasury/internal/repos/wallets"
	"github.com/sportsfund/treasury/internal/services/audit"
	"github.com/sportsfund/treasury/internal/services/clubaccount"
	"github.com/sportsfund/treasury/internal/services/deduction"
	"github.com/sportsfund/treasury/internal/services/distribution"
	"github.com/sportsfund/treasury/internal/services/wallet"
)

// HandlerProvider wraps the treasury services and exposes HTTP handlers.
type HandlerProvider struct {
	wallets      *wallet.Service
	clubs        *clubaccount.Service
	distribution *distribution.Service
	accountant   *deduction.Accountant
	auditor      *audit.Auditor
	notifier     notify.Notifier
}

// NewHandler returns a new handler provider.
func NewHandler(
	wallets *wallet.Service,
	clubs *clubaccount.Service,
	dist *distribution.Service,
	accountant *deduction.Accountant,
	auditor *audit.Auditor,
	notifier notify.Notifier,
) *HandlerProvider {
	return &HandlerProvider{
		wallets:      wallets,
		clubs:        clubs,
		distribution: dist,
		accountant:   accountant,
		auditor:      auditor,
		notifier:     notifier,
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)

		http.Error(w, `{"error":"internal json encode failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing %s", name)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}

	return id, nil
}

// parseAmount accepts a decimal string with at most two fractional digits.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount required")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount")
	}
	if d.Exponent() < -2 {
		return decimal.Zero, fmt.Errorf("amount supports up to 2 decimals")
	}

	return d, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}

		return fmt.Errorf("invalid JSON")
	}

	return nil
}

// writeDomainError maps sentinel errors from the services onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wallets.ErrWalletNotFound),
		errors.Is(err, clubaccounts.ErrAccountNotFound),
		errors.Is(err, events.ErrEventNotFound),
		errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, payments.ErrPaymentNotFound),
		errors.Is(err, payments.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, wallets.ErrInsufficientFunds),
		errors.Is(err, events.ErrAlreadyDistributed),
		errors.Is(err, deduction.ErrNothingRemaining):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, distribution.ErrEventNotCompleted),
		errors.Is(err, distribution.ErrNoParticipants),
		errors.Is(err, distribution.ErrInvalidPercentage),
		errors.Is(err, deduction.ErrInvalidSelection),
		errors.Is(err, deduction.ErrRuleNotApplicable),
		errors.Is(err, deduction.ErrScheduleTeamMismatch),
		errors.Is(err, deduction.ErrNonPositiveAmount),
		errors.Is(err, wallet.ErrNonPositiveAmount),
		errors.Is(err, wallet.ErrZeroAdjustment),
		errors.Is(err, clubaccount.ErrNonPositiveAmount):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Response shapes ---

// Money travels as strings with exactly two decimals; clients never see
// floats.

type walletResponse struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	TeamID        uuid.UUID `json:"teamId"`
	CurrentAmount string    `json:"currentAmount"`
	TotalEarned   string    `json:"totalEarned"`
}

func toWalletResponse(w *wallets.Wallet) walletResponse {
	return walletResponse{
		ID:            w.ID,
		UserID:        w.UserID,
		TeamID:        w.TeamID,
		CurrentAmount: w.CurrentAmount.StringFixed(2),
		TotalEarned:   w.TotalEarned.StringFixed(2),
	}
}

type transactionResponse struct {
	ID          uuid.UUID  `json:"id"`
	EventID     *uuid.UUID `json:"eventId,omitempty"`
	Amount      string     `json:"amount"`
	Kind        string     `json:"kind"`
	Direction   string     `json:"direction"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toTransactionResponses(txs []ledger.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:          t.ID,
			EventID:     t.EventID,
			Amount:      t.Amount.StringFixed(2),
			Kind:        string(t.Kind),
			Direction:   string(t.Direction),
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}

	return out
}

type paymentResponse struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"userId"`
	TeamID     uuid.UUID `json:"teamId"`
	ScheduleID uuid.UUID `json:"scheduleId"`
	BaseAmount string    `json:"baseAmount"`
	AmountPaid string    `json:"amountPaid"`
	DueDate    time.Time `json:"dueDate"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
}

func toPaymentResponse(p *payments.Payment) paymentResponse {
	return paymentResponse{
		ID:         p.ID,
		UserID:     p.UserID,
		TeamID:     p.TeamID,
		ScheduleID: p.ScheduleID,
		BaseAmount: p.BaseAmount.StringFixed(2),
		AmountPaid: p.AmountPaid.StringFixed(2),
		DueDate:    p.DueDate,
		Status:     string(p.Status),
		Notes:      p.Notes,
	}
}

type appliedDeductionResponse struct {
	RuleID   uuid.UUID `json:"ruleId"`
	RuleName string    `json:"ruleName"`
	Kind     string    `json:"kind"`
	Amount   string    `json:"amount"`
}

type availableDeductionResponse struct {
	RuleID          uuid.UUID `json:"ruleId"`
	RuleName        string    `json:"ruleName"`
	Kind            string    `json:"kind"`
	PotentialAmount string    `json:"potentialAmount"`
}

type breakdownResponse struct {
	BaseAmount      string                       `json:"baseAmount"`
	TotalDeductions string                       `json:"totalDeductions"`
	FinalAmount     string                       `json:"finalAmount"`
	Applied         []appliedDeductionResponse   `json:"applied"`
	Available       []availableDeductionResponse `json:"available"`
}

func toBreakdownResponse(bd *deduction.Breakdown) breakdownResponse {
	resp := breakdownResponse{
		BaseAmount:      bd.BaseAmount.StringFixed(2),
		TotalDeductions: bd.TotalDeductions.StringFixed(2),
		FinalAmount:     bd.FinalAmount.StringFixed(2),
		Applied:         make([]appliedDeductionResponse, 0, len(bd.Applied)),
		Available:       make([]availableDeductionResponse, 0, len(bd.Available)),
	}

	for _, d := range bd.Applied {
		resp.Applied = append(resp.Applied, appliedDeductionResponse{
			RuleID:   d.RuleID,
			RuleName: d.RuleName,
			Kind:     string(d.Kind),
			Amount:   d.Amount.StringFixed(2),
		})
	}

	for _, d := range bd.Available {
		resp.Available = append(resp.Available, availableDeductionResponse{
			RuleID:          d.RuleID,
			RuleName:        d.RuleName,
			Kind:            string(d.Kind),
			PotentialAmount: d.PotentialAmount.StringFixed(2),
		})
	}

	return resp
}

// --- Handlers ---

// GetWalletHandler handles GET /teams/{teamId}/users/{userId}/wallet.
// Creates the wallet with zero balances on first access.
func (h *HandlerProvider) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	teamID, err := parseUUIDParam(r, "teamId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wlt, err := h.wallets.GetOrCreate(r.Context(), userID, teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWalletResponse(wlt))
}

// ListWalletTransactionsHandler handles GET /wallets/{walletId}/transactions.
func (h *HandlerProvider) ListWalletTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	walletID, err := parseUUIDParam(r, "walletId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.wallets.GetByID(r.Context(), walletID); err != nil {
		writeDomainError(w, err)
		return
	}

	txs, err := h.wallets.Transactions(r.Context(), walletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"walletId":     walletID,
		"transactions": toTransactionResponses(txs),
	})
}

type adjustRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// AdjustWalletHandler handles POST /wallets/{walletId}/adjust. The amount is
// signed: positive credits, negative debits with a floor at zero.
func (h *HandlerProvider) AdjustWalletHandler(w http.ResponseWriter, r *http.Request) {
	walletID, err := parseUUIDParam(r, "walletId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req adjustRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Reason == "" || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "reason and actor required")
		return
	}

	wlt, err := h.wallets.Adjust(r.Context(), walletID, amount, req.Reason, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWalletResponse(wlt))
}

// DistributeEventHandler handles POST /events/{eventId}/distribute.
func (h *HandlerProvider) DistributeEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseUUIDParam(r, "eventId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.distribution.Distribute(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	for _, p := range summary.Participants {
		h.notifier.EarningsDistributed(r.Context(), p.UserID, summary.EventName, p.Amount)
	}

	participants := make([]map[string]any, 0, len(summary.Participants))
	for _, p := range summary.Participants {
		participants = append(participants, map[string]any{
			"userId":   p.UserID,
			"walletId": p.WalletID,
			"amount":   p.Amount.StringFixed(2),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"eventId":              summary.EventID,
		"totalBudget":          summary.TotalBudget.StringFixed(2),
		"clubCommission":       summary.ClubCommission.StringFixed(2),
		"availableAmount":      summary.AvailableAmount.StringFixed(2),
		"amountPerParticipant": summary.AmountPerParticipant.StringFixed(2),
		"residual":             summary.Residual.StringFixed(2),
		"participants":         participants,
	})
}

// GetClubAccountHandler handles GET /clubs/{clubId}/account.
func (h *HandlerProvider) GetClubAccountHandler(w http.ResponseWriter, r *http.Request) {
	clubID, err := parseUUIDParam(r, "clubId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.clubs.Get(r.Context(), clubID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	txs, err := h.clubs.Transactions(r.Context(), account.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	transactions := make([]map[string]any, 0, len(txs))
	for _, t := range txs {
		transactions = append(transactions, map[string]any{
			"id":          t.ID,
			"eventId":     t.EventID,
			"amount":      t.Amount.StringFixed(2),
			"kind":        string(t.Kind),
			"description": t.Description,
			"createdAt":   t.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              account.ID,
		"clubId":          account.ClubID,
		"totalCommission": account.TotalCommission.StringFixed(2),
		"currentBalance":  account.CurrentBalance.StringFixed(2),
		"transactions":    transactions,
	})
}

type createPaymentRequest struct {
	UserID          uuid.UUID   `json:"userId"`
	TeamID          uuid.UUID   `json:"teamId"`
	ScheduleID      uuid.UUID   `json:"scheduleId"`
	SelectedRuleIDs []uuid.UUID `json:"selectedRuleIds,omitempty"`
}

func (req *createPaymentRequest) validate() error {
	if req.UserID == uuid.Nil || req.TeamID == uuid.Nil || req.ScheduleID == uuid.Nil {
		return fmt.Errorf("userId, teamId and scheduleId required")
	}

	return nil
}

// CreatePaymentHandler handles POST /payments.
func (h *HandlerProvider) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, bd, err := h.accountant.CreateWithDeductions(r.Context(), req.UserID, req.TeamID, req.ScheduleID, req.SelectedRuleIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.notifyWalletDebits(r, req.UserID, req.TeamID, bd.Applied)

	writeJSON(w, http.StatusCreated, map[string]any{
		"payment":   toPaymentResponse(p),
		"breakdown": toBreakdownResponse(bd),
	})
}

// PreviewPaymentHandler handles POST /payments/preview. Same request shape as
// creation, but nothing is persisted.
func (h *HandlerProvider) PreviewPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bd, err := h.accountant.Preview(r.Context(), req.UserID, req.TeamID, req.ScheduleID, req.SelectedRuleIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBreakdownResponse(bd))
}

// notifyWalletDebits announces the wallet-funded part of an applied
// deduction set. Best effort: a failed wallet read only skips the
// announcement.
func (h *HandlerProvider) notifyWalletDebits(r *http.Request, userID, teamID uuid.UUID, applied []deduction.AppliedDeduction) {
	total := decimal.Zero
	for _, d := range applied {
		if d.Kind == rules.KindWalletFunded {
			total = total.Add(d.Amount)
		}
	}
	if !total.IsPositive() {
		return
	}

	wlt, err := h.wallets.Get(r.Context(), userID, teamID)
	if err != nil {
		return
	}

	h.notifier.WalletDebited(r.Context(), userID, total, wlt.CurrentAmount)
}

type manualPaymentRequest struct {
	Amount string `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// ManualPaymentHandler handles POST /payments/{paymentId}/manual.
func (h *HandlerProvider) ManualPaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, err := parseUUIDParam(r, "paymentId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req manualPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.accountant.ApplyManualPayment(r.Context(), paymentID, amount, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

type additionalDeductionRequest struct {
	RuleID uuid.UUID `json:"ruleId"`
}

// AdditionalDeductionHandler handles POST /payments/{paymentId}/deductions.
func (h *HandlerProvider) AdditionalDeductionHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, err := parseUUIDParam(r, "paymentId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req additionalDeductionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RuleID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "ruleId required")
		return
	}

	p, err := h.accountant.ApplyAdditionalDeduction(r.Context(), paymentID, req.RuleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// GetPaymentHandler handles GET /payments/{paymentId}.
func (h *HandlerProvider) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, err := parseUUIDParam(r, "paymentId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.accountant.Payment(r.Context(), paymentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// ValidateWalletHandler handles GET /wallets/{walletId}/audit.
func (h *HandlerProvider) ValidateWalletHandler(w http.ResponseWriter, r *http.Request) {
	walletID, err := parseUUIDParam(r, "walletId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.auditor.Validate(r.Context(), walletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	issues := make([]map[string]any, 0, len(report.Issues))
	for _, issue := range report.Issues {
		issues = append(issues, map[string]any{
			"kind":     string(issue.Kind),
			"expected": issue.Expected.StringFixed(2),
			"actual":   issue.Actual.StringFixed(2),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"walletId":            report.WalletID,
		"consistent":          report.Consistent(),
		"expectedAmount":      report.ExpectedAmount.StringFixed(2),
		"expectedTotalEarned": report.ExpectedTotalEarned.StringFixed(2),
		"issues":              issues,
	})
}

// RepairWalletHandler handles POST /wallets/{walletId}/repair.
func (h *HandlerProvider) RepairWalletHandler(w http.ResponseWriter, r *http.Request) {
	walletID, err := parseUUIDParam(r, "walletId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	repaired, err := h.auditor.Repair(r.Context(), walletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"walletId": walletID,
		"repaired": repaired,
	})
}
