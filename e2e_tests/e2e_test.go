package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// Runs against the API started with the DEV seed data from
// cmd/migrator/test_data.
const (
	baseURL   = "http://localhost:8080"
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second

	seedTeamID     = "22222222-2222-2222-2222-222222222222"
	seedClubID     = "11111111-1111-1111-1111-111111111111"
	seedEventID    = "44444444-4444-4444-4444-444444444444"
	seedScheduleID = "66666666-6666-6666-6666-666666666666"
	seedUserAlice  = "33333333-3333-3333-3333-333333333331"
	seedUserBruno  = "33333333-3333-3333-3333-333333333332"
)

var httpClient = &http.Client{Timeout: timeout}

func TestE2E_DistributionFlow(t *testing.T) {
	waitUntilReady(t)

	distributed := false

	t.Run("distribute_completed_event", func(t *testing.T) {
		code, body := doJSON(t, http.MethodPost, "/events/"+seedEventID+"/distribute", nil)
		switch code {
		case http.StatusOK:
			distributed = true

			var payload struct {
				ClubCommission       string `json:"clubCommission"`
				AmountPerParticipant string `json:"amountPerParticipant"`
				Residual             string `json:"residual"`
			}
			decodeInto(t, body, &payload)

			if payload.ClubCommission != "200.00" {
				t.Errorf("commission: want 200.00, got %s", payload.ClubCommission)
			}
			if payload.AmountPerParticipant != "266.66" {
				t.Errorf("per participant: want 266.66, got %s", payload.AmountPerParticipant)
			}
			if payload.Residual != "0.02" {
				t.Errorf("residual: want 0.02, got %s", payload.Residual)
			}
		case http.StatusConflict:
			// A previous run already distributed this event; the rest of the
			// flow still holds.
		default:
			t.Fatalf("distribute: want 200 or 409, got %d (%s)", code, body)
		}
	})

	t.Run("second_distribution_conflicts", func(t *testing.T) {
		code, body := doJSON(t, http.MethodPost, "/events/"+seedEventID+"/distribute", nil)
		if code != http.StatusConflict {
			t.Fatalf("second distribute: want 409, got %d (%s)", code, body)
		}
	})

	t.Run("participant_wallet_credited", func(t *testing.T) {
		if !distributed {
			t.Skip("event was distributed by a previous run; wallet state is not pristine")
		}

		w := getWallet(t, seedUserAlice)
		if w.CurrentAmount != "266.66" {
			t.Errorf("wallet balance: want 266.66, got %s", w.CurrentAmount)
		}
		if w.TotalEarned != "266.66" {
			t.Errorf("total earned: want 266.66, got %s", w.TotalEarned)
		}
	})

	t.Run("club_account_received_commission", func(t *testing.T) {
		if !distributed {
			t.Skip("event was distributed by a previous run")
		}

		code, body := doJSON(t, http.MethodGet, "/clubs/"+seedClubID+"/account", nil)
		if code != http.StatusOK {
			t.Fatalf("club account: want 200, got %d (%s)", code, body)
		}

		var payload struct {
			TotalCommission string `json:"totalCommission"`
		}
		decodeInto(t, body, &payload)
		if payload.TotalCommission != "200.00" {
			t.Errorf("total commission: want 200.00, got %s", payload.TotalCommission)
		}
	})

	t.Run("wallet_audit_consistent", func(t *testing.T) {
		w := getWallet(t, seedUserAlice)

		code, body := doJSON(t, http.MethodGet, "/wallets/"+w.ID+"/audit", nil)
		if code != http.StatusOK {
			t.Fatalf("audit: want 200, got %d (%s)", code, body)
		}

		var payload struct {
			Consistent bool `json:"consistent"`
		}
		decodeInto(t, body, &payload)
		if !payload.Consistent {
			t.Error("distributed wallet must audit clean")
		}
	})
}

func TestE2E_PaymentFlow(t *testing.T) {
	waitUntilReady(t)

	t.Run("preview_shows_wallet_deduction", func(t *testing.T) {
		code, body := doJSON(t, http.MethodPost, "/payments/preview", map[string]any{
			"userId":     seedUserBruno,
			"teamId":     seedTeamID,
			"scheduleId": seedScheduleID,
		})
		if code != http.StatusOK {
			t.Fatalf("preview: want 200, got %d (%s)", code, body)
		}

		var payload struct {
			BaseAmount string `json:"baseAmount"`
		}
		decodeInto(t, body, &payload)
		if payload.BaseAmount != "250.00" {
			t.Errorf("base amount: want 250.00, got %s", payload.BaseAmount)
		}
	})

	t.Run("create_payment_and_pay_manually", func(t *testing.T) {
		code, body := doJSON(t, http.MethodPost, "/payments", map[string]any{
			"userId":     seedUserBruno,
			"teamId":     seedTeamID,
			"scheduleId": seedScheduleID,
		})
		if code != http.StatusCreated {
			t.Fatalf("create payment: want 201, got %d (%s)", code, body)
		}

		var created struct {
			Payment struct {
				ID         string `json:"id"`
				BaseAmount string `json:"baseAmount"`
				Status     string `json:"status"`
			} `json:"payment"`
		}
		decodeInto(t, body, &created)
		if created.Payment.BaseAmount != "250.00" {
			t.Errorf("base amount: want 250.00, got %s", created.Payment.BaseAmount)
		}
		if created.Payment.Status == "paid" {
			t.Skip("wallet covered the whole payment; nothing left for a manual payment")
		}

		code, body = doJSON(t, http.MethodPost, "/payments/"+created.Payment.ID+"/manual", map[string]any{
			"amount": "1000.00",
			"note":   "bank transfer",
		})
		if code != http.StatusOK {
			t.Fatalf("manual payment: want 200, got %d (%s)", code, body)
		}

		var paid struct {
			Status     string `json:"status"`
			AmountPaid string `json:"amountPaid"`
		}
		decodeInto(t, body, &paid)
		if paid.Status != "paid" {
			t.Errorf("status: want paid, got %s", paid.Status)
		}
		if paid.AmountPaid != "250.00" {
			t.Errorf("manual payment must cap at base amount, got %s", paid.AmountPaid)
		}
	})

	t.Run("validation_errors", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodPost, "/payments", map[string]any{
			"userId": seedUserBruno,
		})
		if code != http.StatusBadRequest {
			t.Errorf("missing fields: want 400, got %d", code)
		}

		code, _ = doJSON(t, http.MethodGet, "/wallets/not-a-uuid/transactions", nil)
		if code != http.StatusBadRequest {
			t.Errorf("bad uuid: want 400, got %d", code)
		}
	})
}

/* -------------------- helpers -------------------- */

type walletPayload struct {
	ID            string `json:"id"`
	CurrentAmount string `json:"currentAmount"`
	TotalEarned   string `json:"totalEarned"`
}

func getWallet(t *testing.T, userID string) walletPayload {
	t.Helper()

	code, body := doJSON(t, http.MethodGet,
		fmt.Sprintf("/teams/%s/users/%s/wallet", seedTeamID, userID), nil)
	if code != http.StatusOK {
		t.Fatalf("get wallet: want 200, got %d (%s)", code, body)
	}

	var w walletPayload
	decodeInto(t, body, &w)

	return w
}

func doJSON(t *testing.T, method, path string, payload any) (int, string) {
	t.Helper()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func decodeInto(t *testing.T, body string, v any) {
	t.Helper()

	err := json.Unmarshal([]byte(body), v)
	if err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

// waitUntilReady polls /healthz until the API responds or times out.
func waitUntilReady(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitReady)
	defer cancel()

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", baseURL, waitReady)
		case <-tick.C:
			resp, err := httpClient.Get(baseURL + "/healthz")
			if err != nil {
				if strings.Contains(err.Error(), "connection refused") {
					continue
				}
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}
