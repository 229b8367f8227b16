package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hamza-sanaullah/Plutus/internal/app"
	"github.com/hamza-sanaullah/Plutus/internal/audit"
	"github.com/hamza-sanaullah/Plutus/internal/beneficiary"
	"github.com/hamza-sanaullah/Plutus/internal/ledger"
	"github.com/hamza-sanaullah/Plutus/internal/store"
	"github.com/hamza-sanaullah/Plutus/pkg/rabbitmq"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewMemoryStore(store.AllCollections)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := app.NewService(
		st,
		ledger.New(st, logger),
		beneficiary.New(st, logger),
		audit.New(st, logger),
		&rabbitmq.NoopPublisher{},
		nil,
		app.Config{
			DefaultBalance:     1000_00,
			DefaultDailyLimit:  10000_00,
			MinTransferAmount:  1,
			MaxTransferAmount:  5000_00,
			AppendRetries:      2,
			AppendRetryBackoff: time.Millisecond,
		},
		logger,
	)

	server := httptest.NewServer(LedgerRoutes(NewLedgerHandlers(svc, logger)))
	t.Cleanup(server.Close)
	return server
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	RequestID string          `json:"request_id"`
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func registerUser(t *testing.T, base, name, account string) string {
	t.Helper()
	resp, env := doJSON(t, http.MethodPost, base+"/api/users", map[string]string{
		"full_name":      name,
		"account_number": account,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register returned %d: %+v", resp.StatusCode, env)
	}
	var data struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.UserID == "" {
		t.Fatalf("no user id in response: %s", env.Data)
	}
	return data.UserID
}

func TestRegisterAndBalanceEndpoints(t *testing.T) {
	server := newTestServer(t)
	userID := registerUser(t, server.URL, "Hamza", "1111111112")

	resp, env := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/users/%s/balance", server.URL, userID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance returned %d: %+v", resp.StatusCode, env)
	}
	if env.Status != "success" {
		t.Fatalf("envelope status %q", env.Status)
	}
	var data struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Balance != "1000.00" {
		t.Fatalf("balance = %q", data.Balance)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("response missing request id header")
	}
}

func TestBalanceUnknownUser(t *testing.T) {
	server := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, server.URL+"/api/users/USR404/balance", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Status != "error" || env.ErrorCode != "USER_NOT_FOUND" {
		t.Fatalf("envelope: %+v", env)
	}
	if env.RequestID == "" {
		t.Fatal("error envelope missing request id")
	}
}

func TestTransferEndpoint(t *testing.T) {
	server := newTestServer(t)
	sender := registerUser(t, server.URL, "Hamza", "1111111112")
	registerUser(t, server.URL, "Ayesha", "2222222223")

	resp, env := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/users/%s/transfers", server.URL, sender), map[string]string{
		"to_account_number": "2222222223",
		"amount":            "150.00",
		"description":       "rent",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("transfer returned %d: %+v", resp.StatusCode, env)
	}
	var data struct {
		TransactionID string `json:"transaction_id"`
		NewBalance    string `json:"new_balance"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Status != "completed" || data.NewBalance != "850.00" {
		t.Fatalf("unexpected transfer data: %+v", data)
	}

	// The record is readable through the read endpoints.
	resp, env = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/users/%s/transactions/%s", server.URL, sender, data.TransactionID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get transaction returned %d: %+v", resp.StatusCode, env)
	}
}

func TestTransferErrorCodes(t *testing.T) {
	server := newTestServer(t)
	sender := registerUser(t, server.URL, "Hamza", "1111111112")
	registerUser(t, server.URL, "Ayesha", "2222222223")

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "insufficient funds",
			body:     map[string]string{"to_account_number": "2222222223", "amount": "2000.00"},
			wantCode: http.StatusPaymentRequired,
			wantErr:  "INSUFFICIENT_FUNDS",
		},
		{
			name:     "invalid amount",
			body:     map[string]string{"to_account_number": "2222222223", "amount": "1.999"},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_AMOUNT",
		},
		{
			name:     "unknown beneficiary",
			body:     map[string]string{"beneficiary": "nobody", "amount": "10.00"},
			wantCode: http.StatusNotFound,
			wantErr:  "RECIPIENT_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/users/%s/transfers", server.URL, sender), tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d (%+v)", resp.StatusCode, tt.wantCode, env)
			}
			if env.ErrorCode != tt.wantErr {
				t.Fatalf("error code = %q, want %q", env.ErrorCode, tt.wantErr)
			}
		})
	}
}

func TestDepositAndWithdrawEndpoints(t *testing.T) {
	server := newTestServer(t)
	userID := registerUser(t, server.URL, "Hamza", "1111111112")

	resp, env := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/users/%s/deposits", server.URL, userID), map[string]string{
		"amount": "500.00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("deposit returned %d: %+v", resp.StatusCode, env)
	}
	var data struct {
		NewBalance string `json:"new_balance"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.NewBalance != "1500.00" {
		t.Fatalf("balance after deposit = %q", data.NewBalance)
	}

	resp, env = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/users/%s/withdrawals", server.URL, userID), map[string]string{
		"amount": "300.00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("withdraw returned %d: %+v", resp.StatusCode, env)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.NewBalance != "1200.00" {
		t.Fatalf("balance after withdrawal = %q", data.NewBalance)
	}

	resp, env = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/users/%s/withdrawals", server.URL, userID), map[string]string{
		"amount": "5000.00",
	})
	if resp.StatusCode != http.StatusPaymentRequired || env.ErrorCode != "INSUFFICIENT_FUNDS" {
		t.Fatalf("overdraw not rejected: %d %+v", resp.StatusCode, env)
	}
}

func TestBeneficiaryEndpoints(t *testing.T) {
	server := newTestServer(t)
	owner := registerUser(t, server.URL, "Hamza", "1111111112")
	base := fmt.Sprintf("%s/api/users/%s/beneficiaries", server.URL, owner)

	resp, env := doJSON(t, http.MethodPost, base, map[string]string{
		"name":           "Ayesha Khan",
		"account_number": "2222222223",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add returned %d: %+v", resp.StatusCode, env)
	}
	var added struct {
		BeneficiaryID string `json:"beneficiary_id"`
	}
	if err := json.Unmarshal(env.Data, &added); err != nil || added.BeneficiaryID == "" {
		t.Fatalf("no beneficiary id: %s", env.Data)
	}

	// Duplicate name conflicts.
	resp, env = doJSON(t, http.MethodPost, base, map[string]string{
		"name":           "ayesha khan",
		"account_number": "3333333334",
	})
	if resp.StatusCode != http.StatusConflict || env.ErrorCode != "DUPLICATE_BENEFICIARY" {
		t.Fatalf("duplicate not rejected: %d %+v", resp.StatusCode, env)
	}

	// Search finds it.
	resp, env = doJSON(t, http.MethodGet, base+"/search?q=ayesha", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search returned %d", resp.StatusCode)
	}
	var matches []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.Data, &matches); err != nil {
		t.Fatalf("decode matches: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "Ayesha Khan" {
		t.Fatalf("search wrong: %+v", matches)
	}

	// Remove, then the list is empty.
	resp, _ = doJSON(t, http.MethodDelete, base+"/"+added.BeneficiaryID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove returned %d", resp.StatusCode)
	}
	resp, env = doJSON(t, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list returned %d", resp.StatusCode)
	}
	// An empty list serializes as an omitted or empty data field.
	if len(env.Data) != 0 {
		var list []json.RawMessage
		if err := json.Unmarshal(env.Data, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("list not empty after remove: %s", env.Data)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d", resp.StatusCode)
	}
}
