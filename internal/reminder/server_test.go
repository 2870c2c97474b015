package reminder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/reminder/pkg/middleware"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Err     map[string]any  `json:"err"`
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v: %s", err, w.Body.String())
	}
	return w, resp
}

func TestServerCreateTicket(t *testing.T) {
	t.Parallel()

	t.Run("チケットを作成して取得できること", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t, ServiceConfig{})
		h := NewServer(svc, "", discardLogger()).Handler()

		w, resp := doRequest(t, h, http.MethodPost, "/api/v1/tickets",
			`{"recipientEmail":"a@b.com","subject":"件名","content":"本文","notificationTime":"2030-01-01T00:00:00Z"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		if !resp.Success || resp.Message != "リマインダーを登録しました" {
			t.Errorf("レスポンス = %+v", resp)
		}

		var created Ticket
		if err := json.Unmarshal(resp.Data, &created); err != nil {
			t.Fatalf("dataのデコードに失敗: %v", err)
		}
		if created.ID == "" || created.Status != StatusPending || created.Subject != "件名" {
			t.Errorf("作成されたチケット = %+v", created)
		}

		w, resp = doRequest(t, h, http.MethodGet, "/api/v1/tickets/"+created.ID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("GETのステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var got Ticket
		if err := json.Unmarshal(resp.Data, &got); err != nil {
			t.Fatalf("dataのデコードに失敗: %v", err)
		}
		if got.ID != created.ID || got.RecipientEmail != "a@b.com" {
			t.Errorf("取得したチケット = %+v, want id=%s", got, created.ID)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "JSONが不正な", body: `{"recipientEmail":`},
		{name: "件名がない", body: `{"recipientEmail":"a@b.com","content":"本文","notificationTime":"2030-01-01T00:00:00Z"}`},
		{name: "日時の形式が不正な", body: `{"recipientEmail":"a@b.com","subject":"s","content":"c","notificationTime":"2030/01/01"}`},
		{name: "日時が保存できる範囲外の", body: `{"recipientEmail":"a@b.com","subject":"s","content":"c","notificationTime":"2300-01-01T00:00:00Z"}`},
		{name: "アドレスが不正な", body: `{"recipientEmail":"not-an-address","subject":"s","content":"c","notificationTime":"2030-01-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name+"場合は400を返すこと", func(t *testing.T) {
			t.Parallel()

			svc, _, _ := newTestService(t, ServiceConfig{})
			h := NewServer(svc, "", discardLogger()).Handler()

			w, resp := doRequest(t, h, http.MethodPost, "/api/v1/tickets", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if resp.Success || resp.Err["message"] == nil {
				t.Errorf("レスポンス = %+v, want success=false かつerr.messageあり", resp)
			}
		})
	}

	t.Run("ストアが使えない場合は500を返し詳細を含めないこと", func(t *testing.T) {
		t.Parallel()

		svc, _, db := newTestService(t, ServiceConfig{})
		db.Close()
		h := NewServer(svc, "", discardLogger()).Handler()

		w, resp := doRequest(t, h, http.MethodPost, "/api/v1/tickets",
			`{"recipientEmail":"a@b.com","subject":"s","content":"c","notificationTime":"2030-01-01T00:00:00Z"}`)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if resp.Success || len(resp.Err) != 0 {
			t.Errorf("レスポンス = %+v, want success=false かつerrが空", resp)
		}
	})
}

func TestServerJWTAuth(t *testing.T) {
	t.Parallel()

	const secret = "reminder-test-secret"
	const body = `{"recipientEmail":"a@b.com","subject":"s","content":"c","notificationTime":"2030-01-01T00:00:00Z"}`

	newHandler := func(t *testing.T) http.Handler {
		t.Helper()
		svc, _, _ := newTestService(t, ServiceConfig{})
		return NewServer(svc, secret, discardLogger()).Handler()
	}
	post := func(h http.Handler, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(middleware.HeaderAccessToken, token)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("トークンがない場合は401を返しチケットを作らないこと", func(t *testing.T) {
		t.Parallel()

		h := newHandler(t)
		if w := post(h, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("別の鍵で署名されたトークンは401を返すこと", func(t *testing.T) {
		t.Parallel()

		token, err := middleware.GenerateJWT("other-secret", "user-1", "a@b.com", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		if w := post(newHandler(t), token); w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("ゲートウェイが転送したトークンで作成できること", func(t *testing.T) {
		t.Parallel()

		token, err := middleware.GenerateJWT(secret, "user-1", "a@b.com", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		w := post(newHandler(t), token)
		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコード = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}
	})

	t.Run("ヘルスチェックは認証なしで応答すること", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		newHandler(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

func TestServerGetTicketNotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, ServiceConfig{})
	h := NewServer(svc, "", discardLogger()).Handler()

	w, resp := doRequest(t, h, http.MethodGet, "/api/v1/tickets/no-such-id", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
}

func TestServerHealth(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, ServiceConfig{})
	h := NewServer(svc, "", discardLogger()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "reminder" {
		t.Errorf("レスポンス = %v", body)
	}
}
