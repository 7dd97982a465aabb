package feishu

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSendCardUsesCachedToken(t *testing.T) {
	var tokenCalls, messageCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/app_access_token/internal"):
			tokenCalls.Add(1)
			w.Write([]byte(`{"code":0,"msg":"ok","app_access_token":"t-123","expire":7200}`))
		case r.URL.Path == "/open-apis/im/v1/messages":
			messageCalls.Add(1)
			if got := r.Header.Get("Authorization"); got != "Bearer t-123" {
				t.Errorf("unexpected auth header %q", got)
			}
			if got := r.URL.Query().Get("receive_id_type"); got != "chat_id" {
				t.Errorf("unexpected receive_id_type %q", got)
			}
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["msg_type"] != "interactive" || body["receive_id"] != "oc_1" {
				t.Errorf("unexpected body %v", body)
			}
			w.Write([]byte(`{"code":0,"msg":"ok","data":{"message_id":"om_1"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	card := NewShortageAlertCard([]ShortageItem{{WorkOrder: "1000010001", PartType: "底座", Shortfall: 3}}, 1, nil, "")
	for i := 0; i < 2; i++ {
		if err := c.SendCard(context.Background(), "oc_1", card); err != nil {
			t.Fatalf("send card: %v", err)
		}
	}
	if tokenCalls.Load() != 1 || messageCalls.Load() != 2 {
		t.Errorf("expected 1 token call and 2 messages, got %d/%d", tokenCalls.Load(), messageCalls.Load())
	}
}

func TestSendCardAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/app_access_token/internal") {
			w.Write([]byte(`{"code":0,"app_access_token":"t","expire":7200}`))
			return
		}
		w.Write([]byte(`{"code":230001,"msg":"bot not in chat"}`))
	}))
	defer srv.Close()

	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	err := c.SendCard(context.Background(), "oc_1", InteractiveCard{})
	if err == nil || !strings.Contains(err.Error(), "230001") {
		t.Errorf("expected feishu error code in %v", err)
	}
}

func TestSendWebhookCard(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		w.Write([]byte(`{"code":0,"msg":"success"}`))
	}))
	defer srv.Close()

	c := NewClient("", "")
	card := NewShortageAlertCard(nil, 0, []string{"VMC-850"}, "http://mes.local/shortage")
	if err := c.SendWebhookCard(context.Background(), srv.URL+"/hook", card); err != nil {
		t.Fatalf("send webhook: %v", err)
	}
	if got.MsgType != "interactive" || got.Card.Header == nil {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.Card.Header.Template != "green" {
		t.Errorf("no shortage should use green header, got %s", got.Card.Header.Template)
	}
}

func TestShortageCardTruncates(t *testing.T) {
	items := make([]ShortageItem, 20)
	for i := range items {
		items[i] = ShortageItem{WorkOrder: "WO", Shortfall: 1}
	}
	card := NewShortageAlertCard(items, 20, nil, "")
	var md string
	for _, e := range card.Elements {
		if e.Tag == "markdown" {
			md = e.Content
		}
	}
	if strings.Count(md, "- WO") != maxCardRows || !strings.Contains(md, "另有 5 行") {
		t.Errorf("unexpected markdown:\n%s", md)
	}
	if card.Header.Template != "red" {
		t.Errorf("shortage should use red header")
	}
}
