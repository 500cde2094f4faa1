package authflow

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startTestCallbackServer(t *testing.T) *CallbackServer {
	t.Helper()
	s, err := StartCallbackServer([]int{0})
	if err != nil {
		t.Fatalf("StartCallbackServer() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCallbackDeliversResult(t *testing.T) {
	s := startTestCallbackServer(t)

	resp, err := http.Get(s.RedirectURL() + "?code=the-code&state=the-state")
	if err != nil {
		t.Fatalf("GET callback error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "successful") {
		t.Errorf("body = %q, want a success page", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if res.Code != "the-code" || res.State != "the-state" {
		t.Errorf("result = %+v", res)
	}
}

func TestCallbackRejectsMissingParams(t *testing.T) {
	s := startTestCallbackServer(t)

	resp, err := http.Get(s.RedirectURL() + "?error=access_denied")
	if err != nil {
		t.Fatalf("GET callback error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(string(body), "access_denied") {
		t.Errorf("body = %q, want the provider error shown", body)
	}

	// Nothing was delivered.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Wait(ctx); err == nil {
		t.Error("Wait() returned a result for a rejected callback")
	}
}

func TestCallbackWaitTimesOut(t *testing.T) {
	s := startTestCallbackServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Wait(ctx); err == nil {
		t.Error("Wait() succeeded without a callback")
	}
}
