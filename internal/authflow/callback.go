package authflow

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// WaitTimeout caps how long we hold the local listener open for the
// browser redirect.
const WaitTimeout = 120 * time.Second

// Result is the code/state pair delivered by the provider redirect.
type Result struct {
	Code  string
	State string
}

// CallbackServer is a short-lived local HTTP listener that receives the
// OAuth redirect and renders a human-readable page, since a real browser
// lands on it. Any collaborator able to deliver a Result to
// CompleteAuthorization (URL-scheme handler, webview intercept) can stand
// in for it.
type CallbackServer struct {
	ln       net.Listener
	srv      *http.Server
	resultCh chan Result
	url      string
}

// StartCallbackServer listens on the first available of the given loopback
// ports. Port 0 picks an ephemeral port.
func StartCallbackServer(ports []int) (*CallbackServer, error) {
	var (
		ln  net.Listener
		err error
	)
	for _, port := range ports {
		ln, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			break
		}
	}
	if ln == nil {
		return nil, fmt.Errorf("failed to start callback server on ports %v: %w", ports, err)
	}

	s := &CallbackServer{
		ln:       ln,
		resultCh: make(chan Result, 1),
		url:      fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)
	s.srv = &http.Server{Handler: mux}
	go s.srv.Serve(ln)

	return s, nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if code == "" || state == "" {
		w.WriteHeader(http.StatusBadRequest)
		reason := q.Get("error")
		if reason == "" {
			reason = "missing code or state parameter"
		}
		fmt.Fprintf(w, failurePage, reason)
		return
	}

	fmt.Fprint(w, successPage)

	// Deliver at most one result; later redirects only get the page.
	select {
	case s.resultCh <- Result{Code: code, State: state}:
	default:
	}
}

// RedirectURL returns the redirect URI to register with the provider.
func (s *CallbackServer) RedirectURL() string { return s.url }

// Wait blocks until the redirect arrives or the context expires.
func (s *CallbackServer) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-s.resultCh:
		return res, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("authorization callback not received: %w", ctx.Err())
	}
}

// Close shuts the listener down.
func (s *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

const successPage = `<!DOCTYPE html>
<html><head><title>gmailvault</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h1>Authorization successful</h1>
<p>You can close this tab and return to the application.</p>
</body></html>`

const failurePage = `<!DOCTYPE html>
<html><head><title>gmailvault</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h1>Authorization failed</h1>
<p>%s</p>
<p>You can close this tab and try again from the application.</p>
</body></html>`
