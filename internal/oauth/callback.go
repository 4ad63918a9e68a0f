package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// CallbackHandler finishes the consent flow on the redirect URL: it checks
// state, exchanges the code and hands the token to save. The first outcome
// is sent on result, which must have room for one value; later requests
// are rejected.
func CallbackHandler(a Authorizer, state string, save func(*oauth2.Token) error, result chan<- error) http.Handler {
	finish := func(err error) { result <- err }
	var (
		mu   sync.Mutex
		used bool
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if used {
			mu.Unlock()
			http.Error(w, "authorization already completed", http.StatusGone)
			return
		}
		used = true
		mu.Unlock()

		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			finish(fmt.Errorf("authorization denied: %s", e))
			return
		}
		if err := CheckState(state, q.Get("state")); err != nil {
			http.Error(w, "invalid state", http.StatusBadRequest)
			finish(err)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			finish(errors.New("callback without code"))
			return
		}

		tok, err := a.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			finish(err)
			return
		}
		if tok.RefreshToken == "" {
			http.Error(w, "no refresh token returned", http.StatusBadGateway)
			finish(errors.New("no refresh token returned; revoke the app's access and retry"))
			return
		}
		if err := save(tok); err != nil {
			http.Error(w, "failed to store token", http.StatusInternalServerError)
			finish(err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><h2>Gmail authorization complete</h2><p>You can close this window.</p></body></html>`)
		finish(nil)
	})
}
