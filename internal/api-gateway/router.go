// Package gateway roteia a API pública para os serviços internos
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Upstreams são as URLs base dos serviços por trás do gateway
type Upstreams struct {
	Bet       string
	Wallet    string
	RoundFeed string
}

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", to)
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

// NewRouter monta as rotas:
//
//	/api/bets/*, /api/rounds/*, /api/users/* -> bet-service
//	/api/wallet/*                           -> wallet-service
//	/ws                                     -> round-feed (upgrade WebSocket)
func NewRouter(up Upstreams) (http.Handler, error) {
	bet, err := rp(up.Bet)
	if err != nil {
		return nil, err
	}
	wallet, err := rp(up.Wallet)
	if err != nil {
		return nil, err
	}
	feed, err := rp(up.RoundFeed)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	for _, prefix := range []string{"/api/bets", "/api/rounds", "/api/users"} {
		mux.Handle(prefix, http.StripPrefix("/api", bet))
		mux.Handle(prefix+"/", http.StripPrefix("/api", bet))
	}
	mux.Handle("/api/wallet/", http.StripPrefix("/api", wallet))
	mux.Handle("/ws", feed)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return withCORS(mux), nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
