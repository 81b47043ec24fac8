package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"web3client/internal/app"
	"web3client/internal/node"
	"web3client/internal/txbuilder"
)

type Server struct {
	app    *app.App
	logger *zap.Logger
}

func NewServer(a *app.App) *Server {
	return &Server{app: a, logger: a.Logger().Named("api")}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.withAuth(s.handleHealth))
	mux.HandleFunc("/balances", s.withAuth(s.handleBalances))
	mux.HandleFunc("/tx", s.withAuth(s.handleTx))
	mux.HandleFunc("/fees", s.withAuth(s.handleFees))
	mux.HandleFunc("/rpc-log", s.withAuth(s.handleRPCLog))
	mux.Handle("/metrics", s.withAuth(promhttp.HandlerFor(s.app.Registry(), promhttp.HandlerOpts{}).ServeHTTP))
	return mux
}

// Start serves until ctx is cancelled. A clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.app.Config().API.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxTimeout)
	}()
	s.logger.Info("api listening", zap.String("listen", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if want := s.app.Config().API.AuthToken; want != "" {
			token := r.Header.Get("X-API-Key")
			if token == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					token = strings.TrimSpace(auth[7:])
				}
			}
			if token != want {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if chainID, err := s.app.ChainID(r.Context()); err == nil {
		out["chain_id"] = chainID.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	addr := s.app.Client().Address()
	if addrStr := r.URL.Query().Get("address"); addrStr != "" {
		var err error
		if addr, err = parseAddress(addrStr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if addr == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		wei, err := s.app.Client().Balance(r.Context(), addr)
		if err != nil {
			s.upstreamError(w, "balance", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"address": addr.Hex(),
			"eth_wei": wei.String(),
			"eth":     txbuilder.WeiToEther(wei).String(),
		})
		return
	}

	tok, err := s.app.Token(token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wei, err := tok.BalanceInWei(r.Context(), addr)
	if err != nil {
		s.upstreamError(w, "token balance", err)
		return
	}
	decimals, err := tok.Decimals(r.Context())
	if err != nil {
		s.upstreamError(w, "token decimals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":     addr.Hex(),
		"token":       tok.Address().Hex(),
		"balance_wei": wei.String(),
		"balance":     txbuilder.FormatUnits(wei, decimals).String(),
		"decimals":    decimals,
	})
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hashStr := strings.TrimSpace(r.URL.Query().Get("hash"))
	if len(common.FromHex(hashStr)) != common.HashLength {
		writeError(w, http.StatusBadRequest, "invalid hash")
		return
	}
	hash := common.HexToHash(hashStr)
	tx, err := s.app.Client().GetTransaction(r.Context(), hash)
	if errors.Is(err, node.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		s.upstreamError(w, "transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, app.NewRecord(s.app.Decoder(), nil, "", tx))
}

// handleFees quotes the fee fields the builder would use for the next
// transaction. A quote above the configured ceiling is reported as 409.
func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b := s.app.Client().Builder()
	txType, err := b.ResolveType(r.Context())
	if err != nil {
		s.upstreamError(w, "tx type", err)
		return
	}
	quote, err := b.Fees().Estimate(r.Context(), txType, txbuilder.FeeOptions{})
	var tooExpensive *txbuilder.TransactionTooExpensiveError
	if errors.As(err, &tooExpensive) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.upstreamError(w, "fees", err)
		return
	}
	out := map[string]any{"type": int(quote.Type)}
	for name, v := range map[string]*big.Int{
		"gas_price":                quote.GasPrice,
		"base_fee":                 quote.BaseFee,
		"max_priority_fee_per_gas": quote.MaxPriorityFeePerGas,
		"max_fee_per_gas":          quote.MaxFeePerGas,
	} {
		if v != nil {
			out[name] = v.String()
		}
	}
	if fee := quote.EffectiveFee(); fee != nil {
		out["effective_gwei"] = txbuilder.WeiToGwei(fee).String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRPCLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	l := s.app.RPCLog()
	if l == nil {
		writeError(w, http.StatusNotFound, "rpc log disabled")
		return
	}
	entries := l.Entries()
	if r.URL.Query().Get("tx") == "true" {
		entries = append(l.TxRequests(), l.TxResponses()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) upstreamError(w http.ResponseWriter, what string, err error) {
	s.logger.Warn("node call failed", zap.String("call", what), zap.Error(err))
	writeError(w, http.StatusBadGateway, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, errors.New("address is required")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(value), nil
}
