// Package signingproxy runs the in-process HTTP listener the LLM
// subprocess uses to obtain signatures without ever holding the agent
// private key. It is the
// one piece of concurrency in the main loop besides the subprocess
// itself.
package signingproxy

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gorilla/mux"

	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

// Proxy is a localhost-only signing server bound to one agent private
// key at a time. The Rotator tears one down and starts a fresh one
// when the active service changes.
type Proxy struct {
	mu         sync.RWMutex
	privateKey *ecdsa.PrivateKey
	address    string
	bearer     string

	listener net.Listener
	server   *http.Server
	logger   *logging.Logger
}

// New builds a Proxy bound to privateKey, not yet listening.
func New(privateKey *ecdsa.PrivateKey, logger *logging.Logger) (*Proxy, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("signingproxy: private key is required")
	}
	bearer, err := randomBearer()
	if err != nil {
		return nil, fmt.Errorf("signingproxy: generate bearer: %w", err)
	}

	p := &Proxy{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		bearer:     bearer,
		logger:     logger,
	}
	p.server = &http.Server{Handler: p.router()}
	return p, nil
}

func randomBearer() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Start binds a random loopback port and begins serving.
func (p *Proxy) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("signingproxy: listen: %w", err)
	}
	p.listener = listener

	go func() {
		if err := p.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			p.logger.WithError(err).Error("signing proxy server stopped unexpectedly")
		}
	}()
	return nil
}

// URL returns the bound http://127.0.0.1:<port> address. Valid only
// after Start.
func (p *Proxy) URL() string {
	return fmt.Sprintf("http://%s", p.listener.Addr().String())
}

// Bearer returns the random bearer token the subprocess must present.
func (p *Proxy) Bearer() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bearer
}

// Address returns the agent EOA address this proxy signs for.
func (p *Proxy) Address() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.address
}

// Stop shuts down the listener.
func (p *Proxy) Stop() error {
	if p.server == nil {
		return nil
	}
	return p.server.Close()
}

func (p *Proxy) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(p.authMiddleware)
	r.HandleFunc("/sign-message", p.handleSignMessage).Methods(http.MethodPost)
	r.HandleFunc("/sign-transaction", p.handleSignTransaction).Methods(http.MethodPost)
	r.HandleFunc("/sign-typed-data", p.handleSignTypedData).Methods(http.MethodPost)
	return r
}

func (p *Proxy) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token != p.Bearer() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if p.logger != nil {
			p.logger.WithField("method", r.URL.Path).Info("signing proxy request")
		}
		next.ServeHTTP(w, r)
	})
}

type signMessageRequest struct {
	Message string `json:"message"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

func (p *Proxy) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	var req signMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p.mu.RLock()
	key := p.privateKey
	p.mu.RUnlock()

	digest := accounts.TextHash([]byte(req.Message))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		http.Error(w, fmt.Sprintf("sign: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, signResponse{Signature: "0x" + hex.EncodeToString(sig)})
}

type signTransactionRequest struct {
	UnsignedTxHash string `json:"unsignedTxHash"`
}

func (p *Proxy) handleSignTransaction(w http.ResponseWriter, r *http.Request) {
	var req signTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	hashBytes, err := hex.DecodeString(strings.TrimPrefix(req.UnsignedTxHash, "0x"))
	if err != nil || len(hashBytes) != 32 {
		http.Error(w, "unsignedTxHash must be a 32-byte hex digest", http.StatusBadRequest)
		return
	}

	p.mu.RLock()
	key := p.privateKey
	p.mu.RUnlock()

	sig, err := crypto.Sign(hashBytes, key)
	if err != nil {
		http.Error(w, fmt.Sprintf("sign: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, signResponse{Signature: "0x" + hex.EncodeToString(sig)})
}

func (p *Proxy) handleSignTypedData(w http.ResponseWriter, r *http.Request) {
	var typedData apitypes.TypedData
	if err := json.NewDecoder(r.Body).Decode(&typedData); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		http.Error(w, fmt.Sprintf("hash domain: %v", err), http.StatusBadRequest)
		return
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		http.Error(w, fmt.Sprintf("hash message: %v", err), http.StatusBadRequest)
		return
	}

	rawData := append([]byte("\x19\x01"), append(domainSeparator, typedDataHash...)...)
	digest := crypto.Keccak256(rawData)

	p.mu.RLock()
	key := p.privateKey
	p.mu.RUnlock()

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		http.Error(w, fmt.Sprintf("sign: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, signResponse{Signature: "0x" + hex.EncodeToString(sig)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Rebind swaps the signing key under lock, used when the active service
// changes but the listener itself is kept (callers generally prefer
// Stop+New for a full rotation; Rebind exists for tests and for the
// rare case the bearer need not change).
func (p *Proxy) Rebind(privateKey *ecdsa.PrivateKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.privateKey = privateKey
	p.address = crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
}
