// Package gate is the HTTP surface of an access gate. It opens encrypted entry proofs, verifies
// them and has the used public key invalidated at the ledger authority.
package gate

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/envelope"
	"github.com/privacybydesign/zkgate/invalidation"
	"github.com/privacybydesign/zkgate/ledger"
	"github.com/privacybydesign/zkgate/optical"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	URLProcessEntry    = "/process_user_entry"
	URLScan            = "/scan"
	URLUpdatePublicKey = "/update_public_key"
	URLParams          = "/params"
	URLMetrics         = "/metrics"
)

// Response statuses.
const (
	StatusProofInvalid         = "proof_invalid"
	StatusPublicKeyInvalid     = "public_key_invalid"
	StatusPublicKeyInvalidated = "public_key_invalidated"
	StatusPublicKeyUpdated     = "public_key_updated"
	StatusServiceUnavailable   = "service_unavailable"
	StatusInternalError        = "internal_error"
)

const (
	maxJSONBody     = 64 << 10
	maxScanBody     = 4 << 20
	shutdownTimeout = 5 * time.Second
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.StandardLogger()
}

// Coordinator revokes and rotates public keys at the ledger authority.
type Coordinator interface {
	zkgate.Invalidator
	UpdatePublicKey(ctx context.Context, oldY, newY *big.Int, invalidationID string, proof *zkgate.OwnershipProof) (*zkgate.InvalidationResult, error)
}

type Config struct {
	Params      *zkgate.DomainParameters
	GateID      string
	Key         *rsa.PrivateKey
	Coordinator Coordinator
}

type Response struct {
	Status         string   `json:"status"`
	TxnHash        string   `json:"txn_hash,omitempty"`
	PublicKey      *big.Int `json:"public_key,omitempty"`
	NewPublicKey   *big.Int `json:"new_public_key,omitempty"`
	InvalidationID string   `json:"invalidation_id,omitempty"`
}

type EntryRequest struct {
	EncryptedData string `json:"encrypted_data"`
}

type UpdateRequest struct {
	OldPublicKey   *big.Int               `json:"old_public_key"`
	NewPublicKey   *big.Int               `json:"new_public_key"`
	InvalidationID string                 `json:"invalidation_id"`
	Proof          *zkgate.OwnershipProof `json:"proof"`
}

// ParamsResponse is what a prover needs to build entry proofs for this gate.
type ParamsResponse struct {
	Params        *zkgate.DomainParameters `json:"params"`
	GateID        string                   `json:"gate_id"`
	GatePublicKey string                   `json:"gate_public_key"`
}

type Server struct {
	conf      Config
	paramsRsp []byte
	router    *mux.Router
	registry  *prometheus.Registry
	metrics   *metrics
	accessLog *io.PipeWriter
	handler   http.Handler
}

func New(conf Config) (*Server, error) {
	if conf.Params == nil || conf.Key == nil || conf.Coordinator == nil {
		return nil, errors.New("gate: params, key and coordinator are required")
	}
	if conf.GateID == "" {
		return nil, errors.New("gate: empty gate id")
	}
	if err := conf.Params.Validate(); err != nil {
		return nil, err
	}
	pem, err := envelope.MarshalPemPublicKey(&conf.Key.PublicKey)
	if err != nil {
		return nil, err
	}
	paramsRsp, err := json.Marshal(&ParamsResponse{
		Params:        conf.Params,
		GateID:        conf.GateID,
		GatePublicKey: string(pem),
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		conf:      conf,
		paramsRsp: paramsRsp,
		router:    mux.NewRouter(),
		registry:  prometheus.NewRegistry(),
	}
	s.metrics = newMetrics(s.registry)
	s.registry.MustRegister(collectors.NewGoCollector())

	s.router.HandleFunc(URLProcessEntry, s.serveEntry).Methods(http.MethodPost)
	s.router.HandleFunc(URLScan, s.serveScan).Methods(http.MethodPost)
	s.router.HandleFunc(URLUpdatePublicKey, s.serveUpdate).Methods(http.MethodPost)
	s.router.HandleFunc(URLParams, s.serveParams).Methods(http.MethodGet)
	s.router.Handle(URLMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.accessLog = Logger.WriterLevel(logrus.InfoLevel)
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(Logger),
		handlers.PrintRecoveryStack(true),
	)(handlers.CombinedLoggingHandler(s.accessLog, s.router))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		Logger.Infof("gate %s listening on %s", s.conf.GateID, addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) Close() error {
	return s.accessLog.Close()
}

func (s *Server) serveEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.reply(w, http.StatusBadRequest, &Response{Status: StatusProofInvalid})
		return
	}
	text, err := decodeEntryData(req.EncryptedData)
	if err != nil {
		s.reply(w, http.StatusBadRequest, &Response{Status: StatusProofInvalid})
		return
	}
	env, err := envelope.ParseEnvelope(text)
	if err != nil {
		s.reply(w, http.StatusBadRequest, &Response{Status: StatusProofInvalid})
		return
	}
	code, rsp := s.admit(r.Context(), env)
	s.reply(w, code, rsp)
}

func (s *Server) serveScan(w http.ResponseWriter, r *http.Request) {
	text, err := optical.DecodePNG(http.MaxBytesReader(w, r.Body, maxScanBody))
	if err != nil {
		Logger.WithError(err).Debug("scan failed")
		s.reply(w, http.StatusBadRequest, &Response{Status: StatusProofInvalid})
		return
	}
	env, err := envelope.ParseEnvelope([]byte(text))
	if err != nil {
		s.reply(w, http.StatusBadRequest, &Response{Status: StatusProofInvalid})
		return
	}
	code, rsp := s.admit(r.Context(), env)
	s.reply(w, code, rsp)
}

// admit runs a Fiat-Shamir attempt on the envelope contents and invalidates the key on success.
func (s *Server) admit(ctx context.Context, env *envelope.EncryptedEnvelope) (int, *Response) {
	start := time.Now()
	defer func() { s.metrics.duration.Observe(time.Since(start).Seconds()) }()

	bundle, err := envelope.Open(env, s.conf.Key)
	if err != nil {
		return http.StatusBadRequest, &Response{Status: StatusProofInvalid}
	}
	attempt := zkgate.NewAttempt(s.conf.Params, zkgate.ChallengeFiatShamir, s.conf.GateID)
	if err = attempt.Admit(bundle); err != nil {
		Logger.WithField("public_key", zkgate.KeyHint(bundle.Y)).Info("entry proof rejected")
		return http.StatusBadRequest, &Response{Status: StatusProofInvalid}
	}

	result, err := attempt.Invalidate(ctx, s.conf.Coordinator)
	if err != nil {
		return s.failure(err)
	}
	log := Logger.WithFields(logrus.Fields{
		"public_key":      zkgate.KeyHint(bundle.Y),
		"invalidation_id": bundle.InvalidationID,
	})
	if result.Status == zkgate.AlreadyInvalidated {
		log.Info("entry refused: key not valid")
		return http.StatusBadRequest, &Response{Status: StatusPublicKeyInvalid}
	}
	log.Info("entry admitted")
	return http.StatusOK, &Response{
		Status:         StatusPublicKeyInvalidated,
		TxnHash:        result.TxRef,
		PublicKey:      bundle.Y,
		InvalidationID: bundle.InvalidationID,
	}
}

func (s *Server) serveUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.reply(w, http.StatusBadRequest, &Response{Status: StatusProofInvalid})
		return
	}
	if req.OldPublicKey == nil || req.NewPublicKey == nil || req.Proof == nil {
		s.reply(w, http.StatusBadRequest, &Response{Status: StatusProofInvalid})
		return
	}
	result, err := s.conf.Coordinator.UpdatePublicKey(r.Context(), req.OldPublicKey, req.NewPublicKey, req.InvalidationID, req.Proof)
	if err != nil {
		status, rsp := s.failure(err)
		s.reply(w, status, rsp)
		return
	}
	s.reply(w, http.StatusOK, &Response{
		Status:         StatusPublicKeyUpdated,
		TxnHash:        result.TxRef,
		NewPublicKey:   req.NewPublicKey,
		InvalidationID: req.InvalidationID,
	})
}

func (s *Server) serveParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(s.paramsRsp); err != nil {
		Logger.WithError(err).Debug("failed to write params")
	}
}

// failure maps a coordinator error to a response.
func (s *Server) failure(err error) (int, *Response) {
	switch {
	case zkgate.IsAuthenticationFailure(err), errors.Is(err, ledger.ErrAuth):
		return http.StatusBadRequest, &Response{Status: StatusProofInvalid}
	case errors.Is(err, invalidation.ErrReplay),
		errors.Is(err, ledger.ErrAlreadyInvalid),
		errors.Is(err, ledger.ErrUnknownKey),
		errors.Is(err, ledger.ErrKeyExists),
		errors.Is(err, ledger.ErrTx):
		return http.StatusBadRequest, &Response{Status: StatusPublicKeyInvalid}
	case errors.Is(err, zkgate.ErrServiceUnavailable), errors.Is(err, zkgate.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, &Response{Status: StatusServiceUnavailable}
	}
	Logger.WithError(err).Error("unexpected ledger failure")
	return http.StatusInternalServerError, &Response{Status: StatusInternalError}
}

func (s *Server) reply(w http.ResponseWriter, code int, rsp *Response) {
	s.metrics.admissions.WithLabelValues(rsp.Status).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		Logger.WithError(err).Debug("failed to encode response")
	}
}

// decodeEntryData accepts the envelope wire text hex or base64 encoded, or as is.
func decodeEntryData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, zkgate.ErrMalformedInput
	}
	if bts, err := hex.DecodeString(data); err == nil {
		return bts, nil
	}
	if bts, err := base64.StdEncoding.DecodeString(data); err == nil {
		return bts, nil
	}
	if strings.Count(data, string(zkgate.FieldDelimiter)) == 2 {
		return []byte(data), nil
	}
	return nil, zkgate.ErrMalformedInput
}
