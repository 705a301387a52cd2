// Package http serves the store's operations as JSON over HTTP.
// Every operation is a POST under /api/v1 whose response carries
// a status object next to its payload.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrife/skv/query"
	"github.com/jrife/skv/server"
	"github.com/jrife/skv/storage/kv/keys/composite"
	"github.com/jrife/skv/utils/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	contentTypeJSON        = "application/json"
	defaultAddr            = ":30000"
	defaultShutdownTimeout = time.Second * 5
)

// Config configures a Server
type Config struct {
	Service *server.Service
	// Gatherer backs GET /metrics. Defaults to the prometheus
	// default gatherer.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Addr     string
}

// Server is the HTTP front end of a Service
type Server struct {
	service    *server.Service
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	addr       string
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	if config.Addr == "" {
		config.Addr = defaultAddr
	}

	return &Server{
		service:  config.Service,
		gatherer: config.Gatherer,
		logger:   config.Logger,
		addr:     config.Addr,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/beginTxn", s.handleBeginTxn)
		r.Post("/read", s.handleRead)
		r.Post("/write", s.handleWrite)
		r.Post("/delete", s.handleDelete)
		r.Post("/endTxn", s.handleEndTxn)
		r.Post("/createCollection", s.handleCreateCollection)
		r.Post("/createSchema", s.handleCreateSchema)
		r.Post("/getSchema", s.handleGetSchema)
		r.Post("/createQuery", s.handleCreateQuery)
		r.Post("/queryAll", s.handleQueryAll)
		r.Post("/destroyQuery", s.handleDestroyQuery)
		r.Post("/getKeyString", s.handleGetKeyString)
		r.Post("/listCollections", s.handleListCollections)
		r.Post("/getPartition", s.handleGetPartition)
		r.Post("/getTxnStatus", s.handleGetTxnStatus)
	})

	return r
}

// Start listens on the configured address and serves in
// the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)

	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.addr, err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server started", zap.String("addr", listener.Addr().String()))

	return nil
}

// Addr returns the address the server listens on once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}

	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		ctx := log.WithFields(r.Context(),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path))

		next.ServeHTTP(ww, r.WithContext(ctx))

		log.WithContext(ctx, s.logger).Debug("request",
			zap.String("method", r.Method),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("could not encode response", zap.Error(err))
	}
}

// decode reads the request body into v. An empty body leaves
// v untouched. Numbers are kept as json.Number so that they can
// be typed by a schema later.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()

	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeStatus(w, s.service.DeserializationError(err))

		return false
	}

	return true
}

func (s *Server) writeStatus(w http.ResponseWriter, err error) {
	status := server.StatusFor(err)

	s.writeJSON(w, status.Code, response{Status: status})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, response{Status: server.OK(http.StatusOK)})
}

func (s *Server) handleBeginTxn(w http.ResponseWriter, r *http.Request) {
	id, err := s.service.BeginTransaction(r.Context())

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, beginTxnResponse{Status: server.OK(http.StatusCreated), TxnID: id})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var request recordRequest

	if !s.decode(w, r, &request) {
		return
	}

	record, err := s.service.Read(r.Context(), request.TxnID, request.location(), request.Record)

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, readResponse{Status: server.OK(http.StatusOK), Record: record})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var request recordRequest

	if !s.decode(w, r, &request) {
		return
	}

	if err := s.service.Write(r.Context(), request.TxnID, request.location(), request.Record); err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, response{Status: server.OK(http.StatusCreated)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var request recordRequest

	if !s.decode(w, r, &request) {
		return
	}

	s.writeStatus(w, s.service.Delete(r.Context(), request.TxnID, request.location(), request.Record))
}

func (s *Server) handleEndTxn(w http.ResponseWriter, r *http.Request) {
	var request endTxnRequest

	if !s.decode(w, r, &request) {
		return
	}

	commit := request.Commit == nil || *request.Commit

	s.writeStatus(w, s.service.EndTransaction(r.Context(), request.TxnID, commit))
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var request createCollectionRequest

	if !s.decode(w, r, &request) {
		return
	}

	s.writeStatus(w, s.service.CreateCollection(r.Context(), request.Metadata, request.RangeEnds))
}

func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var request createSchemaRequest

	if !s.decode(w, r, &request) {
		return
	}

	s.writeStatus(w, s.service.CreateSchema(r.Context(), request.CollectionName, request.Schema))
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	var request getSchemaRequest

	if !s.decode(w, r, &request) {
		return
	}

	result, err := s.service.GetSchema(r.Context(), request.CollectionName, request.SchemaName, request.SchemaVersion)

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, getSchemaResponse{Status: server.OK(http.StatusOK), Schema: result})
}

func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var request createQueryRequest

	if !s.decode(w, r, &request) {
		return
	}

	options := query.Options{Start: request.Start, End: request.End, Limit: request.Limit, Reverse: request.Reverse}
	id, err := s.service.CreateQuery(r.Context(), request.CollectionName, request.SchemaName, options)

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, createQueryResponse{Status: server.OK(http.StatusOK), QueryID: id})
}

func (s *Server) handleQueryAll(w http.ResponseWriter, r *http.Request) {
	var request queryAllRequest

	if !s.decode(w, r, &request) {
		return
	}

	records, err := s.service.QueryAll(r.Context(), request.TxnID, request.QueryID)

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, queryAllResponse{Status: server.OK(http.StatusOK), Records: records})
}

func (s *Server) handleDestroyQuery(w http.ResponseWriter, r *http.Request) {
	var request destroyQueryRequest

	if !s.decode(w, r, &request) {
		return
	}

	s.writeStatus(w, s.service.DestroyQuery(r.Context(), request.QueryID))
}

func (s *Server) handleGetKeyString(w http.ResponseWriter, r *http.Request) {
	var request getKeyStringRequest

	if !s.decode(w, r, &request) {
		return
	}

	result, err := s.service.GetKeyString(r.Context(), request.Fields)

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, getKeyStringResponse{Status: server.OK(http.StatusOK), Result: result})
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.ListCollections(r.Context())

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, listCollectionsResponse{Status: server.OK(http.StatusOK), Collections: names})
}

func (s *Server) handleGetPartition(w http.ResponseWriter, r *http.Request) {
	var request getPartitionRequest

	if !s.decode(w, r, &request) {
		return
	}

	result, err := s.service.GetPartition(r.Context(), request.location(), request.Record, request.Reverse, request.Exclusive)

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, getPartitionResponse{
		Status: server.OK(http.StatusOK),
		Partition: &partition{
			Index: result.Index,
			Start: composite.Printable(result.Start),
			End:   composite.Printable(result.End),
		},
	})
}

func (s *Server) handleGetTxnStatus(w http.ResponseWriter, r *http.Request) {
	var request getTxnStatusRequest

	if !s.decode(w, r, &request) {
		return
	}

	status, err := s.service.TransactionStatus(r.Context(), request.TxnID)

	if err != nil {
		s.writeStatus(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, getTxnStatusResponse{Status: server.OK(http.StatusOK), TxnStatus: status.String()})
}
