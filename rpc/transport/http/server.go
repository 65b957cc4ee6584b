package http

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// NewHttpServerTransport creates a new HTTP server transport
func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{}
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc
	config  common.ServerConfig

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}
	t.config = config

	mux := http.NewServeMux()
	if t.config.LogLevel == "debug" {
		mux.HandleFunc("POST /{shardId}", loggerMiddleware(t.handleRequest))
	} else {
		mux.HandleFunc("POST /{shardId}", t.handleRequest)
	}

	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return errors.Wrap(err, "failed to create listener")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return listener.Close()
	}
	t.server = &http.Server{Handler: mux}
	server := t.server
	t.mu.Unlock()

	Logger.Infof("Starting HTTP server on %s", config.Transport.Endpoint)
	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *httpServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleRequest handles incoming HTTP requests and writes the response to the writer
func (t *httpServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	shardId, err := strconv.ParseUint(r.PathValue("shardId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid shardId", http.StatusBadRequest)
		return
	}

	var body io.Reader = r.Body
	if max := t.config.Transport.TCPMaxFrameBytes; max > 0 {
		body = http.MaxBytesReader(w, r.Body, int64(max))
	}
	data, err := io.ReadAll(body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusRequestEntityTooLarge)
		return
	}

	resp := t.handler(shardId, data)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
