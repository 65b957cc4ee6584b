package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
)

// NewHttpClientTransport creates a new HTTP client transport
func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    uint32
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}

	// Parse each server URL
	parsedURLs := make([]*url.URL, len(config.Transport.Endpoints))
	for i, server := range config.Transport.Endpoints {
		parsedURL, err := url.Parse(server)
		if err != nil {
			return errors.Wrapf(err, "invalid endpoint %q", server)
		}
		parsedURLs[i] = parsedURL
	}

	perHost := config.Transport.ConnectionsPerEndpoint
	if perHost < 1 {
		perHost = 1
	}

	t.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        perHost * len(parsedURLs),
			MaxIdleConnsPerHost: perHost,
			IdleConnTimeout:     time.Duration(config.TimeoutSecond) * time.Second,
		},
	}
	t.serverURLs = parsedURLs
	t.counter = 0
	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, shardId uint64, req []byte) ([]byte, error) {
	if t.client == nil {
		return nil, transport.ErrClosed
	}

	// Select the next server via round-robin
	idx := atomic.AddUint32(&t.counter, 1) % uint32(len(t.serverURLs))
	requestURL := t.serverURLs[idx].JoinPath(strconv.FormatUint(shardId, 10))

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/octet-stream")

	httpResponse, err := t.client.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, errors.Newf("http error: %s", httpResponse.Status)
	}
	return io.ReadAll(httpResponse.Body)
}

// OnLateResponse is a no-op: a cancelled HTTP request never yields a response.
func (t *httpClientTransport) OnLateResponse(transport.LateResponseFunc) {}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.serverURLs = nil
	return nil
}
