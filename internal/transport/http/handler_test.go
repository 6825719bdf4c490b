package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/order"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/relayer"
	"github.com/lzmrd/EthXlmAtomic/internal/secret"
	"github.com/lzmrd/EthXlmAtomic/internal/signer"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type okVerifier struct{}

func (okVerifier) Verify(*model.Order) error { return nil }

var _ signer.Verifier = okVerifier{}

type noopWorkers struct{}

func (noopWorkers) Schedule(context.Context, string) bool { return true }
func (noopWorkers) Take(string, string) error             { return nil }
func (noopWorkers) Start(context.Context, string) bool    { return true }

type noopMetrics struct{}

func (noopMetrics) ObserveAccepted()       {}
func (noopMetrics) ObserveRejected(string) {}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zap.NewNop()
	clk := clock.NewManual(baseTime)
	svc := relayer.NewService(
		logger,
		clk,
		order.NewValidator(okVerifier{}, clk, logger),
		order.NewProjector(clk, 30*time.Second, 2*time.Minute),
		secret.NewVault(),
		registry.New(),
		noopWorkers{},
		noopWorkers{},
		noopMetrics{},
	)

	srv := httptest.NewServer(NewHandler(svc, logger).Router())
	t.Cleanup(srv.Close)
	return srv
}

func orderBody(t *testing.T, mutate func(*model.Order)) *bytes.Reader {
	t.Helper()
	plaintext := "swap-secret"
	o := &model.Order{
		ID:              "o1",
		MakerSrcAddress: "0xmaker",
		MakerDstAddress: "GMAKER",
		SrcToken:        "0xweth",
		DstToken:        "native",
		SrcAmount:       model.NewAmount(1_000_000_000_000_000),
		DstAmount:       model.NewAmount(5_000_000_000),
		StartPrice:      model.NewAmount(1_050_000_000),
		FloorPrice:      model.NewAmount(950_000_000),
		Hashlock:        secret.Hashlock(plaintext),
		Secret:          plaintext,
		Signature:       "0xsig",
	}
	if mutate != nil {
		mutate(o)
	}
	body, err := json.Marshal(o)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func submit(t *testing.T, srv *httptest.Server, body *bytes.Reader) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/orders", "application/json", body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSubmitOrder(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	resp := submit(t, srv, orderBody(t, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var receipt relayer.Receipt
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&receipt))
	assert.Equal(t, "o1", receipt.OrderID)
	assert.Equal(t, baseTime.Add(30*time.Second), receipt.AuctionStart.UTC())
	assert.Equal(t, int64(120), receipt.EstimatedDuration)
}

func TestSubmitOrderValidationFailure(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	resp := submit(t, srv, orderBody(t, func(o *model.Order) {
		o.Hashlock = secret.Hashlock("a different secret")
	}))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "hashlock")

	// rejected orders never become visible
	list, err := http.Get(srv.URL + "/orders")
	require.NoError(t, err)
	defer list.Body.Close()
	var orders []json.RawMessage
	require.NoError(t, json.NewDecoder(list.Body).Decode(&orders))
	assert.Empty(t, orders)
}

func TestSubmitOrderMalformedBody(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	resp := submit(t, srv, bytes.NewReader([]byte(`{"orderId": `)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitOrderDuplicate(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.Equal(t, http.StatusOK, submit(t, srv, orderBody(t, nil)).StatusCode)
	assert.Equal(t, http.StatusConflict, submit(t, srv, orderBody(t, nil)).StatusCode)
}

func TestGetOrder(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.Equal(t, http.StatusOK, submit(t, srv, orderBody(t, nil)).StatusCode)

	resp, err := http.Get(srv.URL + "/orders/o1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		Order struct {
			ID     string `json:"orderId"`
			Status string `json:"status"`
			Secret string `json:"secret"`
		} `json:"order"`
		Phase    int    `json:"phase"`
		SrcPhase string `json:"srcPhase"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, "o1", detail.Order.ID)
	assert.Equal(t, "waiting", detail.Order.Status)
	assert.Equal(t, 1, detail.Phase)
	assert.Empty(t, detail.SrcPhase, "claim phase appears only after escrow detection")
	assert.Empty(t, detail.Order.Secret, "detail endpoint must never carry a secret")
}

func TestGetOrderNotFound(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/orders/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.Equal(t, http.StatusOK, submit(t, srv, orderBody(t, nil)).StatusCode)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string         `json:"status"`
		Orders map[string]int `json:"orders"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Orders["waiting"])
}
