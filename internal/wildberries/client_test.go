package wildberries

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wbtrack-rest-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardBody = `{
  "data": {
    "products": [{
      "id": 211695539,
      "name": "Ceramic mug",
      "priceU": 150000,
      "salePriceU": 99900,
      "reviewRating": 4.7,
      "sizes": [
        {"stocks": [{"qty": 3}, {"qty": 4}]},
        {"stocks": [{"qty": 5}]}
      ]
    }]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{
		BaseURL:        server.URL,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
		AttemptTimeout: time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewClient(server.Client(), cfg)
}

func TestFetchDetails_ParsesCard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "211695539", q.Get("nm"))
		assert.Equal(t, "1", q.Get("appType"))
		assert.Equal(t, "rub", q.Get("curr"))
		assert.Equal(t, "-1257786", q.Get("dest"))
		assert.Equal(t, "30", q.Get("sp"))
		w.Write([]byte(cardBody))
	})

	d, err := c.FetchDetails(context.Background(), "211695539")
	require.NoError(t, err)
	assert.Equal(t, "211695539", d.Artikul)
	assert.Equal(t, "Ceramic mug", d.Name)
	assert.Equal(t, 1500.0, d.StandardPrice)
	assert.Equal(t, 999.0, d.SellPrice)
	assert.Equal(t, 12, d.TotalQuantity)
	assert.Equal(t, 4.7, d.Rating)
}

func TestFetchDetails_MissingFieldsAreZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"products":[{"name":"Bare","rating":3}]}}`))
	})

	d, err := c.FetchDetails(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, "77", d.Artikul)
	assert.Zero(t, d.SellPrice)
	assert.Zero(t, d.StandardPrice)
	assert.Zero(t, d.TotalQuantity)
	assert.Equal(t, 3.0, d.Rating)
}

func TestFetchDetails_NotFoundIsDefinitive(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"404": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"empty products": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"products":[]}}`))
		},
	}

	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				h(w, r)
			})

			_, err := c.FetchDetails(context.Background(), "1")
			assert.ErrorIs(t, err, model.ErrProductNotFound)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestFetchDetails_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(cardBody))
	})

	d, err := c.FetchDetails(context.Background(), "211695539")
	require.NoError(t, err)
	assert.Equal(t, "Ceramic mug", d.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDetails_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.FetchDetails(context.Background(), "1")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDetails_MalformedBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{not json`))
	}, func(cfg *Config) { cfg.MaxAttempts = 2 })

	_, err := c.FetchDetails(context.Background(), "1")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchDetails_AttemptTimeout(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(cfg *Config) {
		cfg.MaxAttempts = 2
		cfg.AttemptTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	_, err := c.FetchDetails(context.Background(), "1")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchDetails_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}, func(cfg *Config) { cfg.RetryDelay = time.Minute })

	_, err := c.FetchDetails(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchDetails_SendsAPIToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(cardBody))
	}, func(cfg *Config) { cfg.APIToken = "secret" })

	_, err := c.FetchDetails(context.Background(), "211695539")
	require.NoError(t, err)
}
