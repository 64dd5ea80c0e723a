package market

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	marketpkg "band-trader/pkg/market/binance"
)

func newTestFeed(t *testing.T, h http.HandlerFunc) *RESTFeed {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRESTFeed(marketpkg.NewClient(srv.URL, false), "SOLUSDT", "1h", 5, 1000, log)
}

func TestRESTFeedHistoricalSeries(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			[1,"0","0","0","100","0",2],
			[3,"0","0","0","102","0",4],
			[5,"0","0","0","98","0",6]
		]`))
	})

	series, err := feed.FetchHistoricalSeries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 102, 98}, series)
}

func TestRESTFeedEmptyHistoryIsUnavailable(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := feed.FetchHistoricalSeries(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestRESTFeedCurrentPrice(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"SOLUSDT","price":"96.0"}`))
	})

	price, err := feed.FetchCurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 96.0, price)
}

func TestRESTFeedWrapsTransportErrors(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := feed.FetchCurrentPrice(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	_, err = feed.FetchHistoricalSeries(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestRESTFeedCancelledContext(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"SOLUSDT","price":"1"}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := feed.FetchCurrentPrice(ctx)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestMockFeedIsDeterministicPerSeed(t *testing.T) {
	a := NewMockFeed(100, 1, 10, 7)
	b := NewMockFeed(100, 1, 10, 7)

	sa, err := a.FetchHistoricalSeries(context.Background())
	require.NoError(t, err)
	sb, err := b.FetchHistoricalSeries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Len(t, sa, 10)

	pa, _ := a.FetchCurrentPrice(context.Background())
	pb, _ := b.FetchCurrentPrice(context.Background())
	assert.Equal(t, pa, pb)
	assert.Greater(t, pa, 0.0)
}
