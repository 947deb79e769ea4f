package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aggTrade(id int64, price string, ms int64, buyerMaker bool) []byte {
	return []byte(fmt.Sprintf(`{"e":"aggTrade","E":%d,"s":"BTCUSDT","a":%d,"p":"%s","q":"0.5","f":1,"l":1,"T":%d,"m":%t}`,
		ms, id, price, ms, buyerMaker))
}

func TestTradeStream_URL(t *testing.T) {
	s := NewTradeStream("wss://stream.binance.com:9443/ws/", "btcUSDT", 0)
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@aggTrade", s.url)
	assert.Equal(t, "BTCUSDT", s.Symbol())
	assert.Len(t, s.ring, DefaultTapeCapacity)
}

func TestTradeStream_Ring(t *testing.T) {
	s := NewTradeStream(DefaultSpotStreamURL, "BTCUSDT", 3)
	base := int64(1735689600000)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.handle(aggTrade(i, "100", base+i*1000, i%2 == 0)))
	}

	tape := s.Tape()
	require.Len(t, tape, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{tape[0].ID, tape[1].ID, tape[2].ID}, "oldest first, bounded")
	assert.True(t, tape[0].TakerIsBuyer)
	assert.False(t, tape[1].TakerIsBuyer)
	assert.Equal(t, 3, s.Len())
}

func TestTradeStream_RejectsReplays(t *testing.T) {
	s := NewTradeStream(DefaultSpotStreamURL, "BTCUSDT", 10)
	base := int64(1735689600000)

	require.NoError(t, s.handle(aggTrade(10, "100", base+2000, false)))
	require.NoError(t, s.handle(aggTrade(10, "100", base+2000, false)))
	require.NoError(t, s.handle(aggTrade(9, "100", base+3000, false)))
	require.NoError(t, s.handle(aggTrade(11, "100", base+1000, false)))

	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.Updates(), 1)
}

func TestTradeStream_SkipsForeignEvents(t *testing.T) {
	s := NewTradeStream(DefaultSpotStreamURL, "BTCUSDT", 10)
	assert.Error(t, s.handle([]byte(`{"result":null,"id":1}`)))
	assert.Error(t, s.handle([]byte(`not json`)))
	assert.Zero(t, s.Len())
}

func TestTradeStream_Run(t *testing.T) {
	upgrader := websocket.Upgrader{}
	base := int64(1735689600000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/btcusdt@aggTrade", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := int64(1); i <= 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, aggTrade(i, "100.5", base+i, false)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	s := NewTradeStream("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "BTCUSDT", 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case trade := <-s.Updates():
			assert.Equal(t, int64(i+1), trade.ID)
		case <-ctx.Done():
			t.Fatal("timed out waiting for trades")
		}
	}
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 3, s.Len())
}
