package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMiniRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func TestRedis_Channel(t *testing.T) {
	userID := uuid.MustParse("7f1c2d6e-0f7a-4c55-9a7b-2f0e5b7c1d11")

	assert.Equal(t, "resume-status:"+userID.String(), NewRedis(nil, "", nil).Channel(userID))
	assert.Equal(t, "custom:"+userID.String(), NewRedis(nil, "custom", nil).Channel(userID))
}

func TestRedis_NotifyPublishesJSON(t *testing.T) {
	_, rdb := startMiniRedis(t)
	ctx := context.Background()
	userID := uuid.New()
	n := NewRedis(rdb, "", nil)

	sub := rdb.Subscribe(ctx, n.Channel(userID))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Notify(ctx, userID, "MatchingAgent", StatusStarted))

	select {
	case m := <-sub.Channel():
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &msg))
		assert.Equal(t, Message{AgentName: "MatchingAgent", Status: StatusStarted}, msg)
		assert.JSONEq(t, `{"agentName":"MatchingAgent","status":"STARTED"}`, m.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedis_Subscribe(t *testing.T) {
	_, rdb := startMiniRedis(t)
	userID := uuid.New()
	n := NewRedis(rdb, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan Message, 2)
	done := make(chan error, 1)
	go func() {
		done <- n.Subscribe(ctx, userID, func(m Message) { received <- m })
	}()

	require.Eventually(t, func() bool {
		counts, err := rdb.PubSubNumSub(context.Background(), n.Channel(userID)).Result()
		return err == nil && counts[n.Channel(userID)] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, n.Notify(context.Background(), userID, "ResumeGeneration", StatusSuccess))

	select {
	case m := <-received:
		assert.Equal(t, StatusSuccess, m.Status)
		assert.Equal(t, "ResumeGeneration", m.AgentName)
	case <-time.After(2 * time.Second):
		t.Fatal("no message forwarded")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestRedis_NotifyAfterServerClosed(t *testing.T) {
	s, rdb := startMiniRedis(t)
	n := NewRedis(rdb, "", nil)
	s.Close()

	err := n.Notify(context.Background(), uuid.New(), "MatchingAgent", StatusFailed)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), uuid.New(), "x", StatusStarted))
}

func TestDial(t *testing.T) {
	s, _ := startMiniRedis(t)

	rdb, err := Dial(context.Background(), s.Addr())
	require.NoError(t, err)
	assert.NoError(t, rdb.Close())

	_, err = Dial(context.Background(), "  ")
	assert.Error(t, err)
}
