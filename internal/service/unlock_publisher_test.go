package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestUnlockPublisherDeliversToSubscriber(t *testing.T) {
	publisher := NewUnlockPublisher(nil, "", nil, testLogger())

	events, cleanup := publisher.Subscribe(7)
	defer cleanup()

	sent := UnlockEvent{
		UserID:          7,
		CourseID:        "course-v1:Demo+101+2026",
		GatedKey:        "seq2",
		PrerequisiteKey: "seq1",
		UnlockedAt:      time.Now().UTC(),
	}
	publisher.NotifyUnlock(context.Background(), sent)

	select {
	case got := <-events:
		require.Equal(t, sent.GatedKey, got.GatedKey)
		require.Equal(t, sent.PrerequisiteKey, got.PrerequisiteKey)
	case <-time.After(time.Second):
		t.Fatal("expected an unlock event")
	}
}

func TestUnlockPublisherScopesDeliveryToUser(t *testing.T) {
	publisher := NewUnlockPublisher(nil, "", nil, testLogger())

	other, cleanup := publisher.Subscribe(8)
	defer cleanup()

	publisher.NotifyUnlock(context.Background(), UnlockEvent{UserID: 7, GatedKey: "seq2"})

	select {
	case <-other:
		t.Fatal("event delivered to the wrong user")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnlockPublisherIgnoresOwnEnvelopes(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	publisher := NewUnlockPublisher(client, "coursegate", nil, testLogger()).(*unlockPublisher)

	events, cleanup := publisher.Subscribe(7)
	defer cleanup()

	// An envelope stamped with our own node id must not be re-broadcast.
	own, err := json.Marshal(unlockEnvelope{
		Source: publisher.nodeID,
		Event:  UnlockEvent{UserID: 7, GatedKey: "seq2"},
		SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	publisher.handleEnvelope(own)

	select {
	case <-events:
		t.Fatal("own envelope was re-broadcast")
	case <-time.After(50 * time.Millisecond):
	}

	// One from another node is delivered.
	remote, err := json.Marshal(unlockEnvelope{
		Source: "another-node",
		Event:  UnlockEvent{UserID: 7, GatedKey: "seq2"},
		SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	publisher.handleEnvelope(remote)

	select {
	case got := <-events:
		require.EqualValues(t, "seq2", got.GatedKey)
	case <-time.After(time.Second):
		t.Fatal("expected the remote event")
	}
}

func TestUnlockPublisherUnsubscribeClosesChannel(t *testing.T) {
	publisher := NewUnlockPublisher(nil, "", nil, testLogger())

	events, cleanup := publisher.Subscribe(7)
	cleanup()

	_, open := <-events
	require.False(t, open)
}
