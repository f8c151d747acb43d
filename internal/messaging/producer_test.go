package messaging_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"student-records/internal/messaging"
	"student-records/internal/student"
	"student-records/internal/testing/testnats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_NATS(t *testing.T) {
	natsContainer := testnats.SetupSharedNATS(t)
	defer natsContainer.Cleanup(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	subject := "test.students.events"

	producer, err := messaging.NewProducer(natsContainer.URL, subject, logger)
	require.NoError(t, err)
	defer func() { _ = producer.Close() }()

	sub, err := natsContainer.Connect(t).SubscribeSync(subject)
	require.NoError(t, err)

	event := student.NewEvent(student.EventCreated, "STU00001", student.StageCreated, time.Now())
	require.NoError(t, producer.SendMessage(context.Background(), event.StudentUID, event))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "STU00001", msg.Header.Get(messaging.StudentUIDHeader))

	var got student.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, student.EventCreated, got.Type)
	assert.Equal(t, student.StageCreated, got.Stage)
}
