package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"student-records/internal/kafka"
	"student-records/internal/student"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_SendMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("EncodesEventAsJSON", func(t *testing.T) {
		mock := mocks.NewSyncProducer(t, kafka.NewConfig())
		event := student.NewEvent(student.EventExtended, "STU00007", student.StageExtended, time.Now())

		mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var got student.Event
			if err := json.Unmarshal(val, &got); err != nil {
				return err
			}
			if got.Type != student.EventExtended || got.StudentUID != "STU00007" {
				return errors.New("unexpected event payload")
			}
			return nil
		})

		producer := kafka.NewProducerWithClient(mock, "students.events", logger)
		require.NoError(t, producer.SendMessage(context.Background(), event.StudentUID, event))
		require.NoError(t, producer.Close())
	})

	t.Run("PropagatesBrokerError", func(t *testing.T) {
		mock := mocks.NewSyncProducer(t, kafka.NewConfig())
		mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		producer := kafka.NewProducerWithClient(mock, "students.events", logger)
		err := producer.SendMessage(context.Background(), "STU00001", map[string]string{"type": "student.deleted"})
		assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.NoError(t, producer.Close())
	})

	t.Run("UnencodableValue", func(t *testing.T) {
		mock := mocks.NewSyncProducer(t, kafka.NewConfig())

		producer := kafka.NewProducerWithClient(mock, "students.events", logger)
		err := producer.SendMessage(context.Background(), "STU00001", make(chan int))
		assert.Error(t, err)
		require.NoError(t, producer.Close())
	})
}
