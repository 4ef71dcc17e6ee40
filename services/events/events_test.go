package eventsvc

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	logsvc "github.com/trezcool/feeledger/services/logger"
)

func testLogger() core.Logger {
	l := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{Env: "TEST"})
	l.Enable(false)
	return l
}

func paymentEvent(org string) core.LedgerEvent {
	return core.LedgerEvent{
		Type:           core.EventPaymentRecorded,
		OrganizationID: org,
		AcademicYearID: "year-1",
		FeeID:          "fee-1",
		PaymentID:      "pay-1",
		TransactionID:  "TXN-1",
		Amount:         decimal.RequireFromString("2000"),
		OccurredAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Run("sends one JSON message per event", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var evt core.LedgerEvent
			if err := json.Unmarshal(val, &evt); err != nil {
				return err
			}
			if evt.Type != core.EventPaymentRecorded || evt.TransactionID != "TXN-1" {
				return errors.Errorf("unexpected event: %+v", evt)
			}
			if !evt.Amount.Equal(decimal.NewFromInt(2000)) {
				return errors.Errorf("unexpected amount: %s", evt.Amount)
			}
			return nil
		})
		producer.ExpectSendMessageAndSucceed()

		pub := NewKafkaPublisher(producer, "ledger.events", testLogger())
		pub.Publish(context.Background(), paymentEvent("org-1"), paymentEvent("org-2"))
		require.NoError(t, pub.Close())
	})

	t.Run("send failures are logged, not returned", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		producer.ExpectSendMessageAndSucceed()

		pub := NewKafkaPublisher(producer, "ledger.events", testLogger())
		assert.NotPanics(t, func() {
			pub.Publish(context.Background(), paymentEvent("org-1"), paymentEvent("org-1"))
		})
		require.NoError(t, pub.Close())
	})
}

func TestBus_Publish(t *testing.T) {
	first, second := &Memory{}, &Memory{}
	bus := NewBus(first)
	bus.Subscribe(second)

	bus.Publish(context.Background())
	assert.Empty(t, first.Events())

	evt := paymentEvent("org-1")
	bus.Publish(context.Background(), evt)
	assert.Equal(t, []core.LedgerEvent{evt}, first.Events())
	assert.Equal(t, []core.LedgerEvent{evt}, second.Events())

	first.Reset()
	assert.Empty(t, first.Events())
}
