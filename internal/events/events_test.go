package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxledger/internal/logging"
	"github.com/congo-pay/fxledger/internal/txlog"
)

func conversion() txlog.Transaction {
	return txlog.Transaction{
		ID:           uuid.NewString(),
		UserID:       "user-1",
		Type:         txlog.TypeConversion,
		FromCurrency: "NGN",
		ToCurrency:   "USD",
		FromAmount:   decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		ToAmount:     decimal.NewNullDecimal(decimal.RequireFromString("1.2")),
		ExchangeRate: decimal.NewNullDecimal(decimal.RequireFromString("0.0012")),
		Status:       txlog.StatusCompleted,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestFromTransactionKinds(t *testing.T) {
	tx := conversion()
	assert.Equal(t, KindConverted, FromTransaction(tx).Kind)

	tx.Type = txlog.TypeTrade
	assert.Equal(t, KindTraded, FromTransaction(tx).Kind)

	tx.Type = txlog.TypeFunding
	assert.Equal(t, KindFunded, FromTransaction(tx).Kind)
}

func TestKafkaPublisherSendsJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	tx := conversion()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "ledger.events" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "user-1" {
			return errors.New("message must be keyed by user id")
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		if decoded["kind"] != KindConverted || decoded["exchangeRate"] != "0.0012" {
			return errors.New("unexpected payload " + string(raw))
		}
		return nil
	})

	pub := NewKafkaPublisher(producer, "ledger.events")
	require.NoError(t, pub.Publish(context.Background(), FromTransaction(tx)))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherPropagatesFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisher(producer, "ledger.events")
	err := pub.Publish(context.Background(), FromTransaction(conversion()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestLoggerPublisher(t *testing.T) {
	assert.NoError(t, NewLoggerPublisher(logging.Discard()).Publish(context.Background(), FromTransaction(conversion())))

	var nilPub *LoggerPublisher
	assert.NoError(t, nilPub.Publish(context.Background(), Event{}))
}
