package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const (
	EventTypeDeposit    = "deposit"
	EventTypeWithdrawal = "withdrawal"

	defaultKafkaRetryDelay = 5 * time.Second
	kafkaMaxBytes          = 10 << 20
)

var ErrMalformedEvent = errors.New("watcher: malformed event")

// Envelope is the JSON shape of an event published to the bridge topic.
type Envelope struct {
	Type          string `json:"type"`
	Chain         string `json:"chain,omitempty"`
	TxID          string `json:"tx_id"`
	Amount        int64  `json:"amount"`
	Destination   string `json:"destination,omitempty"`
	Sender        string `json:"sender,omitempty"`
	PayoutChain   string `json:"payout_chain,omitempty"`
	PayoutAddress string `json:"payout_address,omitempty"`
	Encrypted     bool   `json:"encrypted,omitempty"`
}

// DecodeEvent turns one envelope into a single-event batch.
func DecodeEvent(data []byte) (Batch, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(env.TxID) == "" {
		return Batch{}, fmt.Errorf("%w: missing tx_id", ErrMalformedEvent)
	}

	switch env.Type {
	case EventTypeDeposit:
		c, err := model.ParseChain(env.Chain)
		if err != nil {
			return Batch{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		var ev DepositEvent
		switch c {
		case model.ChainBTC:
			ev = BTCDeposit{TxID: env.TxID, Amount: env.Amount, Destination: env.Destination, Sender: env.Sender}
		case model.ChainZEC:
			ev = ZECDeposit{TxID: env.TxID, Amount: env.Amount, Destination: env.Destination}
		case model.ChainSOL:
			ev = SOLDeposit{Signature: env.TxID, Amount: env.Amount, Destination: env.Destination, Sender: env.Sender}
		}
		return Batch{Deposits: []DepositEvent{ev}}, nil
	case EventTypeWithdrawal:
		c, err := model.ParseChain(env.PayoutChain)
		if err != nil {
			return Batch{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return Batch{Withdrawals: []WithdrawalEvent{{
			Signature:     env.TxID,
			Sender:        env.Sender,
			Amount:        env.Amount,
			PayoutChain:   c,
			PayoutAddress: env.PayoutAddress,
			Encrypted:     env.Encrypted,
		}}}, nil
	default:
		return Batch{}, fmt.Errorf("%w: type %q", ErrMalformedEvent, env.Type)
	}
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(cfg config.KafkaConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka reader requires at least one broker")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka reader requires a topic")
	}
	if strings.TrimSpace(cfg.Group) == "" {
		return nil, errors.New("kafka reader requires a group")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.Group,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: kafkaMaxBytes,
	}), nil
}

// KafkaConsumer dispatches events published by external indexers. An offset
// is committed only after its event was dispatched or found malformed.
type KafkaConsumer struct {
	reader     MessageReader
	dispatcher *Dispatcher
	retryDelay time.Duration
	logger     *logger.Logger
}

func NewKafkaConsumer(reader MessageReader, dispatcher *Dispatcher, logger *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     reader,
		dispatcher: dispatcher,
		retryDelay: defaultKafkaRetryDelay,
		logger:     logger,
	}
}

func (c *KafkaConsumer) WithRetryDelay(d time.Duration) *KafkaConsumer {
	c.retryDelay = d
	return c
}

// Run blocks until ctx is cancelled or the reader is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("[KafkaConsumer.Run][FetchMessage]", map[string]string{"error": err.Error()})
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	fields := map[string]string{
		"topic":  msg.Topic,
		"offset": fmt.Sprint(msg.Offset),
	}

	batch, err := DecodeEvent(msg.Value)
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Error("[KafkaConsumer.handle] dropping malformed event", fields)
		return c.commit(ctx, msg)
	}

	// the offset is committed only once the event is in the ledger
	for {
		report, err := c.dispatcher.Dispatch(ctx, batch)
		if err == nil && report.Paused == 0 {
			break
		}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["error"] = "relayer paused"
		}
		c.logger.Warn("[KafkaConsumer.handle] dispatch failed, retrying", fields)
		if !c.wait(ctx) {
			return ctx.Err()
		}
	}
	return c.commit(ctx, msg)
}

func (c *KafkaConsumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("[KafkaConsumer.commit]", map[string]string{"error": err.Error()})
		return err
	}
	return nil
}

func (c *KafkaConsumer) wait(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
