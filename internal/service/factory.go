package service

import (
	"log/slog"

	"synapse.app/ingest/internal/queue"
)

type Services struct {
	txRunner TxRunner
	producer queue.Producer
	logger   *slog.Logger
}

func NewServices(txRunner TxRunner, producer queue.Producer, logger *slog.Logger) *Services {
	return &Services{
		txRunner: txRunner,
		producer: producer,
		logger:   logger,
	}
}

func (s *Services) Ingest() EventIngestService {
	return NewEventIngestService(s.txRunner, s.producer, s.logger)
}

func (s *Services) TestData() TestDataService {
	return NewTestDataService(s.Ingest(), s.logger)
}
