// Package payment simulates card authorization.
package payment

import (
	"context"
	"fmt"
	"strings"

	"consultbot/internal/config"
	"consultbot/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Gateway struct {
	declineToken string
	currency     string
	logger       *zerolog.Logger
}

var _ domain.PaymentService = (*Gateway)(nil)

func NewGateway(cfg config.PaymentConfig, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		declineToken: cfg.DeclineToken,
		currency:     cfg.Currency,
		logger:       logger,
	}
}

// Charge authorizes amount against token. The decline token, an empty token
// or a non-positive amount fail with ErrPaymentDeclined.
func (g *Gateway) Charge(ctx context.Context, amount float64, token string) (*domain.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token = strings.TrimSpace(token)
	switch {
	case amount <= 0:
		return nil, fmt.Errorf("%w: invalid amount %.2f", domain.ErrPaymentDeclined, amount)
	case token == "":
		return nil, fmt.Errorf("%w: missing payment token", domain.ErrPaymentDeclined)
	case g.declineToken != "" && token == g.declineToken:
		g.logger.Warn().Float64("amount", amount).Msg("Payment declined")
		return nil, domain.ErrPaymentDeclined
	}

	txnID := "txn_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	g.logger.Info().
		Str("transaction_id", txnID).
		Float64("amount", amount).
		Str("currency", g.currency).
		Msg("Payment authorized")

	return &domain.ChargeResult{TransactionID: txnID, Amount: amount}, nil
}
