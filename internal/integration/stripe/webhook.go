package stripe

import (
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/stripe/stripe-go/v78/webhook"
)

// WebhookVerifier проверяет подпись входящих webhook-событий
type WebhookVerifier interface {
	// VerifyEvent проверяет подпись и разбирает событие. Ошибка означает,
	// что событие нельзя применять: подпись неверна или тело повреждено.
	VerifyEvent(payload []byte, signatureHeader string) (domain.InboundEvent, error)
}

// SignatureVerifier реализует проверку подписи Stripe webhook-ов
type SignatureVerifier struct {
	secret string
	log    *logger.Logger
}

// NewSignatureVerifier создает новый верификатор подписи
func NewSignatureVerifier(secret string, log *logger.Logger) (*SignatureVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is not configured")
	}
	return &SignatureVerifier{secret: secret, log: log}, nil
}

// VerifyEvent проверяет подпись и переводит событие во внутреннее представление
func (v *SignatureVerifier) VerifyEvent(payload []byte, signatureHeader string) (domain.InboundEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, v.secret)
	if err != nil {
		v.log.Warn("Webhook signature verification failed: %v", err)
		return domain.InboundEvent{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	v.log.Debug("Verified webhook event %s of type %s", event.ID, event.Type)

	return domain.InboundEvent{
		ExternalID: event.ID,
		Type:       string(event.Type),
		Created:    time.Unix(event.Created, 0),
		Data:       event.Data.Raw,
		Payload:    payload,
	}, nil
}
