package service

import (
	"context"
	"errors"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/internal/kafka/producer"
	"github.com/clipfan/reconciliation-service/internal/metrics"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

const (
	// defaultLookback глубина сканирования платежей шлюза
	defaultLookback = 48 * time.Hour
	// matchWindow допуск по времени создания при сопоставлении платежа с заказом
	matchWindow = 30 * time.Minute
	// scanPageLimit максимум платежей за один проход сканера
	scanPageLimit = 500
)

// ScanReport итог прохода сканера осиротевших платежей
type ScanReport struct {
	Scanned   int                      `json:"scanned"`
	Orphans   int                      `json:"orphans"`
	Recovered int                      `json:"recovered"`
	Unmatched []domain.OrphanCandidate `json:"unmatched,omitempty"`
}

// OrphanService находит платежи шлюза без привязанного заказа и
// восстанавливает связь эвристиками
type OrphanService struct {
	gateway   stripe.PaymentGateway
	orderRepo repository.OrderRepository
	producer  producer.NotificationProducer
	metrics   metrics.ReconciliationMetrics
	log       *logger.Logger
	lookback  time.Duration
}

// NewOrphanService создает сканер осиротевших платежей
func NewOrphanService(
	gateway stripe.PaymentGateway,
	orderRepo repository.OrderRepository,
	notifier producer.NotificationProducer,
	m metrics.ReconciliationMetrics,
	lookback time.Duration,
	log *logger.Logger,
) *OrphanService {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &OrphanService{
		gateway:   gateway,
		orderRepo: orderRepo,
		producer:  notifier,
		metrics:   m,
		log:       log,
		lookback:  lookback,
	}
}

// FindOrphans возвращает успешные платежи шлюза, на которые не ссылается
// ни один заказ
func (s *OrphanService) FindOrphans(ctx context.Context) ([]domain.OrphanCandidate, error) {
	orphans, _, err := s.scan(ctx)
	return orphans, err
}

// scan просматривает недавние платежи шлюза и отбирает осиротевшие
func (s *OrphanService) scan(ctx context.Context) ([]domain.OrphanCandidate, int, error) {
	since := time.Now().Add(-s.lookback)
	intents, err := s.gateway.ListRecentPayments(ctx, since, scanPageLimit)
	if err != nil {
		return nil, 0, err
	}

	var orphans []domain.OrphanCandidate
	for _, pi := range intents {
		if pi.Status != stripe.PaymentIntentStatusSucceeded {
			continue
		}
		s.metrics.IncOrphanScanned()

		_, err := s.orderRepo.GetByPaymentReference(ctx, pi.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, 0, err
		}

		orphans = append(orphans, domain.OrphanCandidate{
			PaymentIntentID: pi.ID,
			Amount:          pi.Amount,
			Currency:        pi.Currency,
			CustomerEmail:   pi.CustomerEmail,
			CreatorID:       pi.CreatorID,
			GatewayCreated:  pi.Created,
		})
	}

	return orphans, len(intents), nil
}

// Recover пытается привязать осиротевший платеж к заказу. Эвристики
// применяются по убыванию уверенности, при нескольких совпадениях берется
// самый ранний заказ. Существующая привязка никогда не перетирается.
func (s *OrphanService) Recover(ctx context.Context, candidate domain.OrphanCandidate) (*domain.Order, error) {
	candidates, err := s.orderRepo.FindRecoveryCandidates(
		ctx,
		candidate.Amount,
		candidate.GatewayCreated.Add(-matchWindow),
		candidate.GatewayCreated.Add(matchWindow),
	)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	match := s.pickMatch(candidate, candidates)
	if match == nil {
		return nil, nil
	}

	if err := s.orderRepo.SetPaymentReference(ctx, match.ID, candidate.PaymentIntentID); err != nil {
		if errors.Is(err, domain.ErrPaymentRefAlreadySet) {
			s.log.Warn("Order %s got a payment reference concurrently, skipping recovery of %s", match.ID, candidate.PaymentIntentID)
			return nil, nil
		}
		return nil, err
	}

	s.metrics.IncOrphanRecovered()
	if s.producer != nil {
		if pErr := s.producer.PublishPaymentRecovered(ctx, *match, candidate.PaymentIntentID); pErr != nil {
			s.log.Warn("Failed to publish payment recovery event: %v", pErr)
		}
	}

	s.log.Info("Recovered orphaned payment %s -> order %s (amount %d %s)",
		candidate.PaymentIntentID, match.ID, candidate.Amount, candidate.Currency)
	return match, nil
}

// pickMatch выбирает заказ из кандидатов по убыванию уверенности:
// email фаната, затем криэйтор, затем просто сумма и окно времени.
// Кандидаты отсортированы по времени создания, первый — самый ранний.
func (s *OrphanService) pickMatch(candidate domain.OrphanCandidate, orders []domain.Order) *domain.Order {
	if candidate.CustomerEmail != "" {
		for i := range orders {
			if orders[i].FanEmail == candidate.CustomerEmail {
				return &orders[i]
			}
		}
	}

	if candidate.CreatorID != "" {
		if creatorID, err := uuid.Parse(candidate.CreatorID); err == nil {
			for i := range orders {
				if orders[i].CreatorID == creatorID {
					return &orders[i]
				}
			}
		}
	}

	return &orders[0]
}

// ScanAndRecover выполняет полный проход: находит осиротевшие платежи
// и пытается восстановить каждый
func (s *OrphanService) ScanAndRecover(ctx context.Context) (ScanReport, error) {
	orphans, scanned, err := s.scan(ctx)
	if err != nil {
		return ScanReport{}, err
	}

	report := ScanReport{Scanned: scanned, Orphans: len(orphans)}

	for _, candidate := range orphans {
		match, recErr := s.Recover(ctx, candidate)
		if recErr != nil {
			s.log.Error("Failed to recover orphaned payment %s: %v", candidate.PaymentIntentID, recErr)
			report.Unmatched = append(report.Unmatched, candidate)
			continue
		}
		if match == nil {
			report.Unmatched = append(report.Unmatched, candidate)
			continue
		}
		report.Recovered++
	}

	s.log.Info("Orphan scan done: %d scanned, %d orphans, %d recovered",
		report.Scanned, report.Orphans, report.Recovered)
	return report, nil
}
