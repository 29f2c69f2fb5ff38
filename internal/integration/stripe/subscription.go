package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// GatewaySubscription представляет подписку шлюза в нейтральном виде
type GatewaySubscription struct {
	ID                 string
	Status             string
	CancelAtPeriodEnd  bool
	Paused             bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAt           time.Time
}

// GetSubscription возвращает подписку по ее ID в шлюзе
func (c *Client) GetSubscription(ctx context.Context, id string) (*GatewaySubscription, error) {
	c.log.Debug("Getting subscription %s", id)

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}

	sub, err := c.client.Subscriptions.Get(id, params)
	if err != nil {
		return nil, c.wrapErr("get_subscription", err)
	}

	return mapGatewaySubscription(sub), nil
}

// PauseSubscription приостанавливает списания по подписке. Подписка остается
// активной на стороне шлюза, но счета не выставляются.
func (c *Client) PauseSubscription(ctx context.Context, id string) (*GatewaySubscription, error) {
	c.log.Debug("Pausing subscription %s", id)

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		},
	}

	sub, err := c.client.Subscriptions.Update(id, params)
	if err != nil {
		return nil, c.wrapErr("pause_subscription", err)
	}

	c.log.Info("Paused subscription %s", sub.ID)
	return mapGatewaySubscription(sub), nil
}

// ResumeSubscription возобновляет списания по приостановленной подписке
func (c *Client) ResumeSubscription(ctx context.Context, id string) (*GatewaySubscription, error) {
	c.log.Debug("Resuming subscription %s", id)

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}
	// Пустое значение снимает pause_collection
	params.AddExtra("pause_collection", "")

	sub, err := c.client.Subscriptions.Update(id, params)
	if err != nil {
		return nil, c.wrapErr("resume_subscription", err)
	}

	c.log.Info("Resumed subscription %s", sub.ID)
	return mapGatewaySubscription(sub), nil
}

// CancelAtPeriodEnd помечает подписку к отмене в конце оплаченного периода.
// Доступ сохраняется до конца периода, новых списаний не будет.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, id string) (*GatewaySubscription, error) {
	c.log.Debug("Scheduling cancellation for subscription %s", id)

	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	sub, err := c.client.Subscriptions.Update(id, params)
	if err != nil {
		return nil, c.wrapErr("cancel_subscription", err)
	}

	c.log.Info("Subscription %s will cancel at period end %s",
		sub.ID, time.Unix(sub.CurrentPeriodEnd, 0).Format(time.RFC3339))
	return mapGatewaySubscription(sub), nil
}

// ReactivateSubscription снимает отложенную отмену, пока период не истек
func (c *Client) ReactivateSubscription(ctx context.Context, id string) (*GatewaySubscription, error) {
	c.log.Debug("Reactivating subscription %s", id)

	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(false),
	}

	sub, err := c.client.Subscriptions.Update(id, params)
	if err != nil {
		return nil, c.wrapErr("reactivate_subscription", err)
	}

	c.log.Info("Reactivated subscription %s", sub.ID)
	return mapGatewaySubscription(sub), nil
}

func mapGatewaySubscription(sub *stripe.Subscription) *GatewaySubscription {
	gs := &GatewaySubscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Paused:             sub.PauseCollection != nil,
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0),
	}
	if sub.CancelAt > 0 {
		gs.CancelAt = time.Unix(sub.CancelAt, 0)
	}
	return gs
}
