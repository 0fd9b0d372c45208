package repository

import (
	"context"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
)

// Account is everything known about a signed-in seller
type Account struct {
	Profile      *models.UserProfile      `json:"profile,omitempty"`
	Business     *models.BusinessProfile  `json:"business,omitempty"`
	Subscription *models.UserSubscription `json:"subscription,omitempty"`
	Plan         *models.SubscriptionPlan `json:"plan,omitempty"`
}

// ProfileRepository reads seller profile and subscription data
type ProfileRepository interface {
	Account(ctx context.Context, userID string) (*Account, error)
}

type profileRepository struct {
	client backend.Client
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(client backend.Client) ProfileRepository {
	return &profileRepository{client: client}
}

func selectOne[T any](ctx context.Context, client backend.Client, table string, filters ...backend.Filter) (*T, error) {
	raw, err := client.Select(ctx, table, backend.Query{Filters: filters, Limit: 1})
	if err != nil {
		return nil, wrap(err, "select", table)
	}
	return models.DecodeOne[T](raw)
}

// Account assembles profile, business and active subscription. Missing
// parts stay nil.
func (r *profileRepository) Account(ctx context.Context, userID string) (*Account, error) {
	var (
		acct Account
		err  error
	)

	if acct.Profile, err = selectOne[models.UserProfile](ctx, r.client, models.TableUserProfiles, backend.Eq("id", userID)); err != nil {
		return nil, err
	}
	if acct.Business, err = selectOne[models.BusinessProfile](ctx, r.client, models.TableBusinessProfiles, backend.Eq("owner_id", userID)); err != nil {
		return nil, err
	}
	if acct.Subscription, err = selectOne[models.UserSubscription](ctx, r.client, models.TableUserSubscriptions,
		backend.Eq("user_id", userID), backend.Eq("status", "active")); err != nil {
		return nil, err
	}
	if acct.Subscription != nil {
		if acct.Plan, err = selectOne[models.SubscriptionPlan](ctx, r.client, models.TableSubscriptionPlans, backend.Eq("id", acct.Subscription.PlanID)); err != nil {
			return nil, err
		}
	}
	return &acct, nil
}
