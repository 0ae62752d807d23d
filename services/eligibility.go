package services

import (
	"context"

	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/models"
)

// SendGuard is one named precondition on a sender.
type SendGuard struct {
	Name  string
	Check func(ctx context.Context, sender *models.User) error
}

// EligibilityChain evaluates guards in a fixed order and returns the first failure.
// The order is the precedence between overlapping restrictions: account state first,
// then the role-specific payment gate.
type EligibilityChain struct {
	guards []SendGuard
}

func NewEligibilityChain(settings *SettingsService) *EligibilityChain {
	return &EligibilityChain{guards: []SendGuard{
		{Name: "not-banned", Check: notBanned},
		{Name: "not-muted", Check: notMuted},
		{Name: "payment-gate", Check: paymentGate(settings)},
	}}
}

func (c *EligibilityChain) Check(ctx context.Context, sender *models.User) error {
	for _, g := range c.guards {
		if err := g.Check(ctx, sender); err != nil {
			return err
		}
	}
	return nil
}

func (c *EligibilityChain) Names() []string {
	names := make([]string, len(c.guards))
	for i, g := range c.guards {
		names[i] = g.Name
	}
	return names
}

func notBanned(_ context.Context, u *models.User) error {
	if u.IsBanned {
		return apperrors.Forbidden("account suspended")
	}
	return nil
}

func notMuted(_ context.Context, u *models.User) error {
	if u.IsMuted {
		return apperrors.Forbidden("messaging suspended")
	}
	return nil
}

// Steppers pay to message unless premium, admin, or free messaging is switched on.
func paymentGate(settings *SettingsService) func(context.Context, *models.User) error {
	return func(ctx context.Context, u *models.User) error {
		if u.Role != models.RoleStepper || u.IsPremium || u.IsAdmin {
			return nil
		}
		free, err := settings.FreeMessaging(ctx)
		if err != nil {
			return err
		}
		if free {
			return nil
		}
		return apperrors.PaymentRequired("upgrade to premium to send messages")
	}
}
