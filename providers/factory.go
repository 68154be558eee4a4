package providers

import (
	"fmt"

	"go.uber.org/zap"
)

// New selects the provider named by configuration.
func New(name, stripeSecretKey, currency string, logger *zap.Logger) (PaymentProvider, error) {
	switch name {
	case "mock":
		return NewMockProvider(logger), nil
	case "stripe":
		if stripeSecretKey == "" {
			return nil, fmt.Errorf("stripe provider requires a secret key")
		}
		return NewStripeProvider(stripeSecretKey, currency, logger), nil
	case "emergency":
		logger.Warn("Emergency payment provider selected: every charge will be approved without a processor")
		return NewEmergencyProvider(currency), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
}
