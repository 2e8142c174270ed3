package config

// DefaultResilienceConfig mirrors the teacher's Default*Config pattern
// (config/defaults.go): one function per section, concrete sensible
// values, consulted only when neither file nor env sets a scalar.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries:      3,
		BaseDelayS:      0.5,
		MaxDelayS:       30,
		WaitOnRateLimit: true,
		RetryBudgetS:    60,
		MaxWaitTimeoutS: 120,
	}
}

func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		DailySpendLimitUSD: 10,
		WarnRatio:          0.8,
		Strict:             false,
	}
}

func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{}
}
