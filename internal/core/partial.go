package core

// PartialStockState is the configuration mapping a stock state is built
// from. Keys outside the recognized set are ignored; missing required keys
// fail at construction.
type PartialStockState map[string]interface{}

// Recognized PartialStockState keys
const (
	KeyBrokerageTradingCostPerShare = "brokerageTradingCostPerShare"
	KeySharesPerInterval            = "sharesPerInterval"
	KeyTargetPosition               = "targetPosition"
	KeySpaceBetweenIntervals        = "spaceBetweenIntervals"
	KeyIntervalProfit               = "intervalProfit"
	KeyNumContracts                 = "numContracts"
	KeyInitialPrice                 = "initialPrice"
	KeyProfitThreshold              = "profitThreshold"
	KeyLossThreshold                = "lossThreshold"
	KeyIsStaticIntervals            = "isStaticIntervals"
)
