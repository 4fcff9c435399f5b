package models

// Signal — результат оценки символа движком за один цикл.
// Score ∈ [-1, 1]; компоненты сохраняем, чтобы было видно,
// из чего сложилась оценка.
type Signal struct {
	InstID string
	Score  float64

	Momentum    float64
	VolumeRatio float64
	Volatility  float64
	RangePos    float64
}

// FeedEvent — производное событие из маркет-фида для подписчиков.
type FeedEvent struct {
	Type   FeedEventType
	Ticker Ticker
	Trade  Trade

	VolumeSpike  bool    // тип Tick: объём 24ч превысил множитель к скользящему среднему
	VolumeFactor float64 // во сколько раз
	BuyFlowRatio float64 // тип Trade: доля buy-объёма в недавнем окне, [0..1]
}

type FeedEventType string

const (
	FeedTick  FeedEventType = "tick"
	FeedTrade FeedEventType = "trade"
)
