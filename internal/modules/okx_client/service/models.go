package service

// Instrument — сырой ответ /public/instruments (SPOT).
type Instrument struct {
	InstID string `json:"instId"`
	TickSz string `json:"tickSz"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	State  string `json:"state"`
}

type tickerRow struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Vol24h string `json:"vol24h"`
	Ts     string `json:"ts"`
}

type balanceDetail struct {
	Ccy      string `json:"ccy"`
	AvailBal string `json:"availBal"`
	CashBal  string `json:"cashBal"`
}

type orderAck struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}
