package bizapi

// apiResponse — стандартная обертка ответов бекенда.
type apiResponse[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
}

// SalesRow — строка отчета продаж по точке за день.
type SalesRow struct {
	Date       string  `json:"date"` // YYYY-MM-DD
	MachineID  string  `json:"machine_id"`
	Location   string  `json:"location"`
	Units      int     `json:"units"`
	Revenue    float64 `json:"revenue"`
	Currency   string  `json:"currency"`
	TopProduct string  `json:"top_product"`
}

// SalesReport — агрегированный отчет продаж за период.
type SalesReport struct {
	DateFrom     string     `json:"date_from"`
	DateTo       string     `json:"date_to"`
	TotalUnits   int        `json:"total_units"`
	TotalRevenue float64    `json:"total_revenue"`
	Currency     string     `json:"currency"`
	Rows         []SalesRow `json:"rows"`
}

// Customer — карточка клиента.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Status  string `json:"status"` // lead, active, churned
}

// Machine — вендинговая точка.
type Machine struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Status   string `json:"status"` // online, offline, maintenance, retired
}

// QuoteRequest — исходящее коммерческое предложение.
type QuoteRequest struct {
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Comment    string  `json:"comment,omitempty"`
}

// QuoteResult — подтверждение отправки предложения.
type QuoteResult struct {
	QuoteID string `json:"quote_id"`
	SentTo  string `json:"sent_to"`
	Status  string `json:"status"`
}
