package app

// Monetary amounts and lengths cross this boundary as decimal strings with two
// fractional digits; the implementation parses them with shopspring/decimal.

// InstallRollRequest installs or resets one roll.
type InstallRollRequest struct {
	MaterialType string
	RollNumber   int
	TotalLength  string
	Actor        string
	Notes        string
}

// ConsumeRollRequest deducts length from a specific roll outside the order flow.
type ConsumeRollRequest struct {
	MaterialType string
	RollNumber   int
	Length       string
	Actor        string
	Notes        string
}

// OrderItemRequest is one line of a new or edited order. Empty component
// fields mean "not used".
type OrderItemRequest struct {
	Description   string
	PrintQty      string
	PrintUnitCost string
	PressQty      string
	PressUnitCost string
	BadgeQty      string
	BadgeUnitCost string
}

// MaterialRequirementRequest is the aggregate length an order needs from one
// material type. RollNumber is required for manual-selection materials.
type MaterialRequirementRequest struct {
	MaterialType string
	Length       string
	RollNumber   *int
}

// CreateOrderRequest creates a work order.
type CreateOrderRequest struct {
	ClientName    string
	ClientPhone   string
	WorkType      string
	Items         []OrderItemRequest
	Materials     []MaterialRequirementRequest
	Paid          bool
	PaymentMethod string
	Notes         string
	CreatedBy     string
}

// UpdateOrderRequest edits an order. Nil Items keeps the current items;
// nil Notes keeps the current notes.
type UpdateOrderRequest struct {
	ClientName  string
	ClientPhone string
	Notes       *string
	Items       []OrderItemRequest
}

// RecordPaymentRequest registers one partial payment.
type RecordPaymentRequest struct {
	OrderID          int
	Amount           string
	Method           string
	Bank             string
	ReceiptReference string
	Notes            string
	RecordedBy       string
}
