package enum

// ── State machines (CHECK constrained in DB) ──

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusHeld      SaleStatus = "held"
	SaleStatusCancelled SaleStatus = "cancelled"
)

// Valid reports whether s is one of the known sale statuses.
func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusCompleted, SaleStatusHeld, SaleStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod is the tender used to settle a sale.
type PaymentMethod string

const (
	PaymentMethodCash      PaymentMethod = "cash"
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodQR        PaymentMethod = "qr"
	PaymentMethodTransfer  PaymentMethod = "transfer"
	PaymentMethodScan      PaymentMethod = "scan"
	PaymentMethodPromptPay PaymentMethod = "promptpay"
)

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodQR,
		PaymentMethodTransfer, PaymentMethodScan, PaymentMethodPromptPay:
		return true
	}
	return false
}

// StockTxType is the direction of a stock ledger entry.
type StockTxType string

const (
	StockTxIn  StockTxType = "IN"
	StockTxOut StockTxType = "OUT"
)

// ── Borderline (CHECK constrained in DB) ──

const (
	StaffRoleAdmin = "admin"
	StaffRoleStaff = "staff"
)

// ── Staff-log action labels (no DB constraint) ──

const (
	ActionCreateSale  = "CREATE_SALE"
	ActionUpdateSale  = "UPDATE_SALE"
	ActionDeleteSale  = "DELETE_SALE"
	ActionAdjustStock = "ADJUST_STOCK"
)
