package app

import "printshop-backend/internal/core"

// UserSession is the authenticated identity handed to the web adapter for
// token issuance.
type UserSession struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// RollListResult groups the rolls of one material type with its policy.
type RollListResult struct {
	MaterialType core.MaterialType `json:"material_type"`
	Rolls        []core.Roll       `json:"rolls"`
}

// PaymentResult returns the created payment together with the recomputed
// owning order, so the UI can refresh both in one round trip.
type PaymentResult struct {
	Payment *core.PartialPayment `json:"payment"`
	Order   *core.Order          `json:"order"`
}
