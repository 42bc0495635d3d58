package domain

import "time"

type OrderPaidEvent struct {
	OrderID          string    `json:"order_id"`
	SubmissionID     string    `json:"submission_id"`
	PaymentReference string    `json:"payment_reference"`
	TotalAmount      int64     `json:"total_amount"`
	Timestamp        time.Time `json:"timestamp"`
}
