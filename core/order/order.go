// Package order stores the records a completed checkout leaves behind: the
// order, its line items and the enrollments granting course access.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalt3/lms-client/data"
	"github.com/shopspring/decimal"
)

const (
	orderTable      = "orders"
	itemTable       = "order_items"
	enrollmentTable = "enrollments"
)

type Status string

const (
	Paid   Status = "paid"
	Failed Status = "failed"
)

const EnrollmentActive = "active"

var ErrNotFound = errors.New("order not found")

type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	TransactionID  string          `json:"transactionId"`
	PaymentMethod  string          `json:"paymentMethod"`
	CouponCode     string          `json:"couponCode,omitempty"`
	SubtotalAmount decimal.Decimal `json:"subtotalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Status         Status          `json:"status"`
	CustomerName   string          `json:"customerName"`
	CustomerEmail  string          `json:"customerEmail"`
	PaidAt         time.Time       `json:"paidAt"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Item struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"orderId"`
	CourseID string          `json:"courseId"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type Enrollment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	CourseID   string    `json:"courseId"`
	OrderID    string    `json:"orderId"`
	Status     string    `json:"status"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

func money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func fromRow(r data.Row) Order {
	return Order{
		ID:             r.String("id"),
		UserID:         r.String("user_id"),
		TransactionID:  r.String("transaction_id"),
		PaymentMethod:  r.String("payment_method"),
		CouponCode:     r.String("coupon_code"),
		SubtotalAmount: r.Decimal("subtotal_amount"),
		DiscountAmount: r.Decimal("discount_amount"),
		TaxAmount:      r.Decimal("tax_amount"),
		TotalAmount:    r.Decimal("total_amount"),
		Status:         Status(r.String("status")),
		CustomerName:   r.String("customer_name"),
		CustomerEmail:  r.String("customer_email"),
		PaidAt:         r.Time("paid_at"),
		CreatedAt:      r.Time("created_at"),
	}
}

// Create stores ord with every amount rounded to cents and returns the
// stored version, including its id.
func Create(ctx context.Context, db data.Client, ord Order) (Order, error) {
	row := data.Row{
		"user_id":         ord.UserID,
		"transaction_id":  ord.TransactionID,
		"payment_method":  ord.PaymentMethod,
		"subtotal_amount": money(ord.SubtotalAmount),
		"discount_amount": money(ord.DiscountAmount),
		"tax_amount":      money(ord.TaxAmount),
		"total_amount":    money(ord.TotalAmount),
		"status":          string(ord.Status),
		"customer_name":   ord.CustomerName,
		"customer_email":  ord.CustomerEmail,
		"paid_at":         ord.PaidAt.UTC(),
	}
	if ord.CouponCode != "" {
		row["coupon_code"] = ord.CouponCode
	}

	r, err := data.InsertOne(ctx, db, orderTable, row)
	if err != nil {
		return Order{}, fmt.Errorf("inserting order for user[%s]: %w", ord.UserID, err)
	}
	return fromRow(r), nil
}

func CreateItems(ctx context.Context, db data.Client, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([]data.Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, data.Row{
			"order_id":  it.OrderID,
			"course_id": it.CourseID,
			"price":     money(it.Price),
			"quantity":  1,
		})
	}

	if _, err := db.Insert(ctx, itemTable, rows...); err != nil {
		return fmt.Errorf("inserting %d order items: %w", len(items), err)
	}
	return nil
}

func CreateEnrollments(ctx context.Context, db data.Client, ens []Enrollment) error {
	if len(ens) == 0 {
		return nil
	}

	rows := make([]data.Row, 0, len(ens))
	for _, e := range ens {
		status := e.Status
		if status == "" {
			status = EnrollmentActive
		}
		rows = append(rows, data.Row{
			"user_id":     e.UserID,
			"course_id":   e.CourseID,
			"order_id":    e.OrderID,
			"status":      status,
			"enrolled_at": e.EnrolledAt.UTC(),
		})
	}

	if _, err := db.Insert(ctx, enrollmentTable, rows...); err != nil {
		return fmt.Errorf("inserting %d enrollments: %w", len(ens), err)
	}
	return nil
}

// MarkFailed flags an order whose line items or enrollments could not be
// stored.
func MarkFailed(ctx context.Context, db data.Client, id string) error {
	if _, err := db.Update(ctx, orderTable, data.Row{"status": string(Failed)}, data.Eq("id", id)); err != nil {
		return fmt.Errorf("marking order[%s] failed: %w", id, err)
	}
	return nil
}

func Fetch(ctx context.Context, db data.Client, id string) (Order, error) {
	r, ok, err := data.First(ctx, db, data.Query{
		Table:   orderTable,
		Filters: []data.Filter{data.Eq("id", id)},
	})
	if err != nil {
		return Order{}, fmt.Errorf("fetching order[%s]: %w", id, err)
	}
	if !ok {
		return Order{}, fmt.Errorf("order[%s]: %w", id, ErrNotFound)
	}
	return fromRow(r), nil
}

// ListByUser returns the orders of userID, newest first.
func ListByUser(ctx context.Context, db data.Client, userID string) ([]Order, error) {
	res, err := db.Select(ctx, data.Query{
		Table:   orderTable,
		Filters: []data.Filter{data.Eq("user_id", userID)},
		Order:   &data.Order{Column: "created_at", Desc: true},
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders of user[%s]: %w", userID, err)
	}

	ords := make([]Order, 0, len(res.Rows))
	for _, r := range res.Rows {
		ords = append(ords, fromRow(r))
	}
	return ords, nil
}

// EnrolledCourses returns the ids of the courses userID holds an active
// enrollment for.
func EnrolledCourses(ctx context.Context, db data.Client, userID string) ([]string, error) {
	res, err := db.Select(ctx, data.Query{
		Table:   enrollmentTable,
		Columns: []string{"course_id"},
		Filters: []data.Filter{data.Eq("user_id", userID), data.Eq("status", EnrollmentActive)},
	})
	if err != nil {
		return nil, fmt.Errorf("listing enrollments of user[%s]: %w", userID, err)
	}

	ids := make([]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		ids = append(ids, r.String("course_id"))
	}
	return ids, nil
}
