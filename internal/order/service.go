package order

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/store"
)

var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrOrderNotFound           = errors.New("order not found")
	ErrPaymentAlreadyProcessed = errors.New("order payment already processed")
	ErrOrderNotCancellable     = errors.New("order cannot be cancelled")
)

type Service struct {
	orders  *store.OrderStore
	carts   *store.CartStore
	gateway payment.Gateway
	logger  *slog.Logger
}

func NewService(orders *store.OrderStore, carts *store.CartStore, gateway payment.Gateway, logger *slog.Logger) *Service {
	return &Service{
		orders:  orders,
		carts:   carts,
		gateway: gateway,
		logger:  logger,
	}
}

// generateOrderNumber returns a human-readable unique order number.
func generateOrderNumber() string {
	suffix := strings.ToUpper(uuid.NewString()[:6])
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}

// CreateOrder freezes the cart into an order and empties the cart. The
// order write happens first; if clearing the cart then fails the order
// still exists and is the source of truth, so the failure is logged rather
// than unwound.
func (s *Service) CreateOrder(userID int64, shippingAddress string) (*model.Order, error) {
	cart, err := s.carts.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		items = append(items, model.OrderItem{
			ProductID:   ci.ProductID,
			ProductName: ci.ProductName,
			Price:       ci.Price,
			Quantity:    ci.Quantity,
		})
	}

	order, err := s.orders.Create(userID, generateOrderNumber(), items, cart.TotalAmount, shippingAddress)
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(userID); err != nil {
		s.logger.Error("clear cart after checkout", "order", order.OrderNumber, "error", err)
	}

	return order, nil
}

// CreatePaymentIntent requests a processor intent for the order total and
// records the intent id so webhook events can find the order. Re-issuing an
// intent while payment is still pending is allowed; once payment has left
// pending the order is settled and a new intent is refused.
func (s *Service) CreatePaymentIntent(orderID int64) (*payment.Intent, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.PaymentStatus != model.PaymentStatusPending {
		return nil, ErrPaymentAlreadyProcessed
	}

	intent, err := s.gateway.CreateIntent(order.TotalAmount)
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetPaymentIntentID(order.ID, intent.ID); err != nil {
		return nil, err
	}
	return intent, nil
}

// ProcessPayment confirms the intent synchronously. This path may race the
// webhook reconciler; both converge on the same terminal state. A failed
// confirmation marks the payment failed but leaves the order status alone
// so it can be retried or cancelled explicitly.
func (s *Service) ProcessPayment(orderID int64, paymentIntentID string) (*model.Order, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	result, err := s.gateway.Confirm(paymentIntentID)
	if err != nil {
		return nil, err
	}

	if result.Succeeded {
		if err := s.orders.UpdatePaymentStatus(order.ID, model.PaymentStatusCompleted); err != nil {
			return nil, err
		}
		if err := s.orders.UpdateStatus(order.ID, model.OrderStatusConfirmed); err != nil {
			return nil, err
		}
		if err := s.orders.SetPaymentIntentID(order.ID, result.TransactionID); err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn("payment confirmation failed", "order", order.OrderNumber, "reason", result.Reason)
		if err := s.orders.UpdatePaymentStatus(order.ID, model.PaymentStatusFailed); err != nil {
			return nil, err
		}
	}

	return s.orders.GetByID(order.ID)
}

func (s *Service) ListOrders(userID int64) ([]model.Order, error) {
	return s.orders.ListByUserID(userID)
}

func (s *Service) GetOrder(orderID, userID int64) (*model.Order, error) {
	order, err := s.orders.GetByIDForUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// CancelOrder cancels an order that has not shipped. A completed payment is
// refunded through the gateway before the order is marked cancelled.
func (s *Service) CancelOrder(orderID, userID int64) (*model.Order, error) {
	order, err := s.orders.GetByIDForUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	switch order.Status {
	case model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusCancelled:
		return nil, ErrOrderNotCancellable
	}

	if order.PaymentStatus == model.PaymentStatusCompleted {
		if order.PaymentIntentID == nil {
			return nil, fmt.Errorf("order %s completed without payment intent id", order.OrderNumber)
		}
		result, err := s.gateway.Refund(*order.PaymentIntentID, order.TotalAmount)
		if err != nil {
			return nil, err
		}
		if !result.Succeeded {
			return nil, fmt.Errorf("refund failed: %s", result.Reason)
		}
		if err := s.orders.UpdatePaymentStatus(order.ID, model.PaymentStatusRefunded); err != nil {
			return nil, err
		}
	}

	if err := s.orders.UpdateStatus(order.ID, model.OrderStatusCancelled); err != nil {
		return nil, err
	}
	return s.orders.GetByID(order.ID)
}

// AddTracking records a shipment tracking number; the store moves the order
// to shipped in the same statement.
func (s *Service) AddTracking(orderID int64, trackingNumber string) (*model.Order, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if err := s.orders.SetTrackingNumber(order.ID, trackingNumber); err != nil {
		return nil, err
	}
	return s.orders.GetByID(order.ID)
}
