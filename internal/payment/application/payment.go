// Package application 实现支付服务的应用层：幂等建单与终态迁移。
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderfulfillment/internal/payment/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/utils"
)

// PaymentService 支付单管理
type PaymentService struct {
	repo  domain.PaymentRepository
	idGen *utils.SnowflakeID
}

// NewPaymentService 创建支付服务
func NewPaymentService(repo domain.PaymentRepository, idGen *utils.SnowflakeID) *PaymentService {
	return &PaymentService{repo: repo, idGen: idGen}
}

// CreateOrGetPendingByOrder 幂等建单：先按幂等键查、再按订单号查、都没有才插入。
// 并发重复插入撞唯一键时重查一次返回已有单，绝不产生第二张支付单。
func (s *PaymentService) CreateOrGetPendingByOrder(ctx context.Context, orderID, userID string, amount decimal.Decimal, idempotencyKey string) (*domain.Payment, error) {
	if orderID == "" || idempotencyKey == "" {
		return nil, fmt.Errorf("invalid payment request: order_id=%q idempotency_key=%q", orderID, idempotencyKey)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("invalid payment amount: %s", amount.String())
	}

	if payment, err := s.repo.FindByKey(ctx, idempotencyKey); err == nil {
		return payment, nil
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}

	if payment, err := s.repo.FindByOrder(ctx, orderID); err == nil {
		return payment, nil
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:             fmt.Sprintf("PAY%d", s.idGen.Generate()),
		OrderID:        orderID,
		UserID:         userID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.repo.Insert(ctx, payment)
	if err == nil {
		logger.Info(ctx, "Payment created",
			"payment_id", payment.ID, "order_id", orderID, "amount", amount.String())
		return payment, nil
	}
	if !errors.Is(err, domain.ErrDuplicateKey) {
		return nil, fmt.Errorf("failed to insert payment for order %s: %w", orderID, err)
	}

	// 撞唯一键说明并发方赢了插入竞赛，把它的单取回来
	if payment, err := s.repo.FindByKey(ctx, idempotencyKey); err == nil {
		return payment, nil
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}
	return s.repo.FindByOrder(ctx, orderID)
}

// MarkSucceeded 支付成功迁移。已处于终态时为 no-op；
// 实际迁移时在同一事务内写且只写一条 payment-succeeded 发件箱事件。
func (s *PaymentService) MarkSucceeded(ctx context.Context, paymentID string) error {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return err
	}

	event := domain.PendingEvent{
		EventType: domain.TopicPaymentSucceeded,
		Payload: &domain.PaymentSucceededEvent{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			UserID:    payment.UserID,
			Amount:    payment.Amount.String(),
		},
	}

	moved, err := s.repo.Transition(ctx, paymentID, domain.StatusPending, domain.StatusSucceeded, "", event)
	if err != nil {
		return fmt.Errorf("failed to mark payment %s succeeded: %w", paymentID, err)
	}
	if !moved {
		s.logSkippedTransition(ctx, paymentID, domain.StatusSucceeded)
		return nil
	}

	logger.Info(ctx, "Payment succeeded", "payment_id", paymentID, "order_id", payment.OrderID)
	return nil
}

// MarkFailed 支付失败迁移，语义与 MarkSucceeded 对称
func (s *PaymentService) MarkFailed(ctx context.Context, paymentID, reason string) error {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return err
	}

	event := domain.PendingEvent{
		EventType: domain.TopicPaymentFailed,
		Payload: &domain.PaymentFailedEvent{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			UserID:    payment.UserID,
			Amount:    payment.Amount.String(),
			Reason:    reason,
		},
	}

	moved, err := s.repo.Transition(ctx, paymentID, domain.StatusPending, domain.StatusFailed, reason, event)
	if err != nil {
		return fmt.Errorf("failed to mark payment %s failed: %w", paymentID, err)
	}
	if !moved {
		s.logSkippedTransition(ctx, paymentID, domain.StatusFailed)
		return nil
	}

	logger.Info(ctx, "Payment failed", "payment_id", paymentID, "order_id", payment.OrderID, "reason", reason)
	return nil
}

// GetPayment 按支付单号查询
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.repo.FindByID(ctx, paymentID)
}

// GetPaymentByOrder 按订单号查询
func (s *PaymentService) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.repo.FindByOrder(ctx, orderID)
}

func (s *PaymentService) logSkippedTransition(ctx context.Context, paymentID string, target domain.PaymentStatus) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return
	}
	if payment.Status != target {
		logger.Warn(ctx, "Payment transition skipped, already in conflicting terminal state",
			"payment_id", paymentID, "status", payment.Status, "requested", target)
	}
}
