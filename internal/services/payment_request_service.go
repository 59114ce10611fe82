package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// PaymentRequest is a single-use "pay me" code held in Redis.
type PaymentRequest struct {
	Code      string    `json:"code"`
	PayeeID   string    `json:"payee_id"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// QRImage is a base64 PNG of Code, only set on creation.
	QRImage string `json:"qr_image,omitempty"`
}

type PaymentRequestService struct {
	redis    *redis.Client
	economy  *EconomyService
	ttl      time.Duration
	renderQR func(code string) (string, error)
	log      *zap.Logger
}

func NewPaymentRequestService(rdb *redis.Client, economy *EconomyService, ttl time.Duration, log *zap.Logger) *PaymentRequestService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentRequestService{
		redis:    rdb,
		economy:  economy,
		ttl:      ttl,
		renderQR: qrPNG,
		log:      log.Named("payment_requests"),
	}
}

func paymentRequestKey(code string) string {
	return fmt.Sprintf("payreq:%s", code)
}

// Create stores a new request for payeeID and renders its QR image.
func (s *PaymentRequestService) Create(ctx context.Context, payeeID string, amount int64, note string) (*PaymentRequest, error) {
	if s.redis == nil {
		return nil, ErrUnavailable
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	req := &PaymentRequest{
		Code:      s.generateCode(),
		PayeeID:   payeeID,
		Amount:    amount,
		Note:      note,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	// the code only goes live once the payee can be handed its image
	image, err := s.renderQR(req.Code)
	if err != nil {
		return nil, fmt.Errorf("render payment request QR: %w", err)
	}
	if err := s.redis.Set(ctx, paymentRequestKey(req.Code), string(data), s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store payment request: %w", err)
	}
	req.QRImage = image

	s.log.Info("payment request created",
		zap.String("payee_id", payeeID),
		zap.Int64("amount", amount),
		zap.Time("expires_at", req.ExpiresAt),
	)
	return req, nil
}

// Get returns a live request without consuming it.
func (s *PaymentRequestService) Get(ctx context.Context, code string) (*PaymentRequest, error) {
	if s.redis == nil {
		return nil, ErrUnavailable
	}
	data, err := s.redis.Get(ctx, paymentRequestKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	var req PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Pay consumes the code and transfers its amount from payerID to the payee.
// Only one concurrent payer can consume a code. When the transfer is rejected the
// code is restored for the rest of its lifetime.
func (s *PaymentRequestService) Pay(ctx context.Context, payerID, code string) (*Result, *PaymentRequest, error) {
	req, err := s.Get(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if req.PayeeID == payerID {
		return nil, nil, ErrInvalidTarget
	}

	key := paymentRequestKey(code)
	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return nil, nil, err
	}
	if deleted == 0 {
		return nil, nil, ErrRequestNotFound
	}

	result, err := s.economy.Transfer(ctx, payerID, req.PayeeID, req.Amount)
	if err != nil {
		if remaining := time.Until(req.ExpiresAt); remaining > 0 {
			data, _ := json.Marshal(req)
			if setErr := s.redis.Set(ctx, key, string(data), remaining).Err(); setErr != nil {
				s.log.Warn("failed to restore payment request", zap.String("payee_id", req.PayeeID), zap.Error(setErr))
			}
		}
		return nil, nil, err
	}

	s.log.Info("payment request paid",
		zap.String("payer_id", payerID),
		zap.String("payee_id", req.PayeeID),
		zap.Int64("amount", req.Amount),
		zap.String("transaction_id", result.TransactionID),
	)
	return result, req, nil
}

// Cancel removes a request. Only its payee may cancel it.
func (s *PaymentRequestService) Cancel(ctx context.Context, payeeID, code string) error {
	req, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if req.PayeeID != payeeID {
		return ErrForbidden
	}
	return s.redis.Del(ctx, paymentRequestKey(code)).Err()
}

// qrPNG renders code as a base64 PNG QR image.
func qrPNG(code string) (string, error) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *PaymentRequestService) generateCode() string {
	b := make([]byte, 12)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
