package application

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/platform/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

// Cursors are opaque to clients. Payment cursors carry the (createdAt, id) of
// the last row; user cursors carry an offset.

func encodePaymentCursor(p *payment.Payment) string {
	raw := p.CreatedAt().UTC().Format(time.RFC3339Nano) + "|" + p.ID().String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodePaymentCursor(s string) (*payment.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.NewValidationError("malformed cursor")
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, domain.NewValidationError("malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, domain.NewValidationError("malformed cursor")
	}
	paymentID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.NewValidationError("malformed cursor")
	}
	return &payment.Cursor{CreatedAt: createdAt, ID: paymentID}, nil
}

func encodeOffsetCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

func decodeOffsetCursor(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, domain.NewValidationError("malformed cursor")
	}
	n, ok := strings.CutPrefix(string(raw), "o:")
	if !ok {
		return 0, domain.NewValidationError("malformed cursor")
	}
	offset, err := strconv.Atoi(n)
	if err != nil || offset < 0 {
		return 0, domain.NewValidationError("malformed cursor")
	}
	return offset, nil
}
