package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cutiecart/internal/storage"
)

// HandoffKey holds the last order id for the confirmation view.
const HandoffKey = "cutiecart.lastOrderId"

// FallbackOrderID is shown when the confirmation view finds no order id.
const FallbackOrderID = "CUTIE-LOVE"

// DefaultHandoffTTL bounds how long an unread order id survives.
const DefaultHandoffTTL = 10 * time.Minute

// Confirmation reads and consumes the handed-off order id. A missing, expired,
// already-read or unreadable slot yields FallbackOrderID.
func Confirmation(ctx context.Context, st storage.Storage, logger *slog.Logger) string {
	raw, err := st.Take(ctx, HandoffKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && logger != nil {
			logger.WarnContext(ctx, "order handoff read failed", slog.String("error", err.Error()))
		}
		return FallbackOrderID
	}
	if len(raw) == 0 {
		return FallbackOrderID
	}
	return string(raw)
}
