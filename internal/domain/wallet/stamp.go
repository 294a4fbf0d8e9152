package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TxStamp pins transaction identity and time for one monetary write. The
// replicated ledger derives a stamp from each command envelope before
// applying it, so every node replaying the same log mints identical
// transaction rows instead of fresh UUIDs and local wall-clock times.
type TxStamp struct {
	BaseID uuid.UUID
	At     time.Time
}

// Leg derives the stable transaction ID for one leg of the write.
func (st TxStamp) Leg(name string) uuid.UUID {
	return uuid.NewSHA1(st.BaseID, []byte(name))
}

type txStampKey struct{}

// WithTxStamp attaches a replay stamp to ctx.
func WithTxStamp(ctx context.Context, st TxStamp) context.Context {
	return context.WithValue(ctx, txStampKey{}, st)
}

// TxStampFromContext returns the stamp attached to ctx, if any.
func TxStampFromContext(ctx context.Context) (TxStamp, bool) {
	st, ok := ctx.Value(txStampKey{}).(TxStamp)
	return st, ok
}
