package ops

import (
	"context"

	"github.com/hpungsan/muse/internal/credit"
)

// Credits reports the account's balance, allowance and reset times.
func Credits(ctx context.Context, account credit.Account) (*credit.Status, error) {
	return account.Status(ctx)
}
