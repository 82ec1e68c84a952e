package biz

import (
	"context"
	"time"

	"RelayGuard/internal/conf"
	"RelayGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CredentialUsecase serves a shared upstream credential from the atomic
// store. Across all instances at most one worker refreshes at a time: the
// refresher holds a TTL lease, everyone else waits briefly and re-reads the
// cache. The lease TTL bounds how long a crashed refresher can block the
// fleet.
type CredentialUsecase struct {
	repo   CredentialRepo
	issuer TokenIssuer

	expiryMargin time.Duration
	leaseTTL     time.Duration
	leaseWaitMax time.Duration

	logger *log.Helper
}

// NewCredentialUsecase creates the shared credential cache.
func NewCredentialUsecase(repo CredentialRepo, issuer TokenIssuer, c *conf.Bootstrap, logger log.Logger) *CredentialUsecase {
	guard := c.Guard.Credential
	return &CredentialUsecase{
		repo:         repo,
		issuer:       issuer,
		expiryMargin: guard.ExpiryMargin.AsDuration(),
		leaseTTL:     guard.LeaseTtl.AsDuration(),
		leaseWaitMax: guard.LeaseWaitMax.AsDuration(),
		logger:       log.NewHelper(logger),
	}
}

// GetCredential returns a token valid for at least the duration of one
// request. The cache hit path costs one store read; on a miss the caller
// either wins the refresh lease and calls the authority, or polls the cache
// until the winner publishes. The wait budget is bounded; exhausting it
// returns ErrLockTimeout rather than piling callers onto the authority.
func (uc *CredentialUsecase) GetCredential(ctx context.Context) (*model.CredentialEntry, error) {
	entry, err := uc.repo.GetToken(ctx)
	if err != nil {
		return nil, ErrStoreUnavailable(err)
	}
	now := time.Now()
	if entry.Valid(now) {
		return entry, nil
	}

	deadline := now.Add(uc.leaseWaitMax)
	backoff := 50 * time.Millisecond
	for {
		won, err := uc.repo.AcquireLease(ctx, uc.leaseTTL)
		if err != nil {
			return nil, ErrStoreUnavailable(err)
		}
		if won {
			// Re-check under the lease: a previous holder may have published
			// between our cache read and the acquisition.
			entry, err := uc.repo.GetToken(ctx)
			if err != nil {
				uc.releaseLease(ctx)
				return nil, ErrStoreUnavailable(err)
			}
			if entry.Valid(time.Now()) {
				uc.releaseLease(ctx)
				return entry, nil
			}
			return uc.refresh(ctx)
		}

		// Someone else is refreshing; wait for them to publish.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > time.Second {
			backoff = time.Second
		}

		entry, err := uc.repo.GetToken(ctx)
		if err != nil {
			return nil, ErrStoreUnavailable(err)
		}
		if entry.Valid(time.Now()) {
			return entry, nil
		}
		if time.Now().After(deadline) {
			uc.logger.Warnw("credential lease wait budget exhausted",
				"waited", uc.leaseWaitMax)
			return nil, ErrLockTimeout(uc.leaseWaitMax)
		}
	}
}

// Invalidate drops the cached token so the next caller refreshes. Used when
// the upstream rejects a token the cache still considers valid.
func (uc *CredentialUsecase) Invalidate(ctx context.Context) error {
	return uc.repo.SetToken(ctx, &model.CredentialEntry{}, time.Second)
}

func (uc *CredentialUsecase) releaseLease(ctx context.Context) {
	if err := uc.repo.ReleaseLease(ctx); err != nil {
		// TTL expiry cleans this up; the cost is blocked refreshes for
		// the remainder of the lease.
		uc.logger.Warnw("credential lease release failed", "error", err)
	}
}

// refresh calls the authority while holding the lease, publishes the new
// entry, then releases. The published TTL is margin-adjusted so no reader
// ever serves a token that expires mid-request.
func (uc *CredentialUsecase) refresh(ctx context.Context) (*model.CredentialEntry, error) {
	defer uc.releaseLease(ctx)

	token, validity, placeholder, err := uc.issuer.Issue(ctx)
	if err != nil {
		return nil, err
	}

	usable := validity - uc.expiryMargin
	if usable <= 0 {
		// Authority handed out a token shorter than our safety margin; serve
		// it for half its real lifetime instead of caching nothing.
		usable = validity / 2
	}
	entry := &model.CredentialEntry{
		Token:       token,
		ExpiresAt:   time.Now().Add(usable),
		Placeholder: placeholder,
	}
	if err := uc.repo.SetToken(ctx, entry, usable); err != nil {
		// The token itself is good; serve it to this caller even though the
		// fleet will refresh again.
		uc.logger.Warnw("failed to publish refreshed credential", "error", err)
	} else {
		uc.logger.Infow("credential refreshed",
			"valid_for", usable,
			"placeholder", placeholder)
	}
	return entry, nil
}
