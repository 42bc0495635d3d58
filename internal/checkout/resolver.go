package checkout

import (
	"context"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type SubmissionFinder interface {
	FindByPaymentReference(ctx context.Context, reference string) (*domain.CheckoutSubmission, error)
	GetByID(ctx context.Context, id string) (*domain.CheckoutSubmission, error)
}

// Resolver maps a gateway callback to the submission it pays for.
type Resolver struct {
	finder SubmissionFinder
}

func NewResolver(finder SubmissionFinder) *Resolver {
	return &Resolver{finder: finder}
}

// Resolve looks the submission up by gateway reference first and falls back
// to the merchant reference, which is the submission id.
func (r *Resolver) Resolve(ctx context.Context, reference, merchantRef string) (*domain.CheckoutSubmission, error) {
	if reference != "" {
		sub, err := r.finder.FindByPaymentReference(ctx, reference)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, "find submission by reference", err)
		}
		if sub != nil {
			return sub, nil
		}
	}

	if merchantRef != "" {
		sub, err := r.finder.GetByID(ctx, merchantRef)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, "find submission by merchant_ref", err)
		}
		if sub != nil {
			return sub, nil
		}
	}

	return nil, apperr.New(apperr.KindNotFound, "checkout submission not found")
}
