package pipeline

import (
	"context"
	"errors"

	"github.com/blndgs/peerreview"
)

var errNotSponsored = errors.New("missing from sponsorship response")

// Assemble merges a sponsorship into the draft it was requested for. The
// call, verification and pre-verification gas fields and paymasterAndData
// are taken from the sponsor; every other field is kept. The merged draft is
// canonicalized again, so the result holds no deferred values and every
// number is a hex quantity. The input draft is not modified.
func Assemble(ctx context.Context, draft peerreview.Draft, sponsorship *peerreview.SponsorshipResponse) (peerreview.Draft, error) {
	if sponsorship == nil {
		return nil, &peerreview.EncodingError{Path: "sponsorship", Err: errNotSponsored}
	}

	sponsored := []struct {
		field string
		value any
	}{
		{peerreview.FieldCallGasLimit, sponsorship.CallGasLimit},
		{peerreview.FieldPreVerificationGas, sponsorship.PreVerificationGas},
		{peerreview.FieldVerificationGasLimit, sponsorship.VerificationGasLimit},
		{peerreview.FieldPaymasterAndData, sponsorship.PaymasterAndData},
	}

	merged := draft.Clone()
	for _, s := range sponsored {
		if s.value == nil {
			return nil, &peerreview.EncodingError{Path: s.field, Err: errNotSponsored}
		}
		merged[s.field] = s.value
	}

	return peerreview.Canonicalize(ctx, merged)
}
