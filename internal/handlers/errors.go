package handlers

import (
	"errors"

	"github.com/charlesng35/cveintel/internal/intel"
	appErrors "github.com/charlesng35/cveintel/pkg/errors"
)

// translateError maps domain failures onto client-facing application errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var persistErr *intel.PersistenceError
	switch {
	case errors.Is(err, intel.ErrInvalidIdentifier):
		return appErrors.NewBadRequest("identifier must look like CVE-YYYY-NNNN").WithInternal(err)
	case errors.Is(err, intel.ErrInvalidTenant):
		return appErrors.NewBadRequest(err.Error()).WithInternal(err)
	case errors.Is(err, intel.ErrEmptyKeyword):
		return appErrors.NewBadRequest("keyword is required").WithInternal(err)
	case errors.Is(err, intel.ErrAnalysisUnavailable):
		return appErrors.ErrUnavailable.WithMessage("analysis generation is not configured").WithInternal(err)
	case intel.IsNotFound(err):
		var nf *intel.NotFoundError
		errors.As(err, &nf)
		return appErrors.ErrNotFound.WithMessage(nf.Error()).WithInternal(err)
	case errors.As(err, &persistErr):
		return appErrors.ErrCache.WithInternal(err)
	case intel.IsUpstream(err):
		return appErrors.ErrUpstream.WithInternal(err)
	}
	return appErrors.FromError(err)
}
