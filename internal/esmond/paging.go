package esmond

import (
	"fmt"
	"strconv"

	"github.com/perfsonar/elmond/internal/model"
)

// Page resolves the limit and offset parameters.
func Page(p model.Params) (limit, offset int, err error) {
	limit = DefaultResultLimit
	if v, ok := p.Get(LimitParam); ok {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: %s parameter must be an integer", model.ErrInvalidRequest, LimitParam)
		}
	}
	if v, ok := p.Get(OffsetParam); ok {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: %s parameter must be an integer", model.ErrInvalidRequest, OffsetParam)
		}
	}
	if limit > MaxResultLimit {
		return 0, 0, fmt.Errorf("%w: %s parameter cannot exceed %d", model.ErrInvalidRequest, LimitParam, MaxResultLimit)
	}
	if limit < 0 || offset < 0 {
		return 0, 0, fmt.Errorf("%w: %s and %s must not be negative", model.ErrInvalidRequest, LimitParam, OffsetParam)
	}
	return limit, offset, nil
}
