package esmond

import (
	"fmt"
	"strconv"
	"time"

	"github.com/perfsonar/elmond/internal/model"
)

// TimeRange is a resolved time filter in epoch seconds. End is nil when the
// range is open ended.
type TimeRange struct {
	Begin int64
	End   *int64
}

// now is replaced in tests.
var now = time.Now

// ParseTimeRange resolves the time, time-start, time-end and time-range
// parameters. It returns nil when none of them is set.
func ParseTimeRange(p model.Params) (*TimeRange, error) {
	get := func(key string) (int64, bool, error) {
		v, ok := p.Get(key)
		if !ok {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s parameter must be an integer", model.ErrInvalidRequest, key)
		}
		return n, true, nil
	}

	exact, hasTime, err := get(TimeParam)
	if err != nil {
		return nil, err
	}
	start, hasStart, err := get(TimeStartParam)
	if err != nil {
		return nil, err
	}
	end, hasEnd, err := get(TimeEndParam)
	if err != nil {
		return nil, err
	}
	span, hasRange, err := get(TimeRangeParam)
	if err != nil {
		return nil, err
	}

	var tr TimeRange
	switch {
	case hasTime:
		tr = TimeRange{Begin: exact, End: &exact}
	case hasStart && hasEnd:
		tr = TimeRange{Begin: start, End: &end}
	case hasStart && hasRange:
		e := start + span
		tr = TimeRange{Begin: start, End: &e}
	case hasEnd && hasRange:
		tr = TimeRange{Begin: end - span, End: &end}
	case hasStart:
		tr = TimeRange{Begin: start}
	case hasEnd:
		tr = TimeRange{Begin: 0, End: &end}
	case hasRange:
		e := now().Unix()
		tr = TimeRange{Begin: e - span, End: &e}
	default:
		return nil, nil
	}

	if tr.End != nil && tr.Begin > *tr.End {
		return nil, fmt.Errorf("%w: requested start time must be less than end time", model.ErrInvalidRequest)
	}
	return &tr, nil
}

// Predicate builds a range filter on field for the resolved range.
func (tr *TimeRange) Predicate(field string) model.Predicate {
	bounds := map[string]interface{}{
		"gte": formatTime(tr.Begin),
	}
	if tr.End != nil {
		bounds["lte"] = formatTime(*tr.End)
	}
	return model.Predicate{
		"range": map[string]interface{}{
			field: bounds,
		},
	}
}

func formatTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
