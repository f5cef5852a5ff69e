package domain

import "errors"

var (
	ErrRateUnavailable     = errors.New("rate_unavailable")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
	ErrEmptySnapshot       = errors.New("empty_rate_snapshot")
)
