package domain

import "errors"

var (
	ErrPlanNotFound  = errors.New("plan_not_found")
	ErrInvalidPrice  = errors.New("invalid_price")
	ErrInvalidOrder  = errors.New("invalid_plan_order")
	ErrInvalidPlan   = errors.New("invalid_plan")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrPlanCodeTaken = errors.New("plan_code_taken")
)
