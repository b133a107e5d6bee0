package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/codypharm/zapta-core/internal/executor"
)

func TestPolicyStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"agent not found", &executor.PolicyError{Code: executor.CodeAgentNotFound}, http.StatusNotFound},
		{"subscription invalid", &executor.PolicyError{Code: executor.CodeSubscriptionInvalid}, http.StatusPaymentRequired},
		{"model not allowed", &executor.PolicyError{Code: executor.CodeModelNotAllowed}, http.StatusForbidden},
		{"message limit", &executor.PolicyError{Code: executor.CodeMessageLimit}, http.StatusTooManyRequests},
		{"unknown policy code", &executor.PolicyError{Code: "something_else"}, http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped policy error", fmt.Errorf("execute: %w", &executor.PolicyError{Code: executor.CodeMessageLimit}), http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policyStatus(tc.err); got != tc.want {
				t.Errorf("policyStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
