package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"ragservice/internal/apperr"
)

func TestStatusFromError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindAuth, http.StatusUnauthorized},
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindDependencyFatal, http.StatusInternalServerError},
		{apperr.KindInternal, http.StatusInternalServerError},
		{apperr.KindDependencyTransient, http.StatusBadGateway},
		{apperr.KindMalformedUpstream, http.StatusBadGateway},
	}
	for _, tc := range cases {
		err := apperr.New(tc.kind, "boom")
		assert.Equal(t, tc.want, statusFromError(err), "kind %v", tc.kind)
	}
}
