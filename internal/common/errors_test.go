package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/common"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) common.ErrorBody {
	t.Helper()
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestKindHTTPStatus(t *testing.T) {
	cases := map[common.Kind]int{
		common.KindInvalidLineItem:   http.StatusBadRequest,
		common.KindInvalidInput:      http.StatusBadRequest,
		common.KindInvalidFeeConfig:  http.StatusBadRequest,
		common.KindNetwork:           http.StatusGatewayTimeout,
		common.KindServerRejected:    http.StatusBadGateway,
		common.KindMalformedResponse: http.StatusBadGateway,
		common.KindUnknown:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.HTTPStatus(), "kind %q", kind)
	}
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("create order: %w", common.KindError(common.KindNetwork, "order service unreachable", base))

	require.Equal(t, common.KindNetwork, common.KindOf(err))
	require.True(t, common.Retryable(err))
	require.True(t, common.IsAppError(err))
	require.ErrorIs(t, err, base)

	require.Equal(t, common.KindUnknown, common.KindOf(base))
	require.False(t, common.Retryable(common.KindError(common.KindServerRejected, "rejected", nil)))
}

func TestWriteErrorUsesAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	err := common.KindError(common.KindServerRejected, "stock agotado", nil)
	err.Details = map[string]any{"status": 409}

	common.WriteError(rr, fmt.Errorf("submit: %w", err))

	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, "SERVER_REJECTED", body.Code)
	require.Equal(t, "stock agotado", body.Message)
	require.NotNil(t, body.Details)
}

func TestWriteErrorCustomCode(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewAppError("EMPTY_CART", "cart is empty", http.StatusUnprocessableEntity, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "EMPTY_CART", decodeError(t, rr).Code)
}

func TestWriteErrorPlainError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, "INTERNAL", body.Code)
	require.Equal(t, "boom", body.Message)
}
