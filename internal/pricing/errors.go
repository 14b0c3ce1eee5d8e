package pricing

import (
	"errors"

	"github.com/noah-isme/storefront-bff/internal/common"
)

// AsAppError attaches the matching error kind to pricing failures so HTTP
// handlers can render them. Other errors pass through unchanged.
func AsAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidLineItem):
		return common.KindError(common.KindInvalidLineItem, err.Error(), err)
	case errors.Is(err, ErrInvalidFeeConfig):
		return common.KindError(common.KindInvalidFeeConfig, err.Error(), err)
	case errors.Is(err, ErrInvalidInput):
		return common.KindError(common.KindInvalidInput, err.Error(), err)
	}
	return err
}
