package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Contains(t, appErr.Error(), "boom")
}

func TestIsMatchesClonesAndWrapped(t *testing.T) {
	cloned := Clone(ErrSlotFull, "slot 12:00 is full")
	wrapped := fmt.Errorf("place order: %w", cloned)

	assert.True(t, Is(wrapped, ErrSlotFull))
	assert.False(t, Is(wrapped, ErrNotReady))
	assert.False(t, Is(nil, ErrSlotFull))
	assert.Equal(t, "slot 12:00 is full", FromError(wrapped).Message)
	assert.Equal(t, http.StatusConflict, FromError(wrapped).Status)
}
