package outcome

import (
	"errors"
	"fmt"
	"testing"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestResultConstructors(t *testing.T) {
	t.Run("ok with products", func(t *testing.T) {
		r := OK([]models.Product{{ID: "1"}})
		assert.Equal(t, KindOK, r.Kind)
		assert.Len(t, r.Products, 1)
		assert.Equal(t, "ok(1)", r.String())
	})

	t.Run("ok without products degrades to empty", func(t *testing.T) {
		r := OK(nil)
		assert.Equal(t, KindEmpty, r.Kind)
	})

	t.Run("failed keeps reason", func(t *testing.T) {
		r := Failed(errors.New("boom"))
		assert.Equal(t, KindFailed, r.Kind)
		assert.Equal(t, "boom", r.Reason)
	})
}

func TestStepError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewNetwork("episode", "navigation failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.Contains(t, err.Error(), "[network] episode: navigation failed")

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ErrorTypeNetwork, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeNetwork))

	notFound := NewNotFound("episode", "404")
	assert.False(t, notFound.IsRetryable())
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}
