package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"ok":                  OK,
		"chip_not_responding": ChipNotResponding,
		"queue_overflow":      QueueOverflow,
		"bus_error":           BusError,
		"invalid_config":      InvalidConfig,
		"unsupported":         Unsupported,
		"not_ready":           NotReady,
		"timeout":             Timeout,
		"error":               Error,
	}
	for want, c := range cases {
		assert.Equal(t, want, c.Error())
	}
}

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Error, Of(errors.New("boom")))
	assert.Equal(t, Timeout, Of(Timeout))
	assert.Equal(t, Timeout, Of(fmt.Errorf("wrapped: %w", Timeout)))

	cause := errors.New("spi nak")
	err := Wrap(BusError, "read_register", cause)
	assert.Equal(t, BusError, Of(err))
	assert.Equal(t, BusError, Of(fmt.Errorf("outer: %w", err)))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "read_register: bus_error: spi nak", err.Error())
	assert.NoError(t, Wrap(BusError, "noop", nil))
}
