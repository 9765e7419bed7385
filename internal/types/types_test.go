package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileReturnsRegisteredModes(t *testing.T) {
	for _, m := range AllModes {
		assert.NotPanics(t, func() { Profile(m) })
	}
}

func TestProfilePanicsOnUnknownMode(t *testing.T) {
	assert.Panics(t, func() { Profile(Mode("teleport")) })
}

func TestRentalProfilesMapToUnderlyingRideMode(t *testing.T) {
	assert.Equal(t, ModeCycle, Profile(ModeBicycleRental).RideMode)
	assert.Equal(t, ModeCycle, Profile(ModeEscooterRental).RideMode)
	assert.Equal(t, ModeSelfDriveCar, Profile(ModeCarSharing).RideMode)
}

func TestIsRentalFlagMatchesModeKind(t *testing.T) {
	assert.False(t, Profile(ModeWalk).IsRental)
	assert.False(t, Profile(ModeCycle).IsRental)
	assert.False(t, Profile(ModeSelfDriveCar).IsRental)
	assert.True(t, Profile(ModeBicycleRental).IsRental)
	assert.True(t, Profile(ModeEscooterRental).IsRental)
	assert.True(t, Profile(ModeCarSharing).IsRental)
}

func TestResultConstructors(t *testing.T) {
	assert.Equal(t, ResultSuccess, Success(1.0).Kind)
	assert.Equal(t, ResultAlreadyProcessed, AlreadyProcessed().Kind)
	assert.Equal(t, ResultSkip, Skip("no candidates").Kind)
	assert.Equal(t, ResultErr, Err(ErrTimeout).Kind)
}

func TestIsAbortOnlyForRateLimited(t *testing.T) {
	assert.True(t, Err(ErrRateLimited).IsAbort())
	assert.True(t, Err(fmt.Errorf("wrapped: %w", ErrRateLimited)).IsAbort())
	assert.False(t, Err(ErrTimeout).IsAbort())
	assert.False(t, Success(1.0).IsAbort())
}

func TestIsAbortFalseForNonErrorKinds(t *testing.T) {
	assert.False(t, Skip("reason").IsAbort())
	assert.False(t, AlreadyProcessed().IsAbort())
}

func TestErrIsWithSentinelWrap(t *testing.T) {
	wrapped := fmt.Errorf("resolve station: %w", ErrNoStation)
	assert.True(t, errors.Is(wrapped, ErrNoStation))
}
