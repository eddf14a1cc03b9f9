package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWrapper(t *testing.T) {
	t.Parallel()

	wrapper := NewWrapper("retrieval", "retrieve")

	t.Run("nil stays nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, wrapper.Wrap(nil, "x"))
		assert.NoError(t, wrapper.Wrapf(nil, "x %d", 1))
	})

	t.Run("wrap keeps cause", func(t *testing.T) {
		t.Parallel()
		err := wrapper.Wrap(ErrEmbeddingUnavailable, "could not rank courses")

		var wrapped *WrappedError
		require.ErrorAs(t, err, &wrapped)
		assert.Equal(t, "retrieval", wrapped.Module)
		assert.Equal(t, "retrieve", wrapped.Operation)
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
		assert.Equal(t, "[retrieval:retrieve] could not rank courses: embedding unavailable", err.Error())
	})

	t.Run("wrapf formats", func(t *testing.T) {
		t.Parallel()
		err := wrapper.Wrapf(ErrNotFound, "no trends for %s", "CS-101")
		assert.Equal(t, "no trends for CS-101", GetUserMessage(err))
	})
}

func TestGetUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("raw"), want: "raw"},
		{name: "wrapped", err: NewWrapper("api", "chat").Wrap(errors.New("raw"), "try again"), want: "try again"},
		{
			name: "wrapped behind fmt",
			err:  fmt.Errorf("outer: %w", NewWrapper("api", "chat").Wrap(errors.New("raw"), "inner message")),
			want: "inner message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GetUserMessage(tt.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("user_id", "must not be empty")
	assert.Equal(t, "validation failed on user_id: must not be empty", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStageError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("turn: %w", NewStageError("recommendation_agent", ErrRetrievalUnavailable))
	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, "recommendation_agent", stage.Stage)
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}
