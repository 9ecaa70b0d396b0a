// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package migrate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgrade_PositionalAnswersRemapped(t *testing.T) {
	v1, problems := DecodeV1(
		[]byte(`{"idx":1,"correct":1,"answered":2,"order":[2,0,1]}`),
		[]byte(`{"0":1,"1":0}`),
	)
	require.Empty(t, problems)

	got, err := Upgrade(v1, Env{ItemCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Answers.SchemaVersion)
	if diff := cmp.Diff(Answers{2: 1, 0: 0}, got.Answers.Answers); diff != "" {
		t.Errorf("answers mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{2, 0, 1}, got.Progress.Order)
	assert.Equal(t, 1, got.Progress.Cursor)
}

func TestUpgrade_EmptyOrderIsIdentity(t *testing.T) {
	v1 := V1{Answers: Answers{0: 3, 1: 2, 2: 1}}
	got, err := Upgrade(v1, Env{ItemCount: 2})
	require.NoError(t, err)
	assert.Equal(t, Answers{0: 3, 1: 2}, got.Answers.Answers, "positions beyond the item set are dropped")
}

func TestUpgrade_PositionBeyondOrderDropped(t *testing.T) {
	v1 := V1{Progress: ProgressV1{Order: []int{1}}, Answers: Answers{0: 0, 1: 1}}
	got, err := Upgrade(v1, Env{ItemCount: 5})
	require.NoError(t, err)
	assert.Equal(t, Answers{1: 0}, got.Answers.Answers)
}

func TestUpgrade_ItemKeyedAnswersKept(t *testing.T) {
	v1 := V1{Progress: ProgressV1{Order: []int{2, 0, 1}}, Answers: Answers{2: 1, 0: 0}}
	got, err := Upgrade(v1, Env{ItemCount: 3})
	require.NoError(t, err)
	assert.Equal(t, Answers{2: 1, 0: 0}, got.Answers.Answers, "non-contiguous keys are already item indices")
}

func TestUpgrade_CurrentIsUnchanged(t *testing.T) {
	v2 := V2{
		Progress: ProgressV2{Order: []int{1, 0}, Cursor: 1, Answered: 1, Total: 2},
		Answers:  AnswerRecord{SchemaVersion: 2, Answers: Answers{0: 1}},
	}
	got, err := Upgrade(v2, Env{ItemCount: 2})
	require.NoError(t, err)
	if diff := cmp.Diff(v2, got); diff != "" {
		t.Errorf("upgrade changed a current snapshot (-want +got):\n%s", diff)
	}
}

func TestUpgrade_Idempotent(t *testing.T) {
	inputs := []Snapshot{
		V1{Progress: ProgressV1{Order: []int{2, 0, 1}}, Answers: Answers{0: 1, 1: 0}},
		V1{Answers: Answers{0: 1}},
		V1{},
		V2{Answers: AnswerRecord{SchemaVersion: 2, Answers: Answers{0: 0, 1: 1}}},
	}
	for _, in := range inputs {
		once, err := Upgrade(in, Env{ItemCount: 3})
		require.NoError(t, err)
		p1, a1, err := Encode(once)
		require.NoError(t, err)

		twice, err := Upgrade(once, Env{ItemCount: 3})
		require.NoError(t, err)
		p2, a2, err := Encode(twice)
		require.NoError(t, err)

		assert.Equal(t, string(p1), string(p2))
		assert.Equal(t, string(a1), string(a2))

		// Decoding what was written and upgrading again is also stable.
		decoded, problems := DecodeV2(p2, a2)
		require.Empty(t, problems)
		thrice, err := Upgrade(decoded, Env{ItemCount: 3})
		require.NoError(t, err)
		p3, a3, err := Encode(thrice)
		require.NoError(t, err)
		assert.Equal(t, string(p1), string(p3))
		assert.Equal(t, string(a1), string(a3))
	}
}

type futureSnapshot struct{}

func (futureSnapshot) SchemaVersion() int { return 0 }

func TestUpgrade_UnknownVersion(t *testing.T) {
	_, err := Upgrade(futureSnapshot{}, Env{})
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestIsPositional(t *testing.T) {
	assert.False(t, IsPositional(nil))
	assert.True(t, IsPositional(Answers{0: 1}))
	assert.True(t, IsPositional(Answers{1: 0, 0: 2, 2: 2}))
	assert.False(t, IsPositional(Answers{1: 0}))
	assert.False(t, IsPositional(Answers{0: 0, 2: 0}))
}
