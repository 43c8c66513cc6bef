// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pn532

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-pn532-core/internal/testing"
)

func TestWaitForTarget(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	tag := testutil.NewVirtualNTAG213(nil)
	sim.AddTag(tag)

	target, err := dev.WaitForTarget(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, tag.UID, target.UID)
}

func TestWaitForTarget_ToleratesTransientErrors(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	sim.AddTag(testutil.NewVirtualMIFARE1K(nil))
	sim.InjectFault(testutil.FaultChecksum, testutil.FaultNACK)

	target, err := dev.WaitForTarget(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestMIFARE1KUID, target.UID)
	assert.Len(t, sim.Commands(), 3)
}

func TestWaitForTarget_GivesUpAfterRepeatedErrors(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	sim.AddTag(testutil.NewVirtualNTAG213(nil))
	faults := make([]testutil.Fault, maxDetectionErrors)
	for i := range faults {
		faults[i] = testutil.FaultBadACK
	}
	sim.InjectFault(faults...)

	_, err := dev.WaitForTarget(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, ErrMissingAck)
	assert.Contains(t, err.Error(), "too many detection errors")
}

func TestWaitForTarget_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	sim.InjectFault(testutil.FaultSyntaxError)

	_, err := dev.WaitForTarget(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, ErrSyntaxError)
	assert.Len(t, sim.Commands(), 1)
}

func TestWaitForTarget_ContextEnds(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := dev.WaitForTarget(ctx, time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = dev.WaitForTarget(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestAutoPoll(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	tag := testutil.NewVirtualMIFARE1K(nil)
	sim.AddTag(tag)

	results, ok, err := dev.AutoPoll(context.Background(), 2, 1, 0, AutoPollFeliCa212, AutoPollMifare)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, AutoPollMifare, results[0].Type)
	assert.True(t, results[0].IsTypeA())

	target, err := results[0].Target()
	require.NoError(t, err)
	assert.Equal(t, tag.UID, target.UID)
	assert.Equal(t, byte(0x08), target.SAK)

	last, _ := sim.LastCommand()
	assert.Equal(t, []byte{0x02, 0x01, 0x11, 0x10}, last.Params)
}

func TestAutoPoll_NothingFound(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	sim.AddTag(testutil.NewVirtualNTAG213(nil))

	results, ok, err := dev.AutoPoll(context.Background(), AutoPollEndless, 3, 0, AutoPollFeliCa424)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, results)
}

func TestAutoPoll_InvalidArguments(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	ctx := context.Background()

	_, _, err := dev.AutoPoll(ctx, 0, 1, 0, AutoPollMifare)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, _, err = dev.AutoPoll(ctx, 1, 0x10, 0, AutoPollMifare)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, _, err = dev.AutoPoll(ctx, 1, 1, 0)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, _, err = dev.AutoPoll(ctx, 1, 1, 0, make([]AutoPollTarget, 16)...)
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Empty(t, sim.Commands())
}

func TestAutoPoll_TruncatedResponse(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	sim.OverrideResponse(cmdInAutoPoll, []byte{0x01, 0x10, 0x09, 0x01, 0x00})

	_, ok, err := dev.AutoPoll(context.Background(), 1, 1, 0, AutoPollMifare)
	require.ErrorIs(t, err, ErrShortResponse)
	assert.True(t, ok)
}

func TestAutoPollResult_NotTypeA(t *testing.T) {
	t.Parallel()

	r := AutoPollResult{Type: AutoPollFeliCa212, TargetData: []byte{0x01, 0x12}}
	assert.False(t, r.IsTypeA())
	_, err := r.Target()
	require.ErrorIs(t, err, ErrInvalidParameter)
}
