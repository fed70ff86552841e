package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectSharing(t *testing.T) {
	same := SelectSharing(QueueFamilies{Graphics: 0, Present: 0})
	assert.Equal(t, SharingModeExclusive, same.Mode)
	assert.Empty(t, same.QueueFamilyIndices)

	split := SelectSharing(QueueFamilies{Graphics: 0, Present: 2})
	assert.Equal(t, SharingModeConcurrent, split.Mode)
	assert.Equal(t, []uint32{0, 2}, split.QueueFamilyIndices)
}

func TestPlanSubmitAndPresent(t *testing.T) {
	same := QueueFamilies{Graphics: 1, Present: 1}
	split := QueueFamilies{Graphics: 0, Present: 1}

	p := PlanSubmit(same, true)
	assert.True(t, p.WaitAcquire)
	assert.Equal(t, PipelineStageColorAttachmentOutput, p.WaitStage)
	assert.False(t, p.SignalSubmit)
	assert.True(t, p.SignalFence)

	p = PlanSubmit(split, false)
	assert.False(t, p.WaitAcquire)
	assert.True(t, p.SignalSubmit)

	assert.False(t, PlanPresent(same).WaitSubmit)
	assert.True(t, PlanPresent(split).WaitSubmit)
}
