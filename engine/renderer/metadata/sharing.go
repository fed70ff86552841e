package metadata

/** @brief Queue family indices picked for graphics and presentation. */
type QueueFamilies struct {
	Graphics int
	Present  int
}

func (q QueueFamilies) IsComplete() bool {
	return q.Graphics >= 0 && q.Present >= 0
}

func (q QueueFamilies) IsSameQueue() bool {
	return q.Graphics == q.Present
}

type SharingMode int

const (
	SharingModeExclusive SharingMode = iota
	SharingModeConcurrent
)

func (m SharingMode) String() string {
	if m == SharingModeConcurrent {
		return "concurrent"
	}
	return "exclusive"
}

/** @brief How swapchain images are shared between queue families. */
type SharingPlan struct {
	Mode               SharingMode
	QueueFamilyIndices []uint32
}

// SelectSharing uses exclusive ownership when one family does both jobs.
// Separate families must share the images concurrently.
func SelectSharing(q QueueFamilies) SharingPlan {
	if q.IsSameQueue() {
		return SharingPlan{Mode: SharingModeExclusive}
	}
	return SharingPlan{
		Mode:               SharingModeConcurrent,
		QueueFamilyIndices: []uint32{uint32(q.Graphics), uint32(q.Present)},
	}
}

/** @brief Semaphores and fence a frame submission uses. */
type SubmitPlan struct {
	WaitAcquire  bool
	WaitStage    PipelineStage
	SignalSubmit bool
	SignalFence  bool
}

// PlanSubmit waits on the acquire semaphore only when an image was acquired
// and signals the submit semaphore only for a separate present queue.
func PlanSubmit(q QueueFamilies, acquired bool) SubmitPlan {
	p := SubmitPlan{
		SignalSubmit: !q.IsSameQueue(),
		SignalFence:  true,
	}
	if acquired {
		p.WaitAcquire = true
		p.WaitStage = PipelineStageColorAttachmentOutput
	}
	return p
}

type PresentPlan struct {
	WaitSubmit bool
}

func PlanPresent(q QueueFamilies) PresentPlan {
	return PresentPlan{WaitSubmit: !q.IsSameQueue()}
}
