package vulkan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockPoolSerializesGroup(t *testing.T) {
	p := newLockPool()
	var wg sync.WaitGroup
	inside, maxInside := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.safeCall(pipelineManagement, func() error {
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				inside--
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
	assert.Same(t, p.group(pipelineManagement), p.group(pipelineManagement))
	assert.NotSame(t, p.group(pipelineManagement), p.group(descriptorManagement))
	assert.Same(t, p.queue(1), p.queue(1))
}
