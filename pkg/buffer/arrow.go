package buffer

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// NewBuffer copies data into a buffer allocated from mem. The buffer holds
// one reference and must be released once.
func NewBuffer(mem memory.Allocator, data []byte) *memory.Buffer {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(len(data))
	copy(buf.Bytes(), data)
	return buf
}
