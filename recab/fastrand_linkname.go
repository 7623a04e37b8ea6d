//go:build go1.21

package recab

import _ "unsafe" // for go:linkname

// github.com/grailbio/hts/sam pulls sync.fastrand via go:linkname, but Go
// 1.21 removed that alias from the runtime while keeping runtime.fastrand.
// Re-export it under the old name so the linker can resolve the reference.

//go:linkname runtime_fastrand runtime.fastrand
func runtime_fastrand() uint32

//go:linkname sync_fastrand sync.fastrand
func sync_fastrand() uint32 { return runtime_fastrand() }
