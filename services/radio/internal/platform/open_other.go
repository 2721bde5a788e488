//go:build !linux

package platform

// Open reports ErrUnsupported; only Linux hosts have a hardware backend.
func Open(HW) (*Board, error) { return nil, ErrUnsupported }
