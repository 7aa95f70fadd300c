package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum generates a deterministic checksum of the pixel data of
// a Mat, used to compare frames across runs.
//
// Returns "empty" for an empty Mat.
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	data, err := mat.DataPtrUint8()
	if err != nil {
		// Non-continuous Mats have no direct data pointer; hash a copy.
		clone := mat.Clone()
		defer clone.Close()
		data = clone.ToBytes()
	}
	return fmt.Sprintf("%x", md5.Sum(data))
}
