package utils

import (
	"fmt"
	"io"
)

// ReadImageBuffer reads r fully, failing once more than limit bytes arrive.
// A limit of zero or less disables the cap.
func ReadImageBuffer(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		buffer, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("error while reading image :%w", err)
		}
		return buffer, nil
	}

	buffer, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("error while reading image :%w", err)
	}
	if int64(len(buffer)) > limit {
		return nil, fmt.Errorf("image exceeds the %d byte limit", limit)
	}
	return buffer, nil
}
