package localdir

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

// NewSize parses a byte size such as 1048576, 512KB or 100MB (binary multiples)
func NewSize(config string) (int, error) {
	var ds datasize.ByteSize
	if err := ds.UnmarshalText([]byte(config)); err != nil {
		return 0, fmt.Errorf("maxSize must be bytes or a size like 100MB, got: %s", config)
	}
	return int(ds.Bytes()), nil
}
