package astilibav

import (
	"fmt"

	"github.com/asticode/goav/avcodec"
	"github.com/asticode/goav/avformat"
	"github.com/asticode/goav/avutil"
)

// Version stores the versions of the libraries used to probe medias
var Version = Versions{
	AvCodec:  avcodec.AvcodecVersion(),
	AvFormat: avformat.AvformatVersion(),
	AvUtil:   avutil.AvutilVersion(),
}

// Versions represents the versions
type Versions struct {
	AvCodec  uint
	AvFormat uint
	AvUtil   uint
}

// String implements the Stringer interface
func (v Versions) String() string {
	return fmt.Sprintf("avcodec: %v - avformat: %v - avutil: %v", v.AvCodec, v.AvFormat, v.AvUtil)
}
