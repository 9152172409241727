// Package backends registers every compression backend shipped with volstream.
package backends

import (
	"fmt"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/jpegcodec"
	"github.com/fosdem/volstream/lib/codec/lossless"
)

var all = map[string]func(*codec.Registry) bool{
	lossless.DeviceType:  lossless.Register,
	jpegcodec.DeviceType: jpegcodec.Register,
}

// RegisterAll registers the bundled backends. It is meant to be passed to
// codec.Init.
func RegisterAll(r *codec.Registry) error {
	for name, register := range all {
		if !register(r) {
			return fmt.Errorf("codec %s is already registered", name)
		}
	}
	return nil
}
