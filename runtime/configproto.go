package runtime

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// tensorflow.ConfigProto field numbers.
const (
	fieldDeviceCount        protowire.Number = 1
	fieldIntraOpThreads     protowire.Number = 2
	fieldInterOpThreads     protowire.Number = 5
	fieldAllowSoftPlacement protowire.Number = 7
	fieldLogDevicePlacement protowire.Number = 8
)

// ConfigProto encodes the options as a serialized tensorflow.ConfigProto,
// the form session options are handed to the runtime in.
func (o Options) ConfigProto() []byte {
	var b []byte

	devices := map[string]int32{}
	if o.Threads > 0 {
		devices["CPU"] = int32(o.Threads)
	}
	if o.GPUs >= 0 {
		devices["GPU"] = int32(o.GPUs)
	}
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, 2, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(devices[name]))

		b = protowire.AppendTag(b, fieldDeviceCount, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	if o.Threads > 0 {
		b = protowire.AppendTag(b, fieldIntraOpThreads, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(o.Threads))
		b = protowire.AppendTag(b, fieldInterOpThreads, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(o.Threads))
	}
	if o.AllowSoftPlacement {
		b = protowire.AppendTag(b, fieldAllowSoftPlacement, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if o.LogDevicePlacement {
		b = protowire.AppendTag(b, fieldLogDevicePlacement, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}
