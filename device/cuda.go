//go:build cuda

package device

import "gorgonia.org/cu"

func gpus() []string {
	n, err := cu.NumDevices()
	if err != nil {
		return nil
	}
	var names []string
	for i := 0; i < n; i++ {
		name, err := cu.Device(i).Name()
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names
}
