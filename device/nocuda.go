//go:build !cuda

package device

func gpus() []string {
	return nil
}
