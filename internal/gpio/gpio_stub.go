//go:build !linux

package gpio

import "fmt"

func Watch(chipPath string, offset int, consumer string) (Watcher, error) {
	return nil, fmt.Errorf("gpio edge events not supported on this platform")
}
