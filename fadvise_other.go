//go:build !linux

package posprover

import "github.com/spf13/afero"

func adviseRandom(afero.File) error {
	return nil
}
