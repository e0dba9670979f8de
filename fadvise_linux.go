//go:build linux

package posprover

import (
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// adviseRandom tells the kernel not to read ahead on a plot handle. Plot
// reads are small and scattered over the whole file.
func adviseRandom(f afero.File) error {
	osf, ok := f.(*os.File)
	if !ok {
		return nil
	}
	return unix.Fadvise(int(osf.Fd()), 0, 0, unix.FADV_RANDOM)
}
