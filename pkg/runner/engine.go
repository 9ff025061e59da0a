//go:build unix

package runner

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ExecEngine runs the analytics framework in the calling process. It is
// only called from the engine subcommand, inside the child started by Run,
// and replaces that process image so the pid seen by the worker stays the
// job's pid. It only returns on failure.
func ExecEngine(frameworkPath string, cores int, submission string) error {
	if frameworkPath == "" {
		return errors.New("no framework path given")
	}
	if cores <= 0 {
		return fmt.Errorf("invalid core count %d", cores)
	}

	env := append(os.Environ(),
		fmt.Sprintf("OPH_NCORES=%d", cores),
		fmt.Sprintf("OMP_NUM_THREADS=%d", cores),
	)

	err := unix.Exec(frameworkPath, []string{frameworkPath, submission}, env)
	return fmt.Errorf("exec %s: %w", frameworkPath, err)
}
