package unpackinfo

import (
	"fmt"
	"io/fs"
	"os"
)

// FileMode is a git-style file mode: a type nibble plus normalized
// permission bits. Bundle archives record entry modes in this form so
// that unrelated permission noise never changes a bundle checksum.
type FileMode uint32

const (
	Empty FileMode = 0
	// Dir represents a directory.
	Dir FileMode = 0040000
	// Regular represents non-executable files. Note this is not
	// the same as golang regular files, which include executable files.
	Regular FileMode = 0100644
	// Executable represents executable files.
	Executable FileMode = 0100755
	// Symlink represents symbolic links to files.
	Symlink FileMode = 0120000
)

// New normalizes an os mode into a FileMode. Pipes, sockets, devices and
// other irregular entries have no place in a bundle and are rejected.
func New(mode fs.FileMode) (FileMode, error) {
	switch {
	case mode.IsDir():
		return Dir, nil
	case mode&fs.ModeSymlink != 0:
		return Symlink, nil
	case mode.IsRegular():
		// ModeTemporary is not part of ModeType, so IsRegular alone
		// would let it through
		if mode&fs.ModeTemporary != 0 {
			return Empty, fmt.Errorf("invalid file mode: %s", mode)
		}
		if isExecutable(mode) {
			return Executable, nil
		}
		return Regular, nil
	}

	return Empty, fmt.Errorf("invalid file mode: %s", mode)
}

// ToOSFileMode maps a FileMode back to an os.FileMode, normalizing
// permissions for regular and executable files.
func (m FileMode) ToOSFileMode() (os.FileMode, error) {
	switch m {
	case Regular:
		return os.FileMode(0644), nil
	case Dir:
		return os.ModePerm | os.ModeDir, nil
	case Executable:
		return os.FileMode(0755), nil
	case Symlink:
		return os.ModePerm | os.ModeSymlink, nil
	}

	return os.FileMode(0), fmt.Errorf("malformed file mode: %s", m)
}

func (m FileMode) IsRegular() bool {
	return m == Regular
}

func (m FileMode) IsFile() bool {
	return m == Regular ||
		m == Executable ||
		m == Symlink
}

func (m FileMode) String() string {
	return fmt.Sprintf("%07o", uint32(m))
}

func isExecutable(m fs.FileMode) bool {
	return m&0100 != 0
}
