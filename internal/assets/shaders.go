package assets

import (
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
)

// ShaderSource supplies compiled SPIR-V by logical name, e.g. "geometry.vert".
type ShaderSource interface {
	LoadShaderBinary(name string) ([]byte, error)
}

// ShaderDir reads <name>.spv files from a file system.
type ShaderDir struct {
	fsys fs.FS
}

func NewShaderDir(dir string) ShaderDir {
	return ShaderDir{fsys: os.DirFS(dir)}
}

func NewShaderFS(fsys fs.FS) ShaderDir {
	return ShaderDir{fsys: fsys}
}

func (s ShaderDir) LoadShaderBinary(name string) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, name+".spv")
	if err != nil {
		return nil, errors.Wrapf(err, "load shader %q", name)
	}
	return data, nil
}

// SPIRVWords reinterprets shader bytes as 32-bit words in the byte order the
// device expects.
func SPIRVWords(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("shader bytecode length %d is not a positive multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = common.ByteOrder.Uint32(b[i*4:])
	}
	return words, nil
}
