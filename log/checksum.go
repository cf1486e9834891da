package log

import (
	"bytes"
	"errors"

	"github.com/zeebo/blake3"

	"minidb/file"
)

var (
	errBadBoundary = errors.New("boundary out of range")
	errBadChecksum = errors.New("checksum mismatch")
)

// seal stamps the page with the checksum of its current contents.
func seal(page *file.Page) {
	sum := checksum(page.Buf())
	copy(page.Buf()[checksumPos:], sum[:checksumSize])
}

// verify checks the boundary and checksum of a log block read from disk.
func verify(page *file.Page) error {
	boundary, err := page.ReadInt32At(boundaryPos)
	if err != nil {
		return err
	}
	if boundary < headerSize || boundary > page.Size() {
		return errBadBoundary
	}

	buf := page.Buf()
	want := checksum(buf)
	if !bytes.Equal(buf[checksumPos:headerSize], want[:checksumSize]) {
		return errBadChecksum
	}
	return nil
}

// checksum hashes the block with the checksum field treated as zero.
func checksum(buf []byte) [32]byte {
	h := blake3.New()
	h.Write(buf[:checksumPos])
	h.Write(make([]byte, checksumSize))
	h.Write(buf[headerSize:])

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
