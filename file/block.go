package file

import "fmt"

// Block identifies a disk block by the file it lives in and its position
// within that file. Blocks are compared by value and can be used as map keys.
type Block struct {
	filename string
	number   int32
}

func NewBlock(filename string, number int32) Block {
	return Block{filename, number}
}

func (b Block) Filename() string {
	return b.filename
}

func (b Block) Number() int32 {
	return b.number
}

func (b Block) Equals(other Block) bool {
	return b == other
}

func (b Block) String() string {
	return fmt.Sprintf("[file %s, block %d]", b.filename, b.number)
}
