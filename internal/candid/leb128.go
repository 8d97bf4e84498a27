package candid

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/aviate-labs/leb128"
)

var errUnexpectedEOF = errors.New("unexpected end of input")

// writeULEB and writeSLEB cannot fail: the encoder only rejects negative
// input to the unsigned form.
func writeULEB(buf *bytes.Buffer, n uint64) {
	b, _ := leb128.EncodeUnsigned(new(big.Int).SetUint64(n))
	buf.Write(b)
}

func writeSLEB(buf *bytes.Buffer, n int64) {
	b, _ := leb128.EncodeSigned(big.NewInt(n))
	buf.Write(b)
}

// writeBigULEB writes a non-negative arbitrary-precision integer.
func writeBigULEB(buf *bytes.Buffer, n *big.Int) error {
	if n.Sign() < 0 {
		return fmt.Errorf("cannot encode negative %s as nat", n)
	}
	b, err := leb128.EncodeUnsigned(n)
	if err != nil {
		return fmt.Errorf("encode nat: %w", err)
	}
	buf.Write(b)
	return nil
}

func writeBigSLEB(buf *bytes.Buffer, n *big.Int) {
	b, _ := leb128.EncodeSigned(n)
	buf.Write(b)
}

// reader is a cursor over a message.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, errUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// leb runs one of the library decoders over the unread input and
// advances the cursor by what it consumed.
func (r *reader) leb(signed bool) (*big.Int, error) {
	if r.remaining() == 0 {
		return nil, errUnexpectedEOF
	}
	br := bytes.NewReader(r.data[r.pos:])
	var (
		n   *big.Int
		err error
	)
	if signed {
		n, err = leb128.DecodeSigned(br)
	} else {
		n, err = leb128.DecodeUnsigned(br)
	}
	if err != nil {
		return nil, errUnexpectedEOF
	}
	r.pos = len(r.data) - br.Len()
	return n, nil
}

func (r *reader) uleb() (uint64, error) {
	n, err := r.leb(false)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, errors.New("LEB128 value overflows 64 bits")
	}
	return n.Uint64(), nil
}

func (r *reader) sleb() (int64, error) {
	n, err := r.leb(true)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, errors.New("SLEB128 value overflows 64 bits")
	}
	return n.Int64(), nil
}

func (r *reader) bigULEB() (*big.Int, error) { return r.leb(false) }

func (r *reader) bigSLEB() (*big.Int, error) { return r.leb(true) }

// length reads a ULEB length and checks it against the remaining input,
// given the minimum number of bytes each element occupies.
func (r *reader) length(minElem int) (int, error) {
	n, err := r.uleb()
	if err != nil {
		return 0, err
	}
	if minElem > 0 && n > uint64(r.remaining()/minElem) {
		return 0, fmt.Errorf("length %d exceeds remaining input", n)
	}
	if n > uint64(len(r.data))*8+1024 {
		return 0, fmt.Errorf("length %d is too large", n)
	}
	return int(n), nil
}
