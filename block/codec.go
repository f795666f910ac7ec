package block

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/hash"
)

// DefaultCompressionLevel matches the CLI's documented default.
const DefaultCompressionLevel = 3

// childStride is the on-wire byte width of one child hash reference.
const childStride = hash.Size

// Encode renders a block to its wire form: level (1 byte) followed by
// payload. Leaves are zstd-compressed at compressionLevel (1-19);
// branches are an uncompressed concatenation of child hashes, since
// hash material is already incompressible.
func Encode(b Block, compressionLevel int) ([]byte, error) {
	out := make([]byte, 1, 1+len(b.Data)+len(b.Children)*childStride)
	out[0] = b.Level

	if b.IsLeaf() {
		enc := encoderForLevel(compressionLevel)
		compressed := enc.EncodeAll(b.Data, nil)
		return append(out, compressed...), nil
	}

	for _, c := range b.Children {
		out = append(out, c[:]...)
	}
	return out, nil
}

// Decode parses and verifies a wire-format block. expectedHash must
// match the recomputed content hash; if expectedLevel is non-nil, the
// decoded level must equal it.
func Decode(data []byte, expectedHash hash.Hash, expectedLevel *uint8) (Block, error) {
	if len(data) == 0 {
		return Block{}, errs.ErrInvalidBlockSize
	}

	level := data[0]
	payload := data[1:]

	if expectedLevel != nil && level != *expectedLevel {
		return Block{}, fmt.Errorf("%w: got %d, want %d", errs.ErrWrongBlockLevel, level, *expectedLevel)
	}

	if level == 0 {
		plaintext, err := sharedDecoder().DecodeAll(payload, nil)
		if err != nil {
			return Block{}, fmt.Errorf("block: zstd decompress: %w", err)
		}
		if len(plaintext) == 0 {
			return Block{}, errs.ErrEmptyBlock
		}
		h := hash.OfLeaf(plaintext)
		if h != expectedHash {
			return Block{}, fmt.Errorf("%w: got %s, want %s", errs.ErrWrongBlockHash, h, expectedHash)
		}
		return Block{Hash: h, Level: 0, Data: plaintext}, nil
	}

	if len(payload) == 0 || len(payload)%childStride != 0 {
		return Block{}, errs.ErrInvalidBlockSize
	}
	children := make([]hash.Hash, len(payload)/childStride)
	for i := range children {
		copy(children[i][:], payload[i*childStride:(i+1)*childStride])
	}
	h := hash.OfBranch(children)
	if h != expectedHash {
		return Block{}, fmt.Errorf("%w: got %s, want %s", errs.ErrWrongBlockHash, h, expectedHash)
	}
	return Block{Hash: h, Level: level, Children: children}, nil
}

// encoderForLevel returns a zstd encoder configured for the given
// zstd-CLI-style compression level (1-19), building lazily since
// encoders are relatively expensive to construct.
func encoderForLevel(level int) *zstd.Encoder {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[level]; ok {
		return enc
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		// WithEncoderLevel never fails for a level derived from
		// EncoderLevelFromZstd, which always clamps to a valid range.
		panic(fmt.Sprintf("block: building zstd encoder: %v", err))
	}
	encoders[level] = enc
	return enc
}

var (
	encodersMu sync.Mutex
	encoders   = map[int]*zstd.Encoder{}

	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func sharedDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		d, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("block: building zstd decoder: %v", err))
		}
		decoder = d
	})
	return decoder
}
