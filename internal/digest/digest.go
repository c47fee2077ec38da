package digest

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// ItemSize はItemのバイト長
const ItemSize = 8

// Item はパイプラインを流れる固定長の値
type Item [ItemSize]byte

// Digest は変換結果の固定長バイト列
type Digest []byte

// Func はItemをDigestに変換する純粋関数
type Func func(Item) Digest

// Encode はインデックスをItemに変換する
func Encode(i uint64) Item {
	var it Item
	binary.LittleEndian.PutUint64(it[:], i)
	return it
}

// Decode はItemからインデックスを取り出す
func Decode(it Item) uint64 {
	return binary.LittleEndian.Uint64(it[:])
}

// Algorithm は変換ファミリーの定義
type Algorithm struct {
	Name string
	Size int
	Func Func
}

var algorithms = map[string]Algorithm{
	"sha512": {
		Name: "sha512",
		Size: sha512.Size,
		Func: func(it Item) Digest {
			sum := sha512.Sum512(it[:])
			return sum[:]
		},
	},
	"blake3": {
		Name: "blake3",
		Size: 32,
		Func: func(it Item) Digest {
			sum := blake3.Sum256(it[:])
			return sum[:]
		},
	},
	"blake2b": {
		Name: "blake2b",
		Size: blake2b.Size256,
		Func: func(it Item) Digest {
			sum := blake2b.Sum256(it[:])
			return sum[:]
		},
	},
	"sha3": {
		Name: "sha3",
		Size: 32,
		Func: func(it Item) Digest {
			sum := sha3.Sum256(it[:])
			return sum[:]
		},
	},
}

// Lookup は名前から変換ファミリーを取得する
func Lookup(name string) (Algorithm, error) {
	a, ok := algorithms[name]
	if !ok {
		return Algorithm{}, fmt.Errorf("unknown digest algorithm: %s (available: %v)", name, Names())
	}
	return a, nil
}

// Names は利用可能なアルゴリズム名を返す
func Names() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
